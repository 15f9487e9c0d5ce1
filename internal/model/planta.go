package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Planta is a processing plant's configuration: toll cost, minimum batch
// weight and its ordered processing stages.
type Planta struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Codigo string    `gorm:"uniqueIndex;not null"`
	Nombre string    `gorm:"not null"`
	// CostoProcesamiento is USD per tonne of lot weight.
	CostoProcesamiento decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	PesoMinimoKg       decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0"`
	Activa             bool            `gorm:"not null;default:true"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Etapas []EtapaPlanta `gorm:"foreignKey:PlantaID"`
}

func (Planta) TableName() string { return "plantas" }

// EtapaPlanta is one configured processing stage. Orden is 1..N per plant.
type EtapaPlanta struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PlantaID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_planta_orden"`
	Nombre   string    `gorm:"not null"`
	Orden    int       `gorm:"not null;uniqueIndex:idx_planta_orden"`
}

func (EtapaPlanta) TableName() string { return "etapas_planta" }
