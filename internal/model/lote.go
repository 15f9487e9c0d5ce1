package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EstadoLote is independent of the concentrate status.
type EstadoLote string

const (
	LoteAprobado      EstadoLote = "aprobado"
	LoteEnConcentrado EstadoLote = "en_concentrado"
	LoteEnVenta       EstadoLote = "en_venta"
	LoteVendido       EstadoLote = "vendido"
)

// DestinoLote: "procesamiento" lots go to a plant, "comercializacion" lots are sold raw.
type DestinoLote string

const (
	DestinoProcesamiento    DestinoLote = "procesamiento"
	DestinoComercializacion DestinoLote = "comercializacion"
)

// Lote is a physical batch of ore from one mine, owned by one socio.
// Lots are created by the upstream approval workflow; this service only reads
// them and moves Estado. Weights are never updated here.
type Lote struct {
	ID            uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Codigo        string                      `gorm:"uniqueIndex;not null"`
	SocioID       uuid.UUID                   `gorm:"type:uuid;not null;index"`
	MinaID        uuid.UUID                   `gorm:"type:uuid;not null"`
	PlantaID      *uuid.UUID                  `gorm:"type:uuid;index"`
	PesoDeclarado decimal.Decimal             `gorm:"type:decimal(14,4);not null"`
	PesoReal      *decimal.Decimal            `gorm:"type:decimal(14,4)"`
	Minerales     datatypes.JSONSlice[string] `gorm:"type:jsonb;not null"`
	Estado        EstadoLote                  `gorm:"type:varchar(30);not null;default:'aprobado'"`
	Destino       DestinoLote                 `gorm:"type:varchar(30);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Lote) TableName() string { return "lotes" }

// PesoEfectivo is the real (scale) weight when known, else the declared one.
func (l *Lote) PesoEfectivo() decimal.Decimal {
	if l.PesoReal != nil && l.PesoReal.IsPositive() {
		return *l.PesoReal
	}
	return l.PesoDeclarado
}

// MineralesReconocidos returns the lot's known mineral symbols, deduplicated.
func (l *Lote) MineralesReconocidos() map[Mineral]bool {
	set := make(map[Mineral]bool, len(l.Minerales))
	for _, s := range l.Minerales {
		if m, ok := ParseMineral(s); ok {
			set[m] = true
		}
	}
	return set
}
