package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// OrigenSolicitud is the request metadata recorded with every history entry.
type OrigenSolicitud struct {
	IP        string `gorm:"type:varchar(64)"`
	UserAgent string
	Canal     string `gorm:"type:varchar(20)"` // api | sistema | cron
}

// RegistroHistorial is one immutable status-change record. Detalle is the open
// slot for variant payloads (stage moved, payment data, reconciliation result).
// Records are only ever inserted.
type RegistroHistorial struct {
	Secuencia      int    `gorm:"not null"`
	EstadoAnterior string `gorm:"type:varchar(40);not null"`
	EstadoNuevo    string `gorm:"type:varchar(40);not null"`
	Descripcion    string `gorm:"not null"`
	Observacion    *string
	ActorID        uuid.UUID       `gorm:"type:uuid;not null"`
	Origen         OrigenSolicitud `gorm:"embedded;embeddedPrefix:origen_"`
	Detalle        datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

// ConcentradoHistorial is the append-only status log of a concentrate.
type ConcentradoHistorial struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConcentradoID uuid.UUID `gorm:"type:uuid;not null;index"`
	RegistroHistorial
}

func (ConcentradoHistorial) TableName() string { return "concentrado_historial" }

// LiquidacionHistorial is the append-only status log of a settlement.
type LiquidacionHistorial struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LiquidacionID uuid.UUID `gorm:"type:uuid;not null;index"`
	RegistroHistorial
}

func (LiquidacionHistorial) TableName() string { return "liquidacion_historial" }
