package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrigenReporte identifies who issued a lab assay.
type OrigenReporte string

const (
	ReportePlanta    OrigenReporte = "planta"
	ReporteSocio     OrigenReporte = "socio"
	ReporteComprador OrigenReporte = "comprador"
	ReportePromedio  OrigenReporte = "promedio"
)

// ReporteQuimico is a lab assay. Every metric is optional: a lab may not report
// all of them. Grades and moisture are percentages except LeyAgGT (g/t).
type ReporteQuimico struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConcentradoID *uuid.UUID    `gorm:"type:uuid;index"`
	LiquidacionID *uuid.UUID    `gorm:"type:uuid;index"`
	Origen        OrigenReporte `gorm:"type:varchar(20);not null"`
	Laboratorio   string

	LeyPrincipal *decimal.Decimal `gorm:"type:decimal(10,4)"`
	LeyAgDM      *decimal.Decimal `gorm:"type:decimal(10,4);column:ley_ag_dm"`
	LeyAgGT      *decimal.Decimal `gorm:"type:decimal(12,4);column:ley_ag_gt"`
	Humedad      *decimal.Decimal `gorm:"type:decimal(10,4)"`
	LeyPb        *decimal.Decimal `gorm:"type:decimal(10,4)"`
	LeyZn        *decimal.Decimal `gorm:"type:decimal(10,4)"`

	RegistradoPor uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt     time.Time
}

func (ReporteQuimico) TableName() string { return "reportes_quimicos" }
