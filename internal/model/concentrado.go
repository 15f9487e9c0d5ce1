package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EstadoConcentrado is the business status of a concentrate. Transitions only
// move forward; the one back edge is en_venta → listo_para_venta when a sale
// settlement is rejected.
type EstadoConcentrado string

const (
	ConcentradoCreado                        EstadoConcentrado = "creado"
	ConcentradoEnCaminoAPlanta               EstadoConcentrado = "en_camino_a_planta"
	ConcentradoEnProceso                     EstadoConcentrado = "en_proceso"
	ConcentradoEsperandoReporteQuimico       EstadoConcentrado = "esperando_reporte_quimico"
	ConcentradoReporteQuimicoRegistrado      EstadoConcentrado = "reporte_quimico_registrado"
	ConcentradoListoParaLiquidacion          EstadoConcentrado = "listo_para_liquidacion"
	ConcentradoLiquidacionServicioSolicitada EstadoConcentrado = "liquidacion_servicio_solicitada"
	ConcentradoLiquidacionServicioEnRevision EstadoConcentrado = "liquidacion_servicio_en_revision"
	ConcentradoServicioLiquidado             EstadoConcentrado = "servicio_liquidado"
	ConcentradoServicioPagado                EstadoConcentrado = "servicio_pagado"
	ConcentradoListoParaVenta                EstadoConcentrado = "listo_para_venta"
	ConcentradoEnVenta                       EstadoConcentrado = "en_venta"
	ConcentradoVendido                       EstadoConcentrado = "vendido"
)

// Concentrado is the mineral-specific output produced from one or more lots.
type Concentrado struct {
	ID                   uuid.UUID                    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Codigo               string                       `gorm:"uniqueIndex;not null"`
	PlantaID             uuid.UUID                    `gorm:"type:uuid;not null;index"`
	SocioID              uuid.UUID                    `gorm:"type:uuid;not null;index"`
	MineralPrincipal     Mineral                      `gorm:"type:varchar(5);not null"`
	MineralesSecundarios datatypes.JSONSlice[Mineral] `gorm:"type:jsonb"`
	// PorcentajeParticipacion is PesoInicial as a share of the batch weight, 0-100.
	PorcentajeParticipacion decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	PesoInicial             decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	// PesoFinal is written once, after processing. Merma = PesoInicial - PesoFinal.
	PesoFinal        *decimal.Decimal `gorm:"type:decimal(14,4)"`
	Merma            *decimal.Decimal `gorm:"type:decimal(14,4)"`
	MermaNegativa    bool             `gorm:"not null;default:false"`
	Estado           EstadoConcentrado `gorm:"type:varchar(40);not null;index"`
	RequiereRevision bool              `gorm:"not null;default:false"`
	NotaRevision     *string
	// LiquidacionServicioID is the toll settlement covering this concentrate's batch.
	LiquidacionServicioID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt             time.Time
	UpdatedAt             time.Time

	Lotes     []LoteConcentrado      `gorm:"foreignKey:ConcentradoID"`
	Etapas    []ConcentradoEtapa     `gorm:"foreignKey:ConcentradoID"`
	Historial []ConcentradoHistorial `gorm:"foreignKey:ConcentradoID"`
}

func (Concentrado) TableName() string { return "concentrados" }

// LoteConcentrado records the weight a lot contributed to a concentrate.
// Created with the concentrate and never modified.
type LoteConcentrado struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LoteID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	ConcentradoID uuid.UUID       `gorm:"type:uuid;not null;index"`
	PesoAportado  decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	Porcentaje    decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	CreatedAt     time.Time
}

func (LoteConcentrado) TableName() string { return "lote_concentrados" }

// EstadoEtapa is the status of one kanban card.
type EstadoEtapa string

const (
	EtapaPendiente  EstadoEtapa = "pendiente"
	EtapaActiva     EstadoEtapa = "activo"
	EtapaCompletada EstadoEtapa = "completado"
)

// ConcentradoEtapa is one (concentrate, plant stage) kanban card. At most one
// card per concentrate is activo; completado cards never revert.
type ConcentradoEtapa struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConcentradoID  uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_conc_etapa_orden"`
	EtapaPlantaID  uuid.UUID   `gorm:"type:uuid;not null"`
	Nombre         string      `gorm:"not null"`
	Orden          int         `gorm:"not null;uniqueIndex:idx_conc_etapa_orden"`
	Estado         EstadoEtapa `gorm:"type:varchar(20);not null;default:'pendiente'"`
	InicioAt       *time.Time
	FinAt          *time.Time
	Nota           *string
	AutoCompletada bool `gorm:"not null;default:false"`
	UpdatedAt      time.Time
}

func (ConcentradoEtapa) TableName() string { return "concentrado_etapas" }
