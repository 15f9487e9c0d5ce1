package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TipoLiquidacion: toll processing fee or one of the two sale subjects.
type TipoLiquidacion string

const (
	LiquidacionServicio         TipoLiquidacion = "servicio"
	LiquidacionVentaConcentrado TipoLiquidacion = "venta_concentrado"
	LiquidacionVentaLote        TipoLiquidacion = "venta_lote"
)

// EsVenta reports whether t is one of the sale settlement types.
func (t TipoLiquidacion) EsVenta() bool {
	return t == LiquidacionVentaConcentrado || t == LiquidacionVentaLote
}

// EstadoLiquidacion
// Toll: pendiente_aprobacion → aprobada → pagada.
// Sale: pendiente_aprobacion → aprobada → esperando_reportes →
// esperando_cierre_venta → cerrada → pagada.
// rechazada is reachable from any state before cerrada (sale) / pagada (toll).
type EstadoLiquidacion string

const (
	LiquidacionPendienteAprobacion  EstadoLiquidacion = "pendiente_aprobacion"
	LiquidacionAprobada             EstadoLiquidacion = "aprobada"
	LiquidacionEsperandoReportes    EstadoLiquidacion = "esperando_reportes"
	LiquidacionEsperandoCierreVenta EstadoLiquidacion = "esperando_cierre_venta"
	LiquidacionCerrada              EstadoLiquidacion = "cerrada"
	LiquidacionPagada               EstadoLiquidacion = "pagada"
	LiquidacionRechazada            EstadoLiquidacion = "rechazada"
)

// Liquidacion is the financial result of toll processing or a sale.
// Amounts are USD unless suffixed BOB. They are fixed once the settlement is
// approved; corrections require a new settlement.
type Liquidacion struct {
	ID       uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Codigo   string            `gorm:"uniqueIndex;not null"`
	Tipo     TipoLiquidacion   `gorm:"type:varchar(30);not null"`
	Estado   EstadoLiquidacion `gorm:"type:varchar(30);not null;index"`
	SocioID  uuid.UUID         `gorm:"type:uuid;not null;index"`
	PlantaID *uuid.UUID        `gorm:"type:uuid"`

	// Toll inputs
	PesoTotalKg   decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0"`
	CostoUnitario decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0"`

	// Sale inputs
	ValorBrutoPrincipal  decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	ValorBrutoTraza      decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	CotizacionReferencia *decimal.Decimal `gorm:"type:decimal(18,4)"`
	UnidadCotizacion     *string          `gorm:"type:varchar(5)"`

	ValorBruto          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalServicios      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalDeducciones    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalDeduccionesBOB decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0;column:total_deducciones_bob"`
	ValorNetoUSD        decimal.Decimal `gorm:"type:decimal(18,4);not null;column:valor_neto_usd"`
	ValorNetoBOB        decimal.Decimal `gorm:"type:decimal(18,4);not null;column:valor_neto_bob"`
	TipoCambio          decimal.Decimal `gorm:"type:decimal(12,4);not null"`

	// Chemical-report reconciliation (sale only)
	DiferenciaReportes *decimal.Decimal `gorm:"type:decimal(10,4)"`
	RequiereRevision   bool             `gorm:"not null;default:false"`

	// Payment
	MetodoPago      *string `gorm:"type:varchar(30)"`
	ComprobantePago *string
	PagadoAt        *time.Time

	AprobadoAt    *time.Time
	MotivoRechazo *string
	PDFPath       *string `gorm:"column:pdf_path"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Deducciones  []LiquidacionDeduccion     `gorm:"foreignKey:LiquidacionID"`
	Servicios    []LiquidacionServicioLinea `gorm:"foreignKey:LiquidacionID"`
	Concentrados []LiquidacionConcentrado   `gorm:"foreignKey:LiquidacionID"`
	Lotes        []LiquidacionLote          `gorm:"foreignKey:LiquidacionID"`
	Reportes     []ReporteQuimico           `gorm:"foreignKey:LiquidacionID"`
	Historial    []LiquidacionHistorial     `gorm:"foreignKey:LiquidacionID"`
}

func (Liquidacion) TableName() string { return "liquidaciones" }

// BaseDeduccion is the gross figure a deduction percentage applies to.
type BaseDeduccion string

const (
	BasePrincipal BaseDeduccion = "principal"
	BaseTraza     BaseDeduccion = "traza"
	BaseTotal     BaseDeduccion = "total"
)

// LiquidacionDeduccion is one itemized reduction of a sale settlement.
type LiquidacionDeduccion struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LiquidacionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Concepto      string          `gorm:"not null"`
	Porcentaje    decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	Base          BaseDeduccion   `gorm:"type:varchar(20);not null"`
	MontoUSD      decimal.Decimal `gorm:"type:decimal(18,4);not null;column:monto_usd"`
	MontoBOB      decimal.Decimal `gorm:"type:decimal(18,4);not null;column:monto_bob"`
	Orden         int             `gorm:"not null"`
}

func (LiquidacionDeduccion) TableName() string { return "liquidacion_deducciones" }

// LiquidacionServicioLinea is an additional agreed service billed on a toll settlement.
type LiquidacionServicioLinea struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LiquidacionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Concepto      string          `gorm:"not null"`
	MontoUSD      decimal.Decimal `gorm:"type:decimal(18,4);not null;column:monto_usd"`
	Orden         int             `gorm:"not null"`
}

func (LiquidacionServicioLinea) TableName() string { return "liquidacion_servicios" }

type LiquidacionConcentrado struct {
	LiquidacionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConcentradoID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (LiquidacionConcentrado) TableName() string { return "liquidacion_concentrados" }

type LiquidacionLote struct {
	LiquidacionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	LoteID        uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (LiquidacionLote) TableName() string { return "liquidacion_lotes" }

// ConcentradoIDs lists the concentrates the settlement covers.
func (l *Liquidacion) ConcentradoIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.Concentrados))
	for _, c := range l.Concentrados {
		ids = append(ids, c.ConcentradoID)
	}
	return ids
}

// LoteIDs lists the lots the settlement covers.
func (l *Liquidacion) LoteIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.Lotes))
	for _, x := range l.Lotes {
		ids = append(ids, x.LoteID)
	}
	return ids
}
