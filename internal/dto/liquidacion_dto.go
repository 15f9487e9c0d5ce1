package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type ServicioAdicionalRequest struct {
	Concepto string          `json:"concepto"  validate:"required,max=120"`
	MontoUSD decimal.Decimal `json:"monto_usd" validate:"min=0"`
}

type SolicitarLiquidacionServicioRequest struct {
	Servicios  []ServicioAdicionalRequest `json:"servicios"   validate:"omitempty,dive"`
	TipoCambio decimal.Decimal            `json:"tipo_cambio" validate:"required,gt=0"`
}

type DeduccionRequest struct {
	Concepto   string          `json:"concepto"   validate:"required,max=120"`
	Porcentaje decimal.Decimal `json:"porcentaje" validate:"min=0,max=100"`
	Base       string          `json:"base"       validate:"required,oneof=principal traza total"`
}

// CrearLiquidacionVentaRequest opens a sale settlement for exactly one subject:
// a concentrate or a raw lot. Gross values are priced by the caller.
type CrearLiquidacionVentaRequest struct {
	ConcentradoID       *string            `json:"concentrado_id"        validate:"omitempty,uuid"`
	LoteID              *string            `json:"lote_id"               validate:"omitempty,uuid"`
	ValorBrutoPrincipal decimal.Decimal    `json:"valor_bruto_principal" validate:"min=0"`
	ValorBrutoTraza     decimal.Decimal    `json:"valor_bruto_traza"     validate:"min=0"`
	Deducciones         []DeduccionRequest `json:"deducciones"           validate:"omitempty,dive"`
	// TipoCambio defaults to the configured rate when zero.
	TipoCambio decimal.Decimal `json:"tipo_cambio" validate:"min=0"`
}

type RegistrarPagoRequest struct {
	MetodoPago  string  `json:"metodo_pago" validate:"required,oneof=efectivo transferencia cheque"`
	Comprobante *string `json:"comprobante" validate:"omitempty,max=120"`
}

type RechazarLiquidacionRequest struct {
	Motivo string `json:"motivo" validate:"required,min=3,max=500"`
}

// ReemitirLiquidacionServicioRequest replaces a rejected toll settlement.
// TipoCambio defaults to the rejected settlement's rate when zero.
type ReemitirLiquidacionServicioRequest struct {
	TipoCambio decimal.Decimal `json:"tipo_cambio" validate:"min=0"`
}

type RegistrarReporteVentaRequest struct {
	Origen string `json:"origen" validate:"required,oneof=socio comprador"`
	ReporteQuimicoRequest
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type DeduccionResponse struct {
	Orden      int             `json:"orden"`
	Concepto   string          `json:"concepto"`
	Porcentaje decimal.Decimal `json:"porcentaje"`
	Base       string          `json:"base"`
	MontoUSD   decimal.Decimal `json:"monto_usd"`
	MontoBOB   decimal.Decimal `json:"monto_bob"`
}

type ServicioResponse struct {
	Concepto string          `json:"concepto"`
	MontoUSD decimal.Decimal `json:"monto_usd"`
}

type ReporteQuimicoResponse struct {
	ID           string           `json:"id"`
	Origen       string           `json:"origen"`
	Laboratorio  string           `json:"laboratorio"`
	LeyPrincipal *decimal.Decimal `json:"ley_principal,omitempty"`
	LeyAgDM      *decimal.Decimal `json:"ley_ag_dm,omitempty"`
	LeyAgGT      *decimal.Decimal `json:"ley_ag_gt,omitempty"`
	Humedad      *decimal.Decimal `json:"humedad,omitempty"`
	LeyPb        *decimal.Decimal `json:"ley_pb,omitempty"`
	LeyZn        *decimal.Decimal `json:"ley_zn,omitempty"`
}

type LiquidacionResponse struct {
	ID                   string                   `json:"id"`
	Codigo               string                   `json:"codigo"`
	Tipo                 string                   `json:"tipo"`
	Estado               string                   `json:"estado"`
	SocioID              string                   `json:"socio_id"`
	PesoTotalKg          decimal.Decimal          `json:"peso_total_kg"`
	CostoUnitario        decimal.Decimal          `json:"costo_unitario"`
	CotizacionReferencia *decimal.Decimal         `json:"cotizacion_referencia,omitempty"`
	UnidadCotizacion     *string                  `json:"unidad_cotizacion,omitempty"`
	ValorBruto           decimal.Decimal          `json:"valor_bruto"`
	TotalServicios       decimal.Decimal          `json:"total_servicios"`
	TotalDeducciones     decimal.Decimal          `json:"total_deducciones"`
	TotalDeduccionesBOB  decimal.Decimal          `json:"total_deducciones_bob"`
	ValorNetoUSD         decimal.Decimal          `json:"valor_neto_usd"`
	ValorNetoBOB         decimal.Decimal          `json:"valor_neto_bob"`
	TipoCambio           decimal.Decimal          `json:"tipo_cambio"`
	DiferenciaReportes   *decimal.Decimal         `json:"diferencia_reportes,omitempty"`
	RequiereRevision     bool                     `json:"requiere_revision"`
	MetodoPago           *string                  `json:"metodo_pago,omitempty"`
	ComprobantePago      *string                  `json:"comprobante_pago,omitempty"`
	PagadoAt             *string                  `json:"pagado_at,omitempty"`
	MotivoRechazo        *string                  `json:"motivo_rechazo,omitempty"`
	ConcentradoIDs       []string                 `json:"concentrado_ids"`
	LoteIDs              []string                 `json:"lote_ids"`
	Deducciones          []DeduccionResponse      `json:"deducciones"`
	Servicios            []ServicioResponse       `json:"servicios"`
	Reportes             []ReporteQuimicoResponse `json:"reportes"`
	CreatedAt            string                   `json:"created_at"`
}
