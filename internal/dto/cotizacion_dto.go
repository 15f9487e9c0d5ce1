package dto

import "github.com/shopspring/decimal"

type CotizacionResponse struct {
	Mineral    string          `json:"mineral"`
	Precio     decimal.Decimal `json:"precio"`
	Unidad     string          `json:"unidad"`
	Fuente     string          `json:"fuente"`
	FechaCorte string          `json:"fecha_corte"`
}

// CotizacionesResponse is returned by GET /v1/cotizaciones. Origen tells
// whether prices are live, cached, stale or the static defaults.
type CotizacionesResponse struct {
	Cotizaciones []CotizacionResponse `json:"cotizaciones"`
	ObtenidoAt   string               `json:"obtenido_at"`
	Origen       string               `json:"origen"`
}
