package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CrearConcentradosRequest splits a batch of lots into concentrates.
type CrearConcentradosRequest struct {
	PlantaID string   `json:"planta_id" validate:"required,uuid"`
	LoteIDs  []string `json:"lote_ids"  validate:"required,min=1,dive,uuid"`
}

// TransicionRequest is the body of plain transitions (despachar, listo, habilitar-venta).
type TransicionRequest struct {
	Observacion *string `json:"observacion" validate:"omitempty,max=500"`
}

type ReporteQuimicoRequest struct {
	Laboratorio  string           `json:"laboratorio"   validate:"required,max=120"`
	LeyPrincipal *decimal.Decimal `json:"ley_principal" validate:"omitempty,min=0,max=100"`
	LeyAgDM      *decimal.Decimal `json:"ley_ag_dm"     validate:"omitempty,min=0,max=100"`
	LeyAgGT      *decimal.Decimal `json:"ley_ag_gt"     validate:"omitempty,min=0"`
	Humedad      *decimal.Decimal `json:"humedad"       validate:"omitempty,min=0,max=100"`
	LeyPb        *decimal.Decimal `json:"ley_pb"        validate:"omitempty,min=0,max=100"`
	LeyZn        *decimal.Decimal `json:"ley_zn"        validate:"omitempty,min=0,max=100"`
	Observacion  *string          `json:"observacion"   validate:"omitempty,max=500"`
}

type PesoFinalRequest struct {
	PesoFinal   decimal.Decimal `json:"peso_final"  validate:"required"`
	Observacion *string         `json:"observacion" validate:"omitempty,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type LoteAporteResponse struct {
	LoteID       string          `json:"lote_id"`
	PesoAportado decimal.Decimal `json:"peso_aportado"`
	Porcentaje   decimal.Decimal `json:"porcentaje"`
}

type ConcentradoResponse struct {
	ID                      string               `json:"id"`
	Codigo                  string               `json:"codigo"`
	PlantaID                string               `json:"planta_id"`
	SocioID                 string               `json:"socio_id"`
	MineralPrincipal        string               `json:"mineral_principal"`
	MineralesSecundarios    []string             `json:"minerales_secundarios"`
	PorcentajeParticipacion decimal.Decimal      `json:"porcentaje_participacion"`
	PesoInicial             decimal.Decimal      `json:"peso_inicial"`
	PesoFinal               *decimal.Decimal     `json:"peso_final,omitempty"`
	Merma                   *decimal.Decimal     `json:"merma,omitempty"`
	MermaNegativa           bool                 `json:"merma_negativa"`
	Estado                  string               `json:"estado"`
	RequiereRevision        bool                 `json:"requiere_revision"`
	NotaRevision            *string              `json:"nota_revision,omitempty"`
	LiquidacionServicioID   *string              `json:"liquidacion_servicio_id,omitempty"`
	Lotes                   []LoteAporteResponse `json:"lotes"`
	CreatedAt               string               `json:"created_at"`
}

// CrearConcentradosResponse is returned by POST /v1/concentrados.
type CrearConcentradosResponse struct {
	Concentrados          []ConcentradoResponse `json:"concentrados"`
	LiquidacionServicioID string                `json:"liquidacion_servicio_id"`
}
