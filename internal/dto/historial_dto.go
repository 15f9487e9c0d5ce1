package dto

import "encoding/json"

// HistorialItem is one entry of a concentrate or settlement status log.
type HistorialItem struct {
	Secuencia      int             `json:"secuencia"`
	EstadoAnterior string          `json:"estado_anterior"`
	EstadoNuevo    string          `json:"estado_nuevo"`
	Descripcion    string          `json:"descripcion"`
	Observacion    *string         `json:"observacion,omitempty"`
	ActorID        string          `json:"actor_id"`
	Canal          string          `json:"canal"`
	IP             string          `json:"ip,omitempty"`
	Detalle        json.RawMessage `json:"detalle,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

type HistorialListResponse struct {
	Data  []HistorialItem `json:"data"`
	Total int             `json:"total"`
}
