package dto

type IniciarProcesamientoRequest struct {
	Nota *string `json:"nota" validate:"omitempty,max=500"`
}

type AvanzarEtapaRequest struct {
	OrdenDestino int     `json:"orden_destino" validate:"required,min=1"`
	Nota         *string `json:"nota"          validate:"omitempty,max=500"`
}

type EtapaResponse struct {
	Orden          int     `json:"orden"`
	Nombre         string  `json:"nombre"`
	Estado         string  `json:"estado"`
	InicioAt       *string `json:"inicio_at,omitempty"`
	FinAt          *string `json:"fin_at,omitempty"`
	Nota           *string `json:"nota,omitempty"`
	AutoCompletada bool    `json:"auto_completada"`
}

// TableroResponse is the kanban board of one concentrate, cards in stage order.
type TableroResponse struct {
	ConcentradoID string          `json:"concentrado_id"`
	Codigo        string          `json:"codigo"`
	Estado        string          `json:"estado"`
	EtapaActual   *int            `json:"etapa_actual,omitempty"`
	Etapas        []EtapaResponse `json:"etapas"`
}
