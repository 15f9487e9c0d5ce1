package model

import (
	"time"

	"github.com/google/uuid"
)

// Notificacion is a request to notify one recipient. Delivery is owned by the
// worker pool; the services only produce these.
type Notificacion struct {
	DestinatarioID uuid.UUID         `json:"destinatario_id"`
	Categoria      string            `json:"categoria"`
	Titulo         string            `json:"titulo"`
	Mensaje        string            `json:"mensaje"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// EventoEstado is broadcast after every committed status change.
type EventoEstado struct {
	Entidad        string    `json:"entidad"` // concentrado | liquidacion
	EntidadID      uuid.UUID `json:"entidad_id"`
	Codigo         string    `json:"codigo"`
	EstadoAnterior string    `json:"estado_anterior"`
	EstadoNuevo    string    `json:"estado_nuevo"`
	Descripcion    string    `json:"descripcion"`
	SocioID        uuid.UUID `json:"socio_id"`
	PlantaID       uuid.UUID `json:"planta_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	OcurridoAt     time.Time `json:"ocurrido_at"`
}
