package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RegistroAuditoria is an append-only audit trail entry. Written by the audit
// worker, never by the services directly.
type RegistroAuditoria struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ActorID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"actor_id"`
	Accion      string         `gorm:"type:varchar(60);not null" json:"accion"`
	Entidad     string         `gorm:"type:varchar(30);not null" json:"entidad"`
	EntidadID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"entidad_id"`
	Antes       datatypes.JSON `gorm:"type:jsonb" json:"antes,omitempty"`
	Despues     datatypes.JSON `gorm:"type:jsonb" json:"despues,omitempty"`
	Descripcion string         `json:"descripcion"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (RegistroAuditoria) TableName() string { return "auditoria" }
