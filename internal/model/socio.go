package model

import "github.com/google/uuid"

// Socio is the producer owning lots and concentrates. The record is managed
// upstream; only the contact fields are read here.
type Socio struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Nombre string    `gorm:"not null"`
	Email  *string
}

func (Socio) TableName() string { return "socios" }
