package repository

import (
	"context"

	"concentra/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PlantaRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Planta, error)
}

type plantaRepo struct{ db *gorm.DB }

func NewPlantaRepository(db *gorm.DB) PlantaRepository { return &plantaRepo{db: db} }

// FindByID loads the plant with its stages ordered by Orden.
func (r *plantaRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Planta, error) {
	var p model.Planta
	err := r.db.WithContext(ctx).
		Preload("Etapas", func(db *gorm.DB) *gorm.DB { return db.Order("orden ASC") }).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
