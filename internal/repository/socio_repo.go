package repository

import (
	"context"

	"concentra/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SocioRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Socio, error)
}

type socioRepo struct{ db *gorm.DB }

func NewSocioRepository(db *gorm.DB) SocioRepository { return &socioRepo{db: db} }

func (r *socioRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Socio, error) {
	var s model.Socio
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
