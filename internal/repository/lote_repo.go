package repository

import (
	"context"

	"concentra/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoteRepository reads lots and moves their lifecycle status. Lot weights are
// never written here.
type LoteRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Lote, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Lote, error)
	// IDsConConcentrado returns the subset of ids already related to a concentrate.
	IDsConConcentrado(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	// UpdateEstadoTx moves every lot in ids whose status is in esperados.
	// It returns the number of rows moved.
	UpdateEstadoTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, esperados []model.EstadoLote, nuevo model.EstadoLote) (int64, error)
}

type loteRepo struct{ db *gorm.DB }

func NewLoteRepository(db *gorm.DB) LoteRepository { return &loteRepo{db: db} }

func (r *loteRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Lote, error) {
	var l model.Lote
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *loteRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Lote, error) {
	var lotes []model.Lote
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("codigo").Find(&lotes).Error
	return lotes, err
}

func (r *loteRepo) IDsConConcentrado(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.LoteConcentrado{}).
		Distinct("lote_id").Where("lote_id IN ?", ids).Pluck("lote_id", &out).Error
	return out, err
}

func (r *loteRepo) UpdateEstadoTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, esperados []model.EstadoLote, nuevo model.EstadoLote) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Lote{}).
		Where("id IN ? AND estado IN ?", ids, esperados).
		Update("estado", nuevo)
	return res.RowsAffected, res.Error
}
