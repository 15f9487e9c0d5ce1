package repository

import (
	"context"

	"concentra/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConcentradoRepository interface {
	// CreateTx inserts the concentrate together with its lot relations,
	// kanban cards and initial history record.
	CreateTx(ctx context.Context, tx *gorm.DB, c *model.Concentrado) error
	NextCodigoSeq(ctx context.Context, tx *gorm.DB) (int, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Concentrado, error)
	FindByLiquidacionServicio(ctx context.Context, liquidacionID uuid.UUID) ([]model.Concentrado, error)
	// UpdateEstadoTx persists c.Estado only while the stored status is still in
	// esperados. Zero rows affected means another request moved it first.
	UpdateEstadoTx(ctx context.Context, tx *gorm.DB, c *model.Concentrado, esperados []model.EstadoConcentrado) (int64, error)
	// UpdatePesoFinalTx writes peso_final and merma once; rows with a final
	// weight already set are not touched.
	UpdatePesoFinalTx(ctx context.Context, tx *gorm.DB, c *model.Concentrado, esperados []model.EstadoConcentrado) (int64, error)
	// ReasignarLiquidacionServicioTx moves the given concentrates from the
	// anterior toll settlement to nueva. Rows already re-pointed are skipped.
	ReasignarLiquidacionServicioTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, anterior, nueva uuid.UUID) (int64, error)
	AppendHistorialTx(ctx context.Context, tx *gorm.DB, h *model.ConcentradoHistorial) error
	ListHistorial(ctx context.Context, concentradoID uuid.UUID) ([]model.ConcentradoHistorial, error)
	ListEtapas(ctx context.Context, concentradoID uuid.UUID) ([]model.ConcentradoEtapa, error)
	// UpdateEtapaTx saves one card while its stored status is still previo.
	UpdateEtapaTx(ctx context.Context, tx *gorm.DB, e *model.ConcentradoEtapa, previo model.EstadoEtapa) (int64, error)
	CreateReporteTx(ctx context.Context, tx *gorm.DB, r *model.ReporteQuimico) error
	DB() *gorm.DB
}

type concentradoRepo struct{ db *gorm.DB }

func NewConcentradoRepository(db *gorm.DB) ConcentradoRepository {
	return &concentradoRepo{db: db}
}

func (r *concentradoRepo) DB() *gorm.DB { return r.db }

func (r *concentradoRepo) CreateTx(ctx context.Context, tx *gorm.DB, c *model.Concentrado) error {
	return tx.WithContext(ctx).Create(c).Error
}

func (r *concentradoRepo) NextCodigoSeq(ctx context.Context, tx *gorm.DB) (int, error) {
	var n int
	err := tx.WithContext(ctx).Raw("SELECT nextval('concentrados_codigo_seq')").Scan(&n).Error
	return n, err
}

func (r *concentradoRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Concentrado, error) {
	var c model.Concentrado
	err := r.db.WithContext(ctx).
		Preload("Lotes").
		Preload("Etapas", func(db *gorm.DB) *gorm.DB { return db.Order("orden ASC") }).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *concentradoRepo) FindByLiquidacionServicio(ctx context.Context, liquidacionID uuid.UUID) ([]model.Concentrado, error) {
	var cs []model.Concentrado
	err := r.db.WithContext(ctx).
		Where("liquidacion_servicio_id = ?", liquidacionID).
		Order("codigo").Find(&cs).Error
	return cs, err
}

func (r *concentradoRepo) UpdateEstadoTx(ctx context.Context, tx *gorm.DB, c *model.Concentrado, esperados []model.EstadoConcentrado) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Concentrado{}).
		Where("id = ? AND estado IN ?", c.ID, esperados).
		Updates(map[string]any{"estado": c.Estado, "updated_at": c.UpdatedAt})
	return res.RowsAffected, res.Error
}

func (r *concentradoRepo) ReasignarLiquidacionServicioTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, anterior, nueva uuid.UUID) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Concentrado{}).
		Where("id IN ? AND liquidacion_servicio_id = ?", ids, anterior).
		Update("liquidacion_servicio_id", nueva)
	return res.RowsAffected, res.Error
}

func (r *concentradoRepo) UpdatePesoFinalTx(ctx context.Context, tx *gorm.DB, c *model.Concentrado, esperados []model.EstadoConcentrado) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Concentrado{}).
		Where("id = ? AND peso_final IS NULL AND estado IN ?", c.ID, esperados).
		Updates(map[string]any{
			"peso_final":     c.PesoFinal,
			"merma":          c.Merma,
			"merma_negativa": c.MermaNegativa,
			"updated_at":     c.UpdatedAt,
		})
	return res.RowsAffected, res.Error
}

// AppendHistorialTx assigns the next sequence number for the concentrate.
// The (concentrado_id, secuencia) unique index rejects concurrent writers.
func (r *concentradoRepo) AppendHistorialTx(ctx context.Context, tx *gorm.DB, h *model.ConcentradoHistorial) error {
	db := tx.WithContext(ctx)
	if err := db.Model(&model.ConcentradoHistorial{}).
		Where("concentrado_id = ?", h.ConcentradoID).
		Select("COALESCE(MAX(secuencia), 0) + 1").Scan(&h.Secuencia).Error; err != nil {
		return err
	}
	return db.Create(h).Error
}

func (r *concentradoRepo) ListHistorial(ctx context.Context, concentradoID uuid.UUID) ([]model.ConcentradoHistorial, error) {
	var hs []model.ConcentradoHistorial
	err := r.db.WithContext(ctx).Where("concentrado_id = ?", concentradoID).
		Order("secuencia ASC").Find(&hs).Error
	return hs, err
}

func (r *concentradoRepo) ListEtapas(ctx context.Context, concentradoID uuid.UUID) ([]model.ConcentradoEtapa, error) {
	var es []model.ConcentradoEtapa
	err := r.db.WithContext(ctx).Where("concentrado_id = ?", concentradoID).
		Order("orden ASC").Find(&es).Error
	return es, err
}

func (r *concentradoRepo) UpdateEtapaTx(ctx context.Context, tx *gorm.DB, e *model.ConcentradoEtapa, previo model.EstadoEtapa) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.ConcentradoEtapa{}).
		Where("id = ? AND estado = ?", e.ID, previo).
		Updates(map[string]any{
			"estado":          e.Estado,
			"inicio_at":       e.InicioAt,
			"fin_at":          e.FinAt,
			"nota":            e.Nota,
			"auto_completada": e.AutoCompletada,
			"updated_at":      e.UpdatedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *concentradoRepo) CreateReporteTx(ctx context.Context, tx *gorm.DB, rep *model.ReporteQuimico) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Create(rep).Error
}
