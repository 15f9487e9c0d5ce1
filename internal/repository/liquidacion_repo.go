package repository

import (
	"context"

	"concentra/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LiquidacionRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, l *model.Liquidacion) error
	NextCodigoSeq(ctx context.Context, tx *gorm.DB) (int, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Liquidacion, error)
	// UpdateTx persists the settlement's mutable columns while the stored
	// status is still in esperados.
	UpdateTx(ctx context.Context, tx *gorm.DB, l *model.Liquidacion, esperados []model.EstadoLiquidacion) (int64, error)
	// ReplaceServiciosTx swaps the extra-service lines of a pending toll settlement.
	ReplaceServiciosTx(ctx context.Context, tx *gorm.DB, liquidacionID uuid.UUID, servicios []model.LiquidacionServicioLinea) error
	AppendHistorialTx(ctx context.Context, tx *gorm.DB, h *model.LiquidacionHistorial) error
	ListHistorial(ctx context.Context, liquidacionID uuid.UUID) ([]model.LiquidacionHistorial, error)
	CreateReporteTx(ctx context.Context, tx *gorm.DB, r *model.ReporteQuimico) error
	UpdatePDFPath(ctx context.Context, id uuid.UUID, path string) error
	DB() *gorm.DB
}

type liquidacionRepo struct{ db *gorm.DB }

func NewLiquidacionRepository(db *gorm.DB) LiquidacionRepository {
	return &liquidacionRepo{db: db}
}

func (r *liquidacionRepo) DB() *gorm.DB { return r.db }

func (r *liquidacionRepo) CreateTx(ctx context.Context, tx *gorm.DB, l *model.Liquidacion) error {
	return tx.WithContext(ctx).Omit("Reportes", "Historial").Create(l).Error
}

func (r *liquidacionRepo) NextCodigoSeq(ctx context.Context, tx *gorm.DB) (int, error) {
	var n int
	err := tx.WithContext(ctx).Raw("SELECT nextval('liquidaciones_codigo_seq')").Scan(&n).Error
	return n, err
}

func (r *liquidacionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Liquidacion, error) {
	var l model.Liquidacion
	err := r.db.WithContext(ctx).
		Preload("Deducciones", func(db *gorm.DB) *gorm.DB { return db.Order("orden ASC") }).
		Preload("Servicios", func(db *gorm.DB) *gorm.DB { return db.Order("orden ASC") }).
		Preload("Concentrados").
		Preload("Lotes").
		Preload("Reportes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *liquidacionRepo) UpdateTx(ctx context.Context, tx *gorm.DB, l *model.Liquidacion, esperados []model.EstadoLiquidacion) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Liquidacion{}).
		Where("id = ? AND estado IN ?", l.ID, esperados).
		Updates(map[string]any{
			"estado":                l.Estado,
			"costo_unitario":        l.CostoUnitario,
			"valor_bruto":           l.ValorBruto,
			"total_servicios":       l.TotalServicios,
			"total_deducciones":     l.TotalDeducciones,
			"total_deducciones_bob": l.TotalDeduccionesBOB,
			"valor_neto_usd":        l.ValorNetoUSD,
			"valor_neto_bob":        l.ValorNetoBOB,
			"tipo_cambio":           l.TipoCambio,
			"diferencia_reportes":   l.DiferenciaReportes,
			"requiere_revision":     l.RequiereRevision,
			"metodo_pago":           l.MetodoPago,
			"comprobante_pago":      l.ComprobantePago,
			"pagado_at":             l.PagadoAt,
			"aprobado_at":           l.AprobadoAt,
			"motivo_rechazo":        l.MotivoRechazo,
			"updated_at":            l.UpdatedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *liquidacionRepo) ReplaceServiciosTx(ctx context.Context, tx *gorm.DB, liquidacionID uuid.UUID, servicios []model.LiquidacionServicioLinea) error {
	db := tx.WithContext(ctx)
	if err := db.Where("liquidacion_id = ?", liquidacionID).Delete(&model.LiquidacionServicioLinea{}).Error; err != nil {
		return err
	}
	if len(servicios) == 0 {
		return nil
	}
	return db.Create(&servicios).Error
}

func (r *liquidacionRepo) AppendHistorialTx(ctx context.Context, tx *gorm.DB, h *model.LiquidacionHistorial) error {
	db := tx.WithContext(ctx)
	if err := db.Model(&model.LiquidacionHistorial{}).
		Where("liquidacion_id = ?", h.LiquidacionID).
		Select("COALESCE(MAX(secuencia), 0) + 1").Scan(&h.Secuencia).Error; err != nil {
		return err
	}
	return db.Create(h).Error
}

func (r *liquidacionRepo) ListHistorial(ctx context.Context, liquidacionID uuid.UUID) ([]model.LiquidacionHistorial, error) {
	var hs []model.LiquidacionHistorial
	err := r.db.WithContext(ctx).Where("liquidacion_id = ?", liquidacionID).
		Order("secuencia ASC").Find(&hs).Error
	return hs, err
}

func (r *liquidacionRepo) CreateReporteTx(ctx context.Context, tx *gorm.DB, rep *model.ReporteQuimico) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Create(rep).Error
}

func (r *liquidacionRepo) UpdatePDFPath(ctx context.Context, id uuid.UUID, path string) error {
	return r.db.WithContext(ctx).Model(&model.Liquidacion{}).
		Where("id = ?", id).Update("pdf_path", path).Error
}
