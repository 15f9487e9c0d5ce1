package service

import (
	"context"
	"sync"
	"time"

	"concentra/internal/apierror"
	"concentra/internal/dto"
	"concentra/internal/infra"
	"concentra/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ProveedorPrecios fetches live metal rates. Implementations must honour ctx.
type ProveedorPrecios interface {
	ObtenerTasas(ctx context.Context) (*model.TasasMetales, error)
}

// CotizacionStore mirrors the last good snapshot outside the process.
type CotizacionStore interface {
	Guardar(ctx context.Context, s model.SnapshotCotizaciones) error
	Cargar(ctx context.Context) (*model.SnapshotCotizaciones, error)
}

// onzasTroyPorTonelada converts a per-troy-ounce rate into a per-tonne price.
var onzasTroyPorTonelada = decimal.RequireFromString("32150.7466")

// minerales tracked by the cache, in snapshot order.
var mineralesCotizados = []model.Mineral{model.MineralSn, model.MineralZn, model.MineralAg}

// PreciosPredeterminados are served when no live or cached price exists.
func PreciosPredeterminados() map[model.Mineral]decimal.Decimal {
	return map[model.Mineral]decimal.Decimal{
		model.MineralSn: decimal.NewFromInt(32000),
		model.MineralZn: decimal.NewFromInt(2700),
		model.MineralAg: decimal.RequireFromString("30.5000"),
	}
}

type OpcionCache func(*CotizacionCache)

// ConReloj injects the clock; tests drive the validity window through it.
func ConReloj(ahora func() time.Time) OpcionCache {
	return func(c *CotizacionCache) { c.ahora = ahora }
}

// ConTTL and ConTimeout ignore non-positive values.
func ConTTL(ttl time.Duration) OpcionCache {
	return func(c *CotizacionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func ConTimeout(t time.Duration) OpcionCache {
	return func(c *CotizacionCache) {
		if t > 0 {
			c.timeout = t
		}
	}
}

func ConStore(s CotizacionStore) OpcionCache {
	return func(c *CotizacionCache) { c.store = s }
}

// ConPredeterminados replaces the static fallback prices. An empty map leaves
// the cache with no last resort, so reads can fail with PricingUnavailable.
func ConPredeterminados(p map[model.Mineral]decimal.Decimal) OpcionCache {
	return func(c *CotizacionCache) { c.predeterminados = p }
}

// CotizacionCache serves mineral quotations with a fixed validity window.
// A single mutex covers the whole read-check-refresh sequence, so concurrent
// readers of an expired cache trigger one fetch, not one each.
type CotizacionCache struct {
	mu              sync.Mutex
	proveedor       ProveedorPrecios
	store           CotizacionStore
	ahora           func() time.Time
	ttl             time.Duration
	timeout         time.Duration
	predeterminados map[model.Mineral]decimal.Decimal

	snapshot   *model.SnapshotCotizaciones
	invalidado bool
}

func NewCotizacionCache(p ProveedorPrecios, opts ...OpcionCache) *CotizacionCache {
	c := &CotizacionCache{
		proveedor:       p,
		ahora:           time.Now,
		ttl:             12 * time.Hour,
		timeout:         10 * time.Second,
		predeterminados: PreciosPredeterminados(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ObtenerCotizaciones returns the current snapshot, refreshing it when it is
// older than the TTL, invalidated, or forzar is set. A failed refresh never
// surfaces: the previous snapshot is served as obsoleto, then the mirrored
// one, then the static defaults.
func (c *CotizacionCache) ObtenerCotizaciones(ctx context.Context, forzar bool) (model.SnapshotCotizaciones, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.ahora()
	if !forzar && !c.invalidado && c.snapshot != nil && now.Sub(c.snapshot.ObtenidoAt) < c.ttl {
		infra.CotizacionLecturasTotal.WithLabelValues("hit").Inc()
		s := *c.snapshot
		s.Origen = model.SnapshotCache
		return s, nil
	}
	infra.CotizacionLecturasTotal.WithLabelValues("miss").Inc()

	snap, err := c.refrescar(ctx, now)
	if err == nil {
		c.snapshot = snap
		c.invalidado = false
		log.Info().Time("obtenido_at", snap.ObtenidoAt).Int("minerales", len(snap.Cotizaciones)).Msg("cotizaciones: cache actualizada")
		if c.store != nil {
			if err := c.store.Guardar(ctx, *snap); err != nil {
				log.Warn().Err(err).Msg("cotizaciones: no se pudo replicar el snapshot")
			}
		}
		return *snap, nil
	}
	log.Warn().Err(err).Msg("cotizaciones: fallo la consulta al proveedor, usando respaldo")

	if c.snapshot == nil && c.store != nil {
		if guardado, err := c.store.Cargar(ctx); err == nil && guardado != nil && len(guardado.Cotizaciones) > 0 {
			c.snapshot = guardado
		}
	}
	if c.snapshot != nil {
		infra.CotizacionLecturasTotal.WithLabelValues("obsoleto").Inc()
		s := *c.snapshot
		s.Origen = model.SnapshotObsoleto
		return s, nil
	}

	if len(c.predeterminados) == 0 {
		return model.SnapshotCotizaciones{}, &apierror.Error{
			Kind:   apierror.KindPricingUnavailable,
			Detail: "no hay cotizaciones disponibles",
			Err:    err,
		}
	}
	infra.CotizacionLecturasTotal.WithLabelValues("predeterminado").Inc()
	return c.snapshotPredeterminado(now), nil
}

// Precio returns the quotation of one mineral from the current snapshot.
func (c *CotizacionCache) Precio(ctx context.Context, m model.Mineral) (model.Cotizacion, error) {
	s, err := c.ObtenerCotizaciones(ctx, false)
	if err != nil {
		return model.Cotizacion{}, err
	}
	cot, ok := s.Buscar(m)
	if !ok {
		return model.Cotizacion{}, &apierror.Error{Kind: apierror.KindPricingUnavailable, Detail: "sin cotizacion para " + string(m)}
	}
	return cot, nil
}

// Invalidar forces the next read to go to the provider. The current snapshot
// is kept as the stale fallback.
func (c *CotizacionCache) Invalidar() {
	c.mu.Lock()
	c.invalidado = true
	c.mu.Unlock()
	log.Info().Msg("cotizaciones: cache invalidada")
}

func (c *CotizacionCache) refrescar(ctx context.Context, now time.Time) (*model.SnapshotCotizaciones, error) {
	if c.proveedor == nil {
		return nil, &apierror.Error{Kind: apierror.KindPricingUnavailable, Detail: "proveedor de precios no configurado"}
	}
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	inicio := time.Now()
	tasas, err := c.proveedor.ObtenerTasas(fctx)
	infra.CotizacionFetchDuracion.Observe(time.Since(inicio).Seconds())
	if err != nil {
		return nil, err
	}
	cots, err := convertirTasas(tasas)
	if err != nil {
		return nil, err
	}
	return &model.SnapshotCotizaciones{Cotizaciones: cots, ObtenidoAt: now, Origen: model.SnapshotVivo}, nil
}

// convertirTasas turns "metal units per USD" rates into USD prices:
// Ag per troy ounce, heavy minerals per tonne.
func convertirTasas(t *model.TasasMetales) ([]model.Cotizacion, error) {
	out := make([]model.Cotizacion, 0, len(mineralesCotizados))
	for _, m := range mineralesCotizados {
		tasa, ok := t.Tasas[m]
		if !ok || !tasa.IsPositive() {
			return nil, apierror.Validation("tasa invalida o ausente para %s", m)
		}
		porOnza := decimal.NewFromInt(1).Div(tasa)
		cot := model.Cotizacion{Mineral: m, Fuente: t.Fuente, FechaCorte: t.FechaCorte}
		if m.EsPesado() {
			cot.Precio = redondear(porOnza.Mul(onzasTroyPorTonelada))
			cot.Unidad = model.UnidadTonelada
		} else {
			cot.Precio = redondear(porOnza)
			cot.Unidad = model.UnidadOnzaTroy
		}
		out = append(out, cot)
	}
	return out, nil
}

func (c *CotizacionCache) snapshotPredeterminado(now time.Time) model.SnapshotCotizaciones {
	s := model.SnapshotCotizaciones{ObtenidoAt: now, Origen: model.SnapshotPredeterminado}
	for _, m := range mineralesCotizados {
		p, ok := c.predeterminados[m]
		if !ok {
			continue
		}
		unidad := model.UnidadOnzaTroy
		if m.EsPesado() {
			unidad = model.UnidadTonelada
		}
		s.Cotizaciones = append(s.Cotizaciones, model.Cotizacion{
			Mineral: m, Precio: p, Unidad: unidad, Fuente: "predeterminado", FechaCorte: now,
		})
	}
	return s
}

// Listar returns the current snapshot as a response body.
func (c *CotizacionCache) Listar(ctx context.Context, forzar bool) (*dto.CotizacionesResponse, error) {
	s, err := c.ObtenerCotizaciones(ctx, forzar)
	if err != nil {
		return nil, err
	}
	resp := &dto.CotizacionesResponse{
		Cotizaciones: make([]dto.CotizacionResponse, 0, len(s.Cotizaciones)),
		ObtenidoAt:   formatTime(s.ObtenidoAt),
		Origen:       string(s.Origen),
	}
	for _, cot := range s.Cotizaciones {
		resp.Cotizaciones = append(resp.Cotizaciones, dto.CotizacionResponse{
			Mineral:    string(cot.Mineral),
			Precio:     cot.Precio,
			Unidad:     string(cot.Unidad),
			Fuente:     cot.Fuente,
			FechaCorte: formatTime(cot.FechaCorte),
		})
	}
	return resp, nil
}
