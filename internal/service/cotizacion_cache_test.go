package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"concentra/internal/apierror"
	"concentra/internal/model"
	"concentra/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

type stubProveedor struct {
	llamadas atomic.Int32
	fallar   atomic.Bool
	tasas    map[model.Mineral]decimal.Decimal
}

func newStubProveedor() *stubProveedor {
	return &stubProveedor{tasas: map[model.Mineral]decimal.Decimal{
		model.MineralAg: dec("0.04"), // 25 USD/oz
		model.MineralSn: dec("0.5"),  // 2 USD/oz → 64301.4932 USD/t
		model.MineralZn: dec("1"),    // 1 USD/oz → 32150.7466 USD/t
	}}
}

func (p *stubProveedor) ObtenerTasas(_ context.Context) (*model.TasasMetales, error) {
	p.llamadas.Add(1)
	if p.fallar.Load() {
		return nil, errors.New("proveedor caido")
	}
	return &model.TasasMetales{Tasas: p.tasas, Fuente: "stub", FechaCorte: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

type stubStore struct {
	guardado *model.SnapshotCotizaciones
}

func (s *stubStore) Guardar(_ context.Context, snap model.SnapshotCotizaciones) error {
	s.guardado = &snap
	return nil
}

func (s *stubStore) Cargar(_ context.Context) (*model.SnapshotCotizaciones, error) {
	return s.guardado, nil
}

var _ service.CotizacionStore = (*stubStore)(nil)

type reloj struct{ t time.Time }

func (r *reloj) ahora() time.Time        { return r.t }
func (r *reloj) avanzar(d time.Duration) { r.t = r.t.Add(d) }

func newCache(p service.ProveedorPrecios, r *reloj, opts ...service.OpcionCache) *service.CotizacionCache {
	return service.NewCotizacionCache(p, append([]service.OpcionCache{service.ConReloj(r.ahora)}, opts...)...)
}

func precioDe(t *testing.T, s model.SnapshotCotizaciones, m model.Mineral) model.Cotizacion {
	t.Helper()
	c, ok := s.Buscar(m)
	require.True(t, ok, "sin cotizacion para %s", m)
	return c
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestCache_PrimeraLecturaConsultaYConvierte(t *testing.T) {
	p := newStubProveedor()
	r := &reloj{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	c := newCache(p, r)

	snap, err := c.ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, model.SnapshotVivo, snap.Origen)
	assert.Equal(t, r.t, snap.ObtenidoAt)
	ag := precioDe(t, snap, model.MineralAg)
	assert.Equal(t, "25.0000", ag.Precio.StringFixed(4))
	assert.Equal(t, model.UnidadOnzaTroy, ag.Unidad)
	sn := precioDe(t, snap, model.MineralSn)
	assert.Equal(t, "64301.4932", sn.Precio.StringFixed(4))
	assert.Equal(t, model.UnidadTonelada, sn.Unidad)
	assert.Equal(t, "32150.7466", precioDe(t, snap, model.MineralZn).Precio.StringFixed(4))
	assert.EqualValues(t, 1, p.llamadas.Load())
}

func TestCache_DentroDeVentanaNoConsulta(t *testing.T) {
	p := newStubProveedor()
	r := &reloj{t: time.Now()}
	c := newCache(p, r)

	_, err := c.ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)
	r.avanzar(11 * time.Hour)
	snap, err := c.ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, model.SnapshotCache, snap.Origen)
	assert.EqualValues(t, 1, p.llamadas.Load())

	r.avanzar(2 * time.Hour)
	snap, err = c.ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotVivo, snap.Origen)
	assert.EqualValues(t, 2, p.llamadas.Load())
}

func TestCache_ForzarEInvalidarConsultan(t *testing.T) {
	p := newStubProveedor()
	c := newCache(p, &reloj{t: time.Now()})
	ctx := context.Background()

	_, _ = c.ObtenerCotizaciones(ctx, false)
	_, _ = c.ObtenerCotizaciones(ctx, true)
	assert.EqualValues(t, 2, p.llamadas.Load())

	c.Invalidar()
	_, _ = c.ObtenerCotizaciones(ctx, false)
	assert.EqualValues(t, 3, p.llamadas.Load())

	// Invalidation is consumed by the successful refresh.
	_, _ = c.ObtenerCotizaciones(ctx, false)
	assert.EqualValues(t, 3, p.llamadas.Load())
}

func TestCache_FalloDevuelveSnapshotObsoleto(t *testing.T) {
	p := newStubProveedor()
	r := &reloj{t: time.Now()}
	c := newCache(p, r)
	ctx := context.Background()

	prev, err := c.ObtenerCotizaciones(ctx, false)
	require.NoError(t, err)

	p.fallar.Store(true)
	r.avanzar(13 * time.Hour)
	snap, err := c.ObtenerCotizaciones(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, model.SnapshotObsoleto, snap.Origen)
	assert.Equal(t, prev.ObtenidoAt, snap.ObtenidoAt)
	assert.True(t, precioDe(t, prev, model.MineralAg).Precio.Equal(precioDe(t, snap, model.MineralAg).Precio))
}

func TestCache_SinSnapshotUsaPredeterminados(t *testing.T) {
	p := newStubProveedor()
	p.fallar.Store(true)
	c := newCache(p, &reloj{t: time.Now()})

	snap, err := c.ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, model.SnapshotPredeterminado, snap.Origen)
	assert.Equal(t, "32000", precioDe(t, snap, model.MineralSn).Precio.String())
	assert.Equal(t, "2700", precioDe(t, snap, model.MineralZn).Precio.String())
	assert.Equal(t, "30.5", precioDe(t, snap, model.MineralAg).Precio.String())
}

func TestCache_SinRespaldoEsPricingUnavailable(t *testing.T) {
	p := newStubProveedor()
	p.fallar.Store(true)
	c := newCache(p, &reloj{t: time.Now()}, service.ConPredeterminados(map[model.Mineral]decimal.Decimal{}))

	_, err := c.ObtenerCotizaciones(context.Background(), false)
	assert.ErrorIs(t, err, apierror.ErrPricingUnavailable)

	_, err = c.Precio(context.Background(), model.MineralSn)
	assert.ErrorIs(t, err, apierror.ErrPricingUnavailable)
}

func TestCache_TasaAusenteCuentaComoFallo(t *testing.T) {
	p := newStubProveedor()
	delete(p.tasas, model.MineralZn)
	c := newCache(p, &reloj{t: time.Now()})

	snap, err := c.ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotPredeterminado, snap.Origen)
}

func TestCache_ReplicaYRecuperaDesdeStore(t *testing.T) {
	store := &stubStore{}
	p := newStubProveedor()
	r := &reloj{t: time.Now()}

	_, err := newCache(p, r, service.ConStore(store)).ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)
	require.NotNil(t, store.guardado)

	// A new process whose provider is down serves the mirrored snapshot.
	caido := newStubProveedor()
	caido.fallar.Store(true)
	snap, err := newCache(caido, r, service.ConStore(store)).ObtenerCotizaciones(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotObsoleto, snap.Origen)
	assert.Equal(t, "25.0000", precioDe(t, snap, model.MineralAg).Precio.StringFixed(4))
}

func TestCache_LectoresConcurrentesUnaSolaConsulta(t *testing.T) {
	p := newStubProveedor()
	c := newCache(p, &reloj{t: time.Now()})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Precio(context.Background(), model.MineralSn)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, p.llamadas.Load())
}

func TestCache_Listar(t *testing.T) {
	c := newCache(newStubProveedor(), &reloj{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)})

	resp, err := c.Listar(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "vivo", resp.Origen)
	assert.Equal(t, "2026-03-01T08:00:00Z", resp.ObtenidoAt)
	require.Len(t, resp.Cotizaciones, 3)
	assert.Equal(t, "Sn", resp.Cotizaciones[0].Mineral)
	assert.Equal(t, "t", resp.Cotizaciones[0].Unidad)
}
