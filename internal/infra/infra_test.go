package infra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"concentra/internal/config"
	"concentra/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── CircuitBreaker ────────────────────────────────────────────────────────────

func TestCircuitBreaker_AbreTrasFallosConsecutivos(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", FailureThreshold: 2, MaxRequests: 1, OpenTimeout: time.Hour})
	assert.Equal(t, "closed", cb.State())

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, "closed", cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, "open", cb.State())

	llamado := false
	err := cb.Execute(func() error { llamado = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, llamado)
}

func TestCircuitBreaker_ExitoReiniciaConteo(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", FailureThreshold: 2, OpenTimeout: time.Hour})
	boom := errors.New("boom")

	_ = cb.Execute(func() error { return boom })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, "closed", cb.State())
}

func TestDefaultCBConfig(t *testing.T) {
	cfg := DefaultCBConfig("precios")
	assert.Equal(t, "precios", cfg.Name)
	assert.Equal(t, uint32(5), cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.OpenTimeout)
}

// ── PreciosClient ─────────────────────────────────────────────────────────────

func nuevoCliente(t *testing.T, h http.HandlerFunc, threshold uint32) *PreciosClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := &config.Config{PreciosAPIURL: srv.URL + "/", PreciosAPIKey: "clave", PreciosTimeoutSeconds: 2}
	return NewPreciosClient(cfg, NewCircuitBreaker(CircuitBreakerConfig{Name: "test", FailureThreshold: threshold, OpenTimeout: time.Hour}))
}

func responderJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestPreciosClient_ObtenerTasas(t *testing.T) {
	c := nuevoCliente(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "clave", q.Get("api_key"))
		assert.Equal(t, "USD", q.Get("base"))
		simbolos := strings.Split(q.Get("currencies"), ",")
		assert.ElementsMatch(t, []string{"XAG", "TIN", "ZNC"}, simbolos)
		responderJSON(w, http.StatusOK, `{"success":true,"base":"USD","timestamp":1767268800,
			"rates":{"XAG":0.0327,"TIN":0.0000321234567890123456789,"ZNC":0.00037}}`)
	}, 5)

	tasas, err := c.ObtenerTasas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "metalpriceapi", tasas.Fuente)
	assert.Equal(t, time.Unix(1767268800, 0).UTC(), tasas.FechaCorte)
	require.Len(t, tasas.Tasas, 3)
	assert.True(t, tasas.Tasas[model.MineralAg].Equal(decimal.RequireFromString("0.0327")))
	// Rates are decoded as decimals, with no float64 step losing digits.
	assert.Equal(t, "0.0000321234567890123456789", tasas.Tasas[model.MineralSn].String())
	assert.True(t, tasas.Tasas[model.MineralZn].Equal(decimal.RequireFromString("0.00037")))
}

func TestPreciosClient_OmiteTasasFaltantes(t *testing.T) {
	c := nuevoCliente(t, func(w http.ResponseWriter, _ *http.Request) {
		responderJSON(w, http.StatusOK, `{"success":true,"timestamp":1767268800,"rates":{"XAG":0.0327,"TIN":0}}`)
	}, 5)

	tasas, err := c.ObtenerTasas(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasas.Tasas, 1)
	assert.Contains(t, tasas.Tasas, model.MineralAg)
}

func TestPreciosClient_Errores(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"error del proveedor", http.StatusUnauthorized, `{"success":false,"error":{"statusCode":401,"message":"invalid api key"}}`, "precios: invalid api key (status 401)"},
		{"status sin cuerpo", http.StatusBadGateway, `{}`, "precios: unexpected status 502"},
		{"success false", http.StatusOK, `{"success":false}`, "precios: provider reported failure"},
		{"sin tasas", http.StatusOK, `{"success":true,"rates":{}}`, "precios: response carried no usable rates"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := nuevoCliente(t, func(w http.ResponseWriter, _ *http.Request) {
				responderJSON(w, tc.status, tc.body)
			}, 5)
			_, err := c.ObtenerTasas(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestPreciosClient_CircuitoAbiertoNoLlamaAlProveedor(t *testing.T) {
	var hits atomic.Int32
	c := nuevoCliente(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		responderJSON(w, http.StatusInternalServerError, `{}`)
	}, 2)

	for i := 0; i < 2; i++ {
		_, err := c.ObtenerTasas(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	_, err := c.ObtenerTasas(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

// ── PDF ───────────────────────────────────────────────────────────────────────

func ptr[T any](v T) *T { return &v }

func TestGenerarLiquidacionPDF_Venta(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "liquidaciones")
	pagado := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	l := &model.Liquidacion{
		ID:                   uuid.New(),
		Codigo:               "LIQ-V-000001",
		Tipo:                 model.LiquidacionVentaConcentrado,
		Estado:               model.LiquidacionPagada,
		ValorBrutoPrincipal:  decimal.NewFromInt(20000),
		ValorBruto:           decimal.NewFromInt(20000),
		CotizacionReferencia: ptr(decimal.NewFromInt(32000)),
		UnidadCotizacion:     ptr("t"),
		TotalDeducciones:     decimal.NewFromInt(1000),
		ValorNetoUSD:         decimal.NewFromInt(19000),
		ValorNetoBOB:         decimal.NewFromInt(132240),
		TipoCambio:           decimal.RequireFromString("6.96"),
		DiferenciaReportes:   ptr(decimal.RequireFromString("1.92")),
		MetodoPago:           ptr("cheque"),
		ComprobantePago:      ptr("CH-0042"),
		PagadoAt:             &pagado,
		CreatedAt:            pagado.Add(-72 * time.Hour),
		Deducciones: []model.LiquidacionDeduccion{
			{Concepto: "Regalia minera", Porcentaje: decimal.NewFromInt(5), Base: model.BasePrincipal, MontoUSD: decimal.NewFromInt(1000)},
		},
	}

	path, err := GenerarLiquidacionPDF(l, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "LIQ-V-000001.pdf"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "%PDF-"))
}

func TestGenerarLiquidacionPDF_Servicio(t *testing.T) {
	dir := t.TempDir()
	l := &model.Liquidacion{
		Codigo:           "LIQ-S-000007",
		Tipo:             model.LiquidacionServicio,
		Estado:           model.LiquidacionPendienteAprobacion,
		PesoTotalKg:      decimal.NewFromInt(1200),
		CostoUnitario:    decimal.NewFromInt(45),
		ValorBruto:       decimal.NewFromInt(54),
		TotalServicios:   decimal.NewFromInt(10),
		ValorNetoUSD:     decimal.NewFromInt(64),
		ValorNetoBOB:     decimal.RequireFromString("445.44"),
		TipoCambio:       decimal.RequireFromString("6.96"),
		RequiereRevision: true,
		CreatedAt:        time.Now(),
		Servicios: []model.LiquidacionServicioLinea{
			{Concepto: "Transporte", MontoUSD: decimal.NewFromInt(10)},
		},
	}

	path, err := GenerarLiquidacionPDF(l, dir)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
