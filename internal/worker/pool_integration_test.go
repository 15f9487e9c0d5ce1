//go:build integration

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"concentra/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	url, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type procesadorFunc func(ctx context.Context, raw json.RawMessage) error

func (f procesadorFunc) Process(ctx context.Context, raw json.RawMessage) error { return f(ctx, raw) }

func TestPool_ProcesaJobsEncolados(t *testing.T) {
	rdb := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var recibidas []model.Notificacion
	done := make(chan struct{}, 2)

	pool := NewPool(rdb)
	pool.Register(QueueNotificaciones, procesadorFunc(func(_ context.Context, raw json.RawMessage) error {
		var n model.Notificacion
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		mu.Lock()
		recibidas = append(recibidas, n)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}))
	pool.Start(ctx, 2)

	d := NewDispatcher(rdb)
	socio := uuid.New()
	require.NoError(t, d.Notificar(ctx, model.Notificacion{DestinatarioID: socio, Titulo: "a"}))
	require.NoError(t, d.Notificar(ctx, model.Notificacion{DestinatarioID: socio, Titulo: "b"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("jobs were not processed")
		}
	}
	cancel()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, recibidas, 2)
	n, err := DLQLength(context.Background(), rdb, QueueNotificaciones)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPool_FallosPersistentesVanALaDLQ(t *testing.T) {
	rdb := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	intentos := 0
	pool := NewPool(rdb)
	pool.backoff = 10 * time.Millisecond
	pool.Register(QueuePDF, procesadorFunc(func(context.Context, json.RawMessage) error {
		mu.Lock()
		intentos++
		mu.Unlock()
		return errors.New("render fallido")
	}))
	pool.Start(ctx, 1)

	liq := uuid.New()
	require.NoError(t, NewDispatcher(rdb).GenerarPDFLiquidacion(ctx, liq))

	require.Eventually(t, func() bool {
		n, err := DLQLength(context.Background(), rdb, QueuePDF)
		return err == nil && n == 1
	}, 10*time.Second, 50*time.Millisecond)
	cancel()
	pool.Wait()

	mu.Lock()
	assert.Equal(t, MaxJobAttempts, intentos)
	mu.Unlock()

	raw, err := rdb.LIndex(context.Background(), DLQPrefix+QueuePDF, 0).Bytes()
	require.NoError(t, err)
	var entry DLQEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, QueuePDF, entry.OriginalQueue)
	assert.Equal(t, "pdf", entry.JobType)
	assert.Equal(t, "render fallido", entry.Reason)
	assert.Equal(t, MaxJobAttempts, entry.Attempts)

	var payload PDFJobPayload
	require.NoError(t, json.Unmarshal(entry.Payload, &payload))
	assert.Equal(t, liq, payload.LiquidacionID)
}

func TestDispatcher_PublicaEnTopicosDePlantaYSocio(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	planta, socio := uuid.New(), uuid.New()
	sub := rdb.Subscribe(ctx, TopicPlanta(planta), TopicSocio(socio))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev := model.EventoEstado{
		Entidad:        "concentrado",
		EntidadID:      uuid.New(),
		Codigo:         "PLT1-SN-00001",
		EstadoAnterior: string(model.ConcentradoEnCaminoAPlanta),
		EstadoNuevo:    string(model.ConcentradoEnProceso),
		SocioID:        socio,
		PlantaID:       planta,
	}
	require.NoError(t, NewDispatcher(rdb).Publicar(ctx, ev))

	canales := map[string]bool{}
	ch := sub.Channel()
	for len(canales) < 2 {
		select {
		case msg := <-ch:
			var got model.EventoEstado
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			assert.Equal(t, ev.EntidadID, got.EntidadID)
			canales[msg.Channel] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("only received %v", canales)
		}
	}
	assert.True(t, canales[TopicPlanta(planta)])
	assert.True(t, canales[TopicSocio(socio)])
}
