package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"concentra/internal/infra"
	"concentra/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueNotificaciones = "jobs:notificaciones"
	QueueAuditoria      = "jobs:auditoria"
	QueuePDF            = "jobs:pdf"

	// MaxJobAttempts bounds in-process retries before a job goes to the DLQ.
	MaxJobAttempts = 3
)

// Queues lists every queue the pool consumes, in BRPOP priority order.
var Queues = []string{QueueAuditoria, QueueNotificaciones, QueuePDF}

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PDFJobPayload asks for a settlement document to be rendered.
type PDFJobPayload struct {
	LiquidacionID uuid.UUID `json:"liquidacion_id"`
}

// Dispatcher is the Redis side of every post-commit sink: it enqueues
// notification, audit and PDF jobs and publishes status events directly.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

func (d *Dispatcher) Notificar(ctx context.Context, n model.Notificacion) error {
	return d.enqueue(ctx, QueueNotificaciones, "notificacion", n)
}

func (d *Dispatcher) Auditar(ctx context.Context, r model.RegistroAuditoria) error {
	return d.enqueue(ctx, QueueAuditoria, "auditoria", r)
}

func (d *Dispatcher) GenerarPDFLiquidacion(ctx context.Context, liquidacionID uuid.UUID) error {
	return d.enqueue(ctx, QueuePDF, "pdf", PDFJobPayload{LiquidacionID: liquidacionID})
}

// Publicar fans the event out to the plant topic and the socio topic.
// Plant-less events (raw-lot sales) only reach the socio topic.
func (d *Dispatcher) Publicar(ctx context.Context, e model.EventoEstado) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := d.rdb.Pipeline()
	if e.PlantaID != uuid.Nil {
		pipe.Publish(ctx, TopicPlanta(e.PlantaID), data)
	}
	if e.SocioID != uuid.Nil {
		pipe.Publish(ctx, TopicSocio(e.SocioID), data)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func TopicPlanta(id uuid.UUID) string { return "concentrados:" + id.String() }
func TopicSocio(id uuid.UUID) string  { return "socios:" + id.String() }

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Processor handles one job payload. A returned error triggers a retry.
type Processor interface {
	Process(ctx context.Context, raw json.RawMessage) error
}

// Pool runs numWorkers goroutines blocked on BRPOP over every registered
// queue and routes each job to its queue's processor.
type Pool struct {
	rdb        *redis.Client
	processors map[string]Processor
	backoff    time.Duration
	// pausa is the wait after a failed BRPOP, so a Redis outage does not spin.
	pausa time.Duration
	wg    sync.WaitGroup
}

func NewPool(rdb *redis.Client) *Pool {
	return &Pool{rdb: rdb, processors: make(map[string]Processor), backoff: time.Second, pausa: 2 * time.Second}
}

// Register binds a processor to a queue. Must be called before Start.
func (p *Pool) Register(queue string, proc Processor) {
	p.processors[queue] = proc
}

// Start launches the workers. They stop when ctx is cancelled; Wait blocks
// until the in-flight jobs are done.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	queues := make([]string, 0, len(p.processors))
	for _, q := range Queues {
		if _, ok := p.processors[q]; ok {
			queues = append(queues, q)
		}
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i, queues)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) runWorker(ctx context.Context, id int, queues []string) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop, waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Warn().Err(err).Int("worker", id).Msg("brpop failed, pausing")
				select {
				case <-ctx.Done():
				case <-time.After(p.pausa):
				}
				continue
			}
			if len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		SendToDLQ(ctx, p.rdb, queue, "desconocido", json.RawMessage(fmt.Sprintf("%q", raw)), err.Error(), 0)
		return
	}
	proc, ok := p.processors[queue]
	if !ok {
		log.Error().Str("queue", queue).Msg("no processor registered")
		return
	}

	attempts := 0
	err := withRetry(ctx, MaxJobAttempts, p.backoff, func(attempt int) error {
		attempts = attempt + 1
		return proc.Process(ctx, job.Payload)
	})
	if err != nil {
		infra.JobsProcesadosTotal.WithLabelValues(queue, "dlq").Inc()
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload, err.Error(), attempts)
		return
	}
	infra.JobsProcesadosTotal.WithLabelValues(queue, "ok").Inc()
}

// withRetry calls fn up to maxAttempts times with exponential backoff:
// immediate, then base, 2*base, 4*base...
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := base * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", i+1).Msg("worker: job attempt failed")
			continue
		}
		return nil
	}
	return lastErr
}
