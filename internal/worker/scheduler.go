package worker

import (
	"context"
	"time"

	"concentra/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// RefrescadorCotizaciones is the quotation cache as seen by the scheduler.
type RefrescadorCotizaciones interface {
	ObtenerCotizaciones(ctx context.Context, forzar bool) (model.SnapshotCotizaciones, error)
}

// SchedulerConfig holds all dependencies for the periodic jobs.
type SchedulerConfig struct {
	Cache        RefrescadorCotizaciones
	RDB          *redis.Client
	BreakerState func() string
	RefrescoCron string // standard 5-field cron expression
}

// Scheduler runs the quotation warm-up and the DLQ gauge refresh.
type Scheduler struct {
	cron *cron.Cron
	cfg  SchedulerConfig
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	return &Scheduler{cron: cron.New(), cfg: cfg}
}

// Start registers the jobs and starts the cron runner. The first warm-up runs
// immediately so the cache is hot before the first request.
func (s *Scheduler) Start() error {
	if s.cfg.Cache != nil && s.cfg.RefrescoCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.RefrescoCron, s.refrescarCotizaciones); err != nil {
			return err
		}
		go s.refrescarCotizaciones()
	}
	if s.cfg.RDB != nil {
		if _, err := s.cron.AddFunc("@every 1m", s.metricasDLQ); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.Info().Msg("scheduler: started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler: stopped")
}

func (s *Scheduler) refrescarCotizaciones() {
	// Skip the tick while the provider is known to be down.
	if s.cfg.BreakerState != nil && s.cfg.BreakerState() == "open" {
		log.Debug().Msg("scheduler: pricing circuit open, skipping refresh")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := s.cfg.Cache.ObtenerCotizaciones(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: quotation refresh failed")
		return
	}
	log.Info().Str("origen", string(snap.Origen)).Int("cotizaciones", len(snap.Cotizaciones)).
		Msg("scheduler: quotations refreshed")
}

func (s *Scheduler) metricasDLQ() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ActualizarMetricasDLQ(ctx, s.cfg.RDB)
}
