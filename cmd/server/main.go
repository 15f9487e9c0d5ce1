package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concentra/internal/config"
	"concentra/internal/infra"
	"concentra/internal/middleware"
	"concentra/internal/repository"
	"concentra/internal/router"
	"concentra/internal/service"
	"concentra/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: dev pretty, prod JSON
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	tipoCambio, err := cfg.TipoCambio()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid exchange rate")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Quotations ───────────────────────────────────────────────────────────
	preciosCB := infra.NewCircuitBreaker(infra.DefaultCBConfig("precios"))
	precios := infra.NewPreciosClient(cfg, preciosCB)
	cache := service.NewCotizacionCache(precios,
		service.ConTTL(time.Duration(cfg.CotizacionTTLHours)*time.Hour),
		service.ConTimeout(time.Duration(cfg.PreciosTimeoutSeconds)*time.Second),
		service.ConStore(infra.NewCotizacionStore(rdb)),
	)

	// ── Async side effects ───────────────────────────────────────────────────
	// Worker processors are wired here (composition root) so the pool has
	// full access to infrastructure dependencies.
	dispatcher := worker.NewDispatcher(rdb)
	emisor := service.NewEmisor(dispatcher, dispatcher, dispatcher, dispatcher)

	pool := worker.NewPool(rdb)
	pool.Register(worker.QueueNotificaciones, worker.NewNotificacionWorker(
		repository.NewSocioRepository(db), infra.NewMailer(cfg), cfg.NotificacionesEmail))
	pool.Register(worker.QueueAuditoria, worker.NewAuditoriaWorker(repository.NewAuditoriaRepository(db)))
	pool.Register(worker.QueuePDF, worker.NewPDFWorker(
		repository.NewLiquidacionRepository(db), dispatcher, cfg.PDFStoragePath))
	pool.Start(ctx, cfg.WorkerPoolSize)

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Cache:        cache,
		RDB:          rdb,
		BreakerState: preciosCB.State,
		RefrescoCron: cfg.CotizacionRefreshCron,
	})
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPM, time.Minute)
	limiter.StartPurge(ctx, 5*time.Minute)

	r := router.New(cfg, router.Deps{
		DB:         db,
		RDB:        rdb,
		Emisor:     emisor,
		Cache:      cache,
		PreciosCB:  preciosCB,
		Limiter:    limiter,
		TipoCambio: tipoCambio,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("concentra listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	scheduler.Stop()
	cancel()
	pool.Wait()
	log.Info().Msg("server exited")
}
