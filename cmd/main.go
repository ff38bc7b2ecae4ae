// Command house serves the rental listing API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/zhenhaojia/house/config"
	"github.com/zhenhaojia/house/internal/core/repository"
	logicv1 "github.com/zhenhaojia/house/internal/logic/v1"
	"github.com/zhenhaojia/house/internal/logger"
	v1 "github.com/zhenhaojia/house/internal/web/v1"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("invalid configuration: " + err.Error())
	}
	logger.Setup(cfg.Logging.Level, cfg.IsDevelopment())

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Msg("starting")

	flushTelemetry := startTelemetry(cfg)

	p, exec, err := openStore(context.Background(), cfg.Database, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open store")
	}

	listings := logicv1.NewListingService(repository.NewListingRepository(exec, nil))

	var draining atomic.Bool
	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           newRouter(cfg, p, v1.NewHandler(listings), &draining),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	// Readiness goes red first so the load balancer stops routing here
	// before connections are refused.
	draining.Store(true)
	if delay := cfg.GetReadinessDrainDelayDuration(); delay > 0 {
		log.Info().Dur("delay", delay).Msg("draining")
		time.Sleep(delay)
	}

	timeout := cfg.GetShutdownTimeoutDuration()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Info().Dur("timeout", timeout).Msg("shutting down")

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// In-flight handlers are done, so Shutdown does not wait on checked-out
	// connections.
	p.Shutdown()
	flushTelemetry(ctx)

	log.Info().Msg("stopped")
}
