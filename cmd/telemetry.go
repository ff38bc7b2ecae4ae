package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/zhenhaojia/house/config"
	"github.com/zhenhaojia/house/middleware"
)

// startTelemetry turns on tracing and profiling as configured. Both are
// optional; a backend that cannot be reached is logged and skipped. The
// returned func flushes whatever was started.
func startTelemetry(cfg *config.Config) func(context.Context) {
	var flushers []func(context.Context)

	switch {
	case !cfg.Tracing.Enabled:
		log.Info().Msg("tracing off")
	default:
		tp, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("tracing unavailable")
			break
		}
		log.Info().
			Str("otlp_endpoint", cfg.Tracing.Endpoint).
			Float64("sample_rate", cfg.Tracing.SampleRate).
			Msg("tracing on")
		flushers = append(flushers, func(ctx context.Context) {
			if err := tp.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("flush spans")
			}
		})
	}

	switch {
	case !cfg.Profiling.Enabled:
		log.Info().Msg("profiling off")
	default:
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("profiling unavailable")
			break
		}
		log.Info().Str("pyroscope", cfg.Profiling.Endpoint).Msg("profiling on")
		flushers = append(flushers, func(context.Context) { middleware.StopProfiling() })
	}

	return func(ctx context.Context) {
		for i := len(flushers) - 1; i >= 0; i-- {
			flushers[i](ctx)
		}
	}
}
