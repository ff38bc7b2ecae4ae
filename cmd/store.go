package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/zhenhaojia/house/config"
	"github.com/zhenhaojia/house/internal/core/database"
	"github.com/zhenhaojia/house/internal/core/pool"
)

const metricsNamespace = "house"

// openStore builds the connection pool and the statement executor on top of
// it, and applies the embedded schema. A failed migration is logged only:
// reads keep working from the fallback snapshot.
func openStore(ctx context.Context, cfg config.DatabaseConfig, reg prometheus.Registerer) (*pool.Pool, *database.Executor, error) {
	acquire := cfg.GetAcquireTimeoutDuration()

	dialer, err := pool.NewPgxDialer(cfg.DSN(), acquire)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, acquire)
	defer cancel()

	p, err := pool.New(ctx, dialer, pool.Config{
		MaxConns:       cfg.PoolSize,
		MinConns:       cfg.MinConns,
		AcquireTimeout: acquire,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open pool: %w", err)
	}
	reg.MustRegister(pool.NewCollector(p, metricsNamespace))

	exec := database.NewExecutor(p, database.Options{
		SlowQueryThreshold: cfg.GetSlowQueryThresholdDuration(),
		QueryTimeout:       cfg.GetQueryTimeoutDuration(),
		Metrics:            database.NewMetrics(metricsNamespace, reg),
	})

	if err := database.Migrate(ctx, exec); err != nil {
		log.Error().Err(err).Msg("schema migration failed, reads will fall back to the snapshot")
	}

	log.Info().
		Str("db_host", cfg.Host).
		Str("db_name", cfg.Name).
		Int("pool_size", cfg.PoolSize).
		Int("pool_min", cfg.MinConns).
		Msg("store ready")
	return p, exec, nil
}
