// Package database runs parameterized statements and transactions on top of
// the connection pool.
//
// Statements use positional "?" placeholders. Execute checks that the
// placeholder count matches the argument count before touching the pool and
// rewrites placeholders for the driver. Failures are reported in the returned
// QueryResult rather than as a Go error, so callers must check Success.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhenhaojia/house/internal/core/pool"
	"github.com/zhenhaojia/house/internal/logger"
	"github.com/zhenhaojia/house/middleware"
)

var (
	// ErrPlaceholderMismatch is a caller bug: the statement's placeholder
	// count differs from the number of arguments.
	ErrPlaceholderMismatch = errors.New("placeholder count mismatch")

	// ErrQueryFailure marks a statement the store rejected.
	ErrQueryFailure = errors.New("query failed")
)

const (
	DefaultSlowQueryThreshold = time.Second
	DefaultQueryTimeout       = 30 * time.Second
)

// QueryResult is the uniform outcome of one statement.
type QueryResult struct {
	Success      bool
	Rows         []pool.Row
	RowsAffected int64
	// Error is the failure message kept for diagnostics.
	Error string
	// Err is the typed cause, usable with errors.Is.
	Err      error
	Duration time.Duration
}

// DurationMs is the statement wall time in milliseconds.
func (r QueryResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Options tune an Executor. Zero values pick the defaults.
type Options struct {
	SlowQueryThreshold time.Duration
	QueryTimeout       time.Duration
	Metrics            *Metrics
}

// Executor executes statements against a Pool.
type Executor struct {
	pool          *pool.Pool
	slowThreshold time.Duration
	queryTimeout  time.Duration
	metrics       *Metrics
}

// NewExecutor creates an Executor on p.
func NewExecutor(p *pool.Pool, opts Options) *Executor {
	if opts.SlowQueryThreshold <= 0 {
		opts.SlowQueryThreshold = DefaultSlowQueryThreshold
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Executor{
		pool:          p,
		slowThreshold: opts.SlowQueryThreshold,
		queryTimeout:  opts.QueryTimeout,
		metrics:       opts.Metrics,
	}
}

// Pool returns the pool the executor runs on.
func (e *Executor) Pool() *pool.Pool {
	return e.pool
}

// Execute runs one statement on a connection of its own.
func (e *Executor) Execute(ctx context.Context, sql string, params ...any) QueryResult {
	ctx, span := middleware.StartSpan(ctx, "db.execute", trace.WithAttributes(
		attribute.String("layer", "core"),
		attribute.String("db.statement", sql),
		attribute.Int("db.params", len(params)),
	))
	defer span.End()

	start := time.Now()
	if err := checkPlaceholders(sql, params); err != nil {
		return e.finish(ctx, span, sql, params, start, pool.Result{}, err)
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return e.finish(ctx, span, sql, params, start, pool.Result{}, err)
	}

	res, err := e.run(ctx, conn.Conn(), sql, params)
	e.giveBack(conn, err)
	return e.finish(ctx, span, sql, params, start, res, err)
}

// run executes sql on c under the statement timeout.
func (e *Executor) run(ctx context.Context, c pool.Conn, sql string, params []any) (pool.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	res, err := c.Execute(ctx, sqlx.Rebind(sqlx.DOLLAR, sql), params...)
	if err == nil {
		return res, nil
	}
	if c.IsClosed() {
		return pool.Result{}, fmt.Errorf("%w: %w", pool.ErrConnectionLost, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pool.Result{}, fmt.Errorf("%w: timed out after %s: %w", ErrQueryFailure, e.queryTimeout, err)
	}
	return pool.Result{}, fmt.Errorf("%w: %w", ErrQueryFailure, err)
}

// giveBack returns conn to the pool, or drops it when it broke.
func (e *Executor) giveBack(conn *pool.PooledConn, err error) {
	if errors.Is(err, pool.ErrConnectionLost) || conn.Conn().IsClosed() {
		e.pool.Discard(conn)
		return
	}
	e.pool.Release(conn)
}

func (e *Executor) finish(ctx context.Context, span trace.Span, sql string, params []any, start time.Time, res pool.Result, err error) QueryResult {
	elapsed := time.Since(start)
	log := logger.FromContext(ctx)

	e.metrics.observe(elapsed, err)
	if elapsed >= e.slowThreshold {
		e.metrics.slow()
		log.Warn().
			Str("sql", sql).
			Int("params_count", len(params)).
			Dur("duration", elapsed).
			Msg("Slow query")
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().
			Err(err).
			Str("sql", sql).
			Int("params_count", len(params)).
			Dur("duration", elapsed).
			Msg("Query failed")
		return QueryResult{Success: false, Error: err.Error(), Err: err, Duration: elapsed}
	}

	span.SetAttributes(attribute.Int("db.rows", len(res.Rows)))
	return QueryResult{
		Success:      true,
		Rows:         res.Rows,
		RowsAffected: res.RowsAffected,
		Duration:     elapsed,
	}
}

func checkPlaceholders(sql string, params []any) error {
	if n := strings.Count(sql, "?"); n != len(params) {
		return fmt.Errorf("%w: statement has %d placeholders, got %d params", ErrPlaceholderMismatch, n, len(params))
	}
	return nil
}
