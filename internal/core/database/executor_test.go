package database_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhenhaojia/house/internal/core/database"
	"github.com/zhenhaojia/house/internal/core/pool"
	"github.com/zhenhaojia/house/internal/core/pool/pooltest"
)

func newExecutor(t *testing.T, d pool.Dialer, opts database.Options) *database.Executor {
	t.Helper()
	p, err := pool.New(context.Background(), d, pool.Config{MaxConns: 2, AcquireTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return database.NewExecutor(p, opts)
}

func captureLogs(ctx context.Context) (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	return zerolog.New(&buf).WithContext(ctx), &buf
}

func TestExecuteSuccess(t *testing.T) {
	d := pooltest.NewDialer(pooltest.Rows(pool.Row{"id": int64(7), "title": "两居"}))
	e := newExecutor(t, d, database.Options{})

	res := e.Execute(context.Background(), "SELECT id, title FROM listings WHERE id = ? AND status = ?", 7, "published")

	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Error)
	assert.NoError(t, res.Err)
	assert.Equal(t, []pool.Row{{"id": int64(7), "title": "两居"}}, res.Rows)
	assert.GreaterOrEqual(t, res.DurationMs(), int64(0))
	assert.Equal(t, 0, e.Pool().Stat().Acquired)
}

func TestExecuteRebindsPlaceholders(t *testing.T) {
	d := pooltest.NewDialer(nil)
	e := newExecutor(t, d, database.Options{})

	res := e.Execute(context.Background(), "SELECT * FROM listings WHERE city LIKE ? LIMIT ? OFFSET ?", "%北京%", 10, 20)
	require.True(t, res.Success)

	stmts := d.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t, "SELECT * FROM listings WHERE city LIKE $1 LIMIT $2 OFFSET $3", stmts[0].SQL)
	assert.Equal(t, []any{"%北京%", 10, 20}, stmts[0].Args)
}

func TestExecutePlaceholderMismatch(t *testing.T) {
	d := pooltest.NewDialer(nil)
	e := newExecutor(t, d, database.Options{})

	res := e.Execute(context.Background(), "SELECT * FROM listings WHERE id = ? AND city = ?", 1)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, database.ErrPlaceholderMismatch)
	assert.Contains(t, res.Error, "2 placeholders")
	assert.Zero(t, d.Dials(), "no connection is touched")
}

func TestExecuteQueryFailure(t *testing.T) {
	boom := errors.New(`duplicate key value violates unique constraint "listings_pkey"`)
	d := pooltest.NewDialer(pooltest.Fail(boom))
	e := newExecutor(t, d, database.Options{})

	ctx, logs := captureLogs(context.Background())
	res := e.Execute(ctx, "INSERT INTO listings (title) VALUES (?)", "x")

	assert.False(t, res.Success)
	assert.Nil(t, res.Rows)
	assert.ErrorIs(t, res.Err, database.ErrQueryFailure)
	assert.ErrorIs(t, res.Err, boom)
	assert.Contains(t, res.Error, "listings_pkey")
	assert.Contains(t, logs.String(), "Query failed")

	// A statement error leaves the connection healthy.
	s := e.Pool().Stat()
	assert.Equal(t, 1, s.Idle)
	assert.Zero(t, s.Discarded)
}

func TestExecuteConnectionLostDiscards(t *testing.T) {
	d := pooltest.NewDialer(nil)
	e := newExecutor(t, d, database.Options{})

	// Warm one connection, then break it on the next statement.
	require.True(t, e.Execute(context.Background(), "SELECT 1").Success)
	d.Conns()[0].BreakOn("listings")

	res := e.Execute(context.Background(), "SELECT * FROM listings")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, pool.ErrConnectionLost)
	assert.NotErrorIs(t, res.Err, database.ErrQueryFailure)

	assert.Eventually(t, func() bool { return e.Pool().Stat().Total == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), e.Pool().Stat().Discarded)

	// The next call dials a replacement.
	assert.True(t, e.Execute(context.Background(), "SELECT 1").Success)
	assert.Equal(t, 2, d.Dials())
}

func TestExecutePoolUnavailable(t *testing.T) {
	d := pooltest.NewDialer(nil)
	d.FailDials(errors.New("dial tcp 127.0.0.1:5432: connection refused"))
	e := newExecutor(t, d, database.Options{})

	res := e.Execute(context.Background(), "SELECT 1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, pool.ErrConnectionLost)

	e.Pool().Shutdown()
	res = e.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, res.Err, pool.ErrPoolClosed)
}

func TestExecuteTimeout(t *testing.T) {
	d := pooltest.NewDialer(func(ctx context.Context, _ string, _ []any) (pool.Result, error) {
		<-ctx.Done()
		return pool.Result{}, ctx.Err()
	})
	e := newExecutor(t, d, database.Options{QueryTimeout: 20 * time.Millisecond})

	res := e.Execute(context.Background(), "SELECT pg_sleep(60)")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, database.ErrQueryFailure)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Contains(t, res.Error, "timed out")
}

func TestExecuteSlowQueryWarns(t *testing.T) {
	d := pooltest.NewDialer(func(context.Context, string, []any) (pool.Result, error) {
		time.Sleep(15 * time.Millisecond)
		return pool.Result{}, nil
	})
	reg := prometheus.NewRegistry()
	m := database.NewMetrics("test", reg)
	e := newExecutor(t, d, database.Options{SlowQueryThreshold: 5 * time.Millisecond, Metrics: m})

	ctx, logs := captureLogs(context.Background())
	res := e.Execute(ctx, "SELECT * FROM listings WHERE id = ?", 1)

	// Slow is observed, not a failure.
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, res.Duration, 5*time.Millisecond)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "Slow query")
	assert.Contains(t, logs.String(), `"params_count":1`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlowQueries))
}

func TestExecuteMetricsByOutcome(t *testing.T) {
	script := (&pooltest.Script{}).On("bad", pooltest.Fail(errors.New("syntax error")))
	d := pooltest.NewDialer(script.Handle)
	reg := prometheus.NewRegistry()
	m := database.NewMetrics("test", reg)
	e := newExecutor(t, d, database.Options{Metrics: m})

	e.Execute(context.Background(), "SELECT 1")
	e.Execute(context.Background(), "SELECT 2")
	e.Execute(context.Background(), "bad statement")
	e.Execute(context.Background(), "SELECT ?")

	assert.Equal(t, 3, testutil.CollectAndCount(m.QueryDuration))
	n, err := testutil.GatherAndCount(reg, "test_db_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, testutil.ToFloat64(m.SlowQueries))
}
