package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhenhaojia/house/internal/core/pool"
	"github.com/zhenhaojia/house/internal/logger"
	"github.com/zhenhaojia/house/middleware"
)

var (
	// ErrNestedTransaction is returned when RunInTransaction is called with a
	// context that already belongs to a transaction.
	ErrNestedTransaction = errors.New("nested transactions are not supported")

	// ErrTxDone is returned by Tx.Execute once the transaction has finished.
	ErrTxDone = errors.New("transaction already finished")

	// ErrTxAborted is returned by RunInTransaction when a statement inside
	// the unit of work failed and the work still returned nil. The
	// transaction is rolled back instead of committed.
	ErrTxAborted = errors.New("transaction aborted by a failed statement")
)

const rollbackTimeout = 5 * time.Second

// Querier is implemented by both Executor and Tx.
type Querier interface {
	Execute(ctx context.Context, sql string, params ...any) QueryResult
}

type txKey struct{}

// Tx is one open transaction bound to a single pooled connection.
// It is only valid inside the unit of work it was passed to.
type Tx struct {
	exec   *Executor
	conn   *pool.PooledConn
	done   bool
	broken bool
	failed error
}

// Execute runs a statement inside the transaction.
func (tx *Tx) Execute(ctx context.Context, sql string, params ...any) QueryResult {
	ctx, span := middleware.StartSpan(ctx, "db.tx.execute", trace.WithAttributes(
		attribute.String("layer", "core"),
		attribute.String("db.statement", sql),
	))
	defer span.End()

	start := time.Now()
	if tx.done {
		return tx.exec.finish(ctx, span, sql, params, start, pool.Result{}, ErrTxDone)
	}
	if err := checkPlaceholders(sql, params); err != nil {
		return tx.fail(tx.exec.finish(ctx, span, sql, params, start, pool.Result{}, err))
	}

	res, err := tx.exec.run(ctx, tx.conn.Conn(), sql, params)
	if errors.Is(err, pool.ErrConnectionLost) {
		tx.broken = true
	}
	return tx.fail(tx.exec.finish(ctx, span, sql, params, start, res, err))
}

// fail remembers the first unsuccessful statement so the transaction can
// no longer commit.
func (tx *Tx) fail(res QueryResult) QueryResult {
	if !res.Success && tx.failed == nil {
		tx.failed = cmp.Or(res.Err, ErrQueryFailure)
	}
	return res
}

// RunInTransaction runs work between BEGIN and COMMIT on one connection.
//
// If work returns an error the transaction is rolled back and that error is
// returned unchanged. If work returns nil after one of its statements failed
// the transaction is rolled back and ErrTxAborted is returned, wrapping the
// first statement error. If work panics the transaction is rolled back and the
// panic continues. The connection is returned to the pool on every path.
func (e *Executor) RunInTransaction(ctx context.Context, work func(ctx context.Context, tx *Tx) error) error {
	if _, nested := ctx.Value(txKey{}).(*Tx); nested {
		return ErrNestedTransaction
	}

	ctx, span := middleware.StartSpan(ctx, "db.transaction", trace.WithAttributes(
		attribute.String("layer", "core"),
	))
	defer span.End()

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &Tx{exec: e, conn: conn}
	defer func() {
		tx.done = true
		if tx.broken {
			e.pool.Discard(conn)
			return
		}
		e.pool.Release(conn)
	}()

	if _, err := e.run(ctx, conn.Conn(), "BEGIN", nil); err != nil {
		tx.broken = tx.broken || errors.Is(err, pool.ErrConnectionLost)
		span.RecordError(err)
		e.metrics.transaction("begin_failed")
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.rollback(ctx)
			e.metrics.transaction("rolled_back")
			panic(r)
		}
	}()

	if err := work(context.WithValue(ctx, txKey{}, tx), tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		tx.rollback(ctx)
		e.metrics.transaction("rolled_back")
		return err
	}

	if tx.failed != nil {
		err := fmt.Errorf("%w: %w", ErrTxAborted, tx.failed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		tx.rollback(ctx)
		e.metrics.transaction("rolled_back")
		return err
	}

	if _, err := e.run(ctx, conn.Conn(), "COMMIT", nil); err != nil {
		span.RecordError(err)
		if errors.Is(err, pool.ErrConnectionLost) {
			tx.broken = true
		} else {
			tx.rollback(ctx)
		}
		e.metrics.transaction("commit_failed")
		return fmt.Errorf("commit transaction: %w", err)
	}

	e.metrics.transaction("committed")
	return nil
}

// rollback aborts the transaction even when ctx is already cancelled.
// A connection whose rollback fails is discarded.
func (tx *Tx) rollback(ctx context.Context) {
	if tx.broken {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if _, err := tx.exec.run(rctx, tx.conn.Conn(), "ROLLBACK", nil); err != nil {
		tx.broken = true
		logger.FromContext(ctx).Error().Err(err).Msg("Rollback failed, discarding connection")
	}
}

// InTransaction is RunInTransaction for units of work that produce a value.
func InTransaction[T any](ctx context.Context, e *Executor, work func(ctx context.Context, tx *Tx) (T, error)) (T, error) {
	var out T
	err := e.RunInTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		v, err := work(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
