// Package pool maintains a bounded set of live connections to the backing
// store.
//
// Every connection handed out by Acquire has exactly one owner until it is
// given back with Release (healthy) or Discard (broken). Both are safe to
// call more than once; only the first call has an effect.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/rs/zerolog/log"
)

var (
	// ErrPoolExhausted is returned when no connection became free within the
	// acquire timeout. Callers may retry with backoff.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned by Acquire after Shutdown.
	ErrPoolClosed = errors.New("connection pool closed")

	// ErrConnectionLost marks a connection that failed while in use.
	ErrConnectionLost = errors.New("connection lost")
)

// Row is a single result row keyed by column name.
type Row = map[string]any

// Result is what a connection returns for one statement.
type Result struct {
	Rows         []Row
	RowsAffected int64
}

// Conn is one live connection to the relational store.
type Conn interface {
	// Execute runs a statement that uses the driver's native placeholders.
	Execute(ctx context.Context, sql string, args ...any) (Result, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	// IsClosed reports whether the connection can no longer be used.
	IsClosed() bool
}

// Dialer opens new connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// Config controls pool sizing and timeouts.
type Config struct {
	MaxConns       int
	MinConns       int
	AcquireTimeout time.Duration
}

const (
	defaultMaxConns       = 10
	defaultAcquireTimeout = 10 * time.Second
	closeTimeout          = 5 * time.Second
)

// Stat is a point-in-time snapshot of pool accounting.
type Stat struct {
	Total     int
	Idle      int
	Acquired  int
	Max       int
	Acquires  int64
	Exhausted int64
	Discarded int64
}

// Pool is a bounded connection pool. It is safe for concurrent use.
type Pool struct {
	res            *puddle.Pool[Conn]
	minConns       int
	acquireTimeout time.Duration

	closed    atomic.Bool
	exhausted atomic.Int64
	discarded atomic.Int64

	replenishMu sync.Mutex
}

// PooledConn is a connection checked out of a Pool.
type PooledConn struct {
	res  *puddle.Resource[Conn]
	pool *Pool
	done atomic.Bool
}

// New creates a pool that dials connections lazily through d. MinConns
// connections are opened eagerly; a failure there is returned.
func New(ctx context.Context, d Dialer, cfg Config) (*Pool, error) {
	if d == nil {
		return nil, errors.New("pool: dialer must not be nil")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("pool: min conns %d outside [0, %d]", cfg.MinConns, cfg.MaxConns)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}

	res, err := puddle.NewPool(&puddle.Config[Conn]{
		Constructor: func(ctx context.Context) (Conn, error) {
			return d.Dial(ctx)
		},
		Destructor: func(c Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := c.Close(ctx); err != nil {
				log.Debug().Err(err).Msg("Closing pooled connection failed")
			}
		},
		MaxSize: int32(cfg.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}

	p := &Pool{
		res:            res,
		minConns:       cfg.MinConns,
		acquireTimeout: cfg.AcquireTimeout,
	}

	for i := 0; i < cfg.MinConns; i++ {
		if err := res.CreateResource(ctx); err != nil {
			res.Close()
			return nil, fmt.Errorf("pool: open initial connection: %w", err)
		}
	}

	return p, nil
}

// Acquire checks out a connection, waiting at most the configured acquire
// timeout (or less if ctx expires first).
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	ctx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	for {
		res, err := p.res.Acquire(ctx)
		if err != nil {
			return nil, p.acquireError(ctx, err)
		}
		if res.Value().IsClosed() {
			// Went bad while idle.
			p.discarded.Add(1)
			res.Destroy()
			continue
		}
		return &PooledConn{res: res, pool: p}, nil
	}
}

func (p *Pool) acquireError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return ErrPoolClosed
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		p.exhausted.Add(1)
		return fmt.Errorf("acquire within %s: %w", p.acquireTimeout, ErrPoolExhausted)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("open connection: %w: %w", ErrConnectionLost, err)
	}
}

// Release returns a healthy connection to the idle set. A connection that
// reports itself closed is discarded instead.
func (p *Pool) Release(c *PooledConn) {
	if c == nil || !c.done.CompareAndSwap(false, true) {
		return
	}
	if c.res.Value().IsClosed() {
		p.destroy(c.res)
		return
	}
	c.res.Release()
}

// Discard drops a connection that failed while in use. The pool replaces it
// up to MinConns in the background.
func (p *Pool) Discard(c *PooledConn) {
	if c == nil || !c.done.CompareAndSwap(false, true) {
		return
	}
	p.destroy(c.res)
}

func (p *Pool) destroy(res *puddle.Resource[Conn]) {
	p.discarded.Add(1)
	res.Destroy()
	if p.minConns > 0 && !p.closed.Load() {
		go p.replenish()
	}
}

func (p *Pool) replenish() {
	p.replenishMu.Lock()
	defer p.replenishMu.Unlock()

	for int(p.res.Stat().TotalResources()) < p.minConns && !p.closed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), p.acquireTimeout)
		err := p.res.CreateResource(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Replacing discarded connection failed")
			return
		}
	}
}

// Ping acquires a connection and checks that the store answers.
func (p *Pool) Ping(ctx context.Context) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := c.Conn().Ping(ctx); err != nil {
		p.Discard(c)
		return fmt.Errorf("ping: %w: %w", ErrConnectionLost, err)
	}
	p.Release(c)
	return nil
}

// Stat returns current pool accounting.
func (p *Pool) Stat() Stat {
	s := p.res.Stat()
	return Stat{
		Total:     int(s.TotalResources()),
		Idle:      int(s.IdleResources()),
		Acquired:  int(s.AcquiredResources()),
		Max:       int(s.MaxResources()),
		Acquires:  s.AcquireCount(),
		Exhausted: p.exhausted.Load(),
		Discarded: p.discarded.Load(),
	}
}

// Shutdown rejects new acquires and closes idle connections. It blocks until
// every checked-out connection has been released or discarded.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.res.Close()
}

// Conn exposes the underlying connection.
func (c *PooledConn) Conn() Conn {
	return c.res.Value()
}
