// Package pooltest provides an in-memory Dialer and Conn for tests of code
// built on package pool.
package pooltest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zhenhaojia/house/internal/core/pool"
)

// ErrBroken is returned by a connection that was broken with Break.
var ErrBroken = errors.New("pooltest: connection broken")

// Handler answers one statement.
type Handler func(ctx context.Context, sql string, args []any) (pool.Result, error)

// Statement is one journal entry.
type Statement struct {
	Conn int
	SQL  string
	Args []any
}

// Dialer hands out fake connections and records every statement they run.
type Dialer struct {
	mu      sync.Mutex
	handler Handler
	dialErr error
	conns   []*Conn
	journal []Statement
	closed  int
}

// NewDialer returns a dialer whose connections answer with h. A nil h
// answers every statement with an empty result.
func NewDialer(h Handler) *Dialer {
	return &Dialer{handler: h}
}

func (d *Dialer) Dial(ctx context.Context) (pool.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	c := &Conn{id: len(d.conns) + 1, dialer: d}
	d.conns = append(d.conns, c)
	return c, nil
}

// FailDials makes every following Dial return err; nil restores dialing.
func (d *Dialer) FailDials(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

// SetHandler replaces the statement handler for every connection.
func (d *Dialer) SetHandler(h Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// Dials returns how many connections were opened.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Closed returns how many connections were closed.
func (d *Dialer) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Conns returns every connection dialed so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Statements returns the journal in execution order.
func (d *Dialer) Statements() []Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Statement(nil), d.journal...)
}

// SQL returns the journal's statement texts in execution order.
func (d *Dialer) SQL() []string {
	stmts := d.Statements()
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.SQL
	}
	return out
}

// Conn is a fake connection.
type Conn struct {
	id          int
	dialer      *Dialer
	closed      atomic.Bool
	closeCalled atomic.Bool

	// breakOn breaks the connection when a statement containing it runs.
	breakOn atomic.Value
}

// ID is the 1-based dial order of the connection.
func (c *Conn) ID() int { return c.id }

// Break makes the connection unusable, as if the server went away.
func (c *Conn) Break() { c.closed.Store(true) }

// BreakOn breaks the connection when a statement containing fragment runs.
func (c *Conn) BreakOn(fragment string) { c.breakOn.Store(fragment) }

func (c *Conn) Execute(ctx context.Context, sql string, args ...any) (pool.Result, error) {
	if c.closed.Load() {
		return pool.Result{}, ErrBroken
	}
	if err := ctx.Err(); err != nil {
		return pool.Result{}, err
	}

	c.dialer.mu.Lock()
	c.dialer.journal = append(c.dialer.journal, Statement{Conn: c.id, SQL: sql, Args: args})
	h := c.dialer.handler
	c.dialer.mu.Unlock()

	if frag, ok := c.breakOn.Load().(string); ok && frag != "" && strings.Contains(sql, frag) {
		c.Break()
		return pool.Result{}, ErrBroken
	}
	if h == nil {
		return pool.Result{}, nil
	}
	return h(ctx, sql, args)
}

func (c *Conn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrBroken
	}
	return ctx.Err()
}

func (c *Conn) Close(ctx context.Context) error {
	c.closed.Store(true)
	if c.closeCalled.Swap(true) {
		return nil
	}
	c.dialer.mu.Lock()
	c.dialer.closed++
	c.dialer.mu.Unlock()
	return nil
}

func (c *Conn) IsClosed() bool { return c.closed.Load() }

// Script routes statements to handlers by substring match, in registration
// order. Unmatched statements get an empty result.
type Script struct {
	mu    sync.Mutex
	rules []rule
}

type rule struct {
	fragment string
	handler  Handler
}

// On registers h for statements containing fragment.
func (s *Script) On(fragment string, h Handler) *Script {
	s.mu.Lock()
	s.rules = append(s.rules, rule{fragment: fragment, handler: h})
	s.mu.Unlock()
	return s
}

// Handle implements Handler.
func (s *Script) Handle(ctx context.Context, sql string, args []any) (pool.Result, error) {
	s.mu.Lock()
	rules := append([]rule(nil), s.rules...)
	s.mu.Unlock()
	for _, r := range rules {
		if strings.Contains(sql, r.fragment) {
			return r.handler(ctx, sql, args)
		}
	}
	return pool.Result{}, nil
}

// Rows is a Handler that always answers with rows.
func Rows(rows ...pool.Row) Handler {
	return func(context.Context, string, []any) (pool.Result, error) {
		return pool.Result{Rows: rows, RowsAffected: int64(len(rows))}, nil
	}
}

// Fail is a Handler that always answers with err.
func Fail(err error) Handler {
	return func(context.Context, string, []any) (pool.Result, error) {
		return pool.Result{}, err
	}
}
