package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PgxDialer opens PostgreSQL connections with pgx.
type PgxDialer struct {
	config *pgx.ConnConfig
}

// NewPgxDialer parses dsn once; every Dial works on a copy of the config.
func NewPgxDialer(dsn string, connectTimeout time.Duration) (*PgxDialer, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if connectTimeout > 0 {
		cfg.ConnectTimeout = connectTimeout
	}
	return &PgxDialer{config: cfg}, nil
}

// Dial opens one connection.
func (d *PgxDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, d.config.Copy())
	if err != nil {
		return nil, err
	}
	return &pgxConn{conn: conn}, nil
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c *pgxConn) Execute(ctx context.Context, sql string, args ...any) (Result, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Rows:         collected,
		RowsAffected: rows.CommandTag().RowsAffected(),
	}, nil
}

func (c *pgxConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *pgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func (c *pgxConn) IsClosed() bool {
	return c.conn.IsClosed()
}
