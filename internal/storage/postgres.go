package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "schedbot/pkg/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgConn struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	c := &pgConn{pool: pool}
	if err := migrate(ctx, c, "schema/postgres.sql"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info("storage opened", logx.String("driver", "postgres"), logx.String("host", pcfg.ConnConfig.Host))
	return &pgStore{sqlStore: sqlStore{c: c, log: log}, pool: pool}, nil
}

// pgStore adds Ping for the status endpoint.
type pgStore struct {
	sqlStore
	pool *pgxpool.Pool
}

func (s *pgStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (c *pgConn) exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, rebindDollar(q), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) query(ctx context.Context, q string, args ...any) (rowIter, error) {
	rows, err := c.pool.Query(ctx, rebindDollar(q), args...)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

func (c *pgConn) queryRow(ctx context.Context, q string, args ...any) scanner {
	return pgRow{c.pool.QueryRow(ctx, rebindDollar(q), args...)}
}

func (c *pgConn) close() error {
	c.pool.Close()
	return nil
}

type pgRows struct{ pgx.Rows }

type pgRow struct{ row pgx.Row }

func (r pgRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return errNoRows
	}
	return err
}
