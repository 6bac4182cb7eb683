package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pingTimeout       = 5 * time.Second
	poolMaxConnIdle   = 5 * time.Minute
	poolHealthPeriod  = 30 * time.Second
	defaultPoolMaxCon = 10
)

// NewPostgresPool opens the pool backing users, wallets and transaction records.
// MaxConns is raised to at least defaultPoolMaxCon; concurrent USSD sessions each hold a connection briefly.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns < defaultPoolMaxCon {
		cfg.MaxConns = defaultPoolMaxCon
	}
	cfg.MaxConnIdleTime = poolMaxConnIdle
	cfg.HealthCheckPeriod = poolHealthPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
