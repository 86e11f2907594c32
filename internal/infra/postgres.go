package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool opens the settlement database pool and pings it. app names
// the binary in pg_stat_activity.
func NewPostgresPool(ctx context.Context, cfg *Config, app string) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg, app)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s:%d: %w", poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Port, err)
	}
	return pool, nil
}

func poolConfig(cfg *Config, app string) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	// Bounds concurrent settlement writes per replica.
	poolCfg.MaxConns = cfg.PGMaxConns
	poolCfg.MinConns = min(2, cfg.PGMaxConns)
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	// A settlement write holds the reference lock, so a stuck statement must
	// fail before the lock TTL lets a retry in.
	if cfg.PGStatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.PGStatementTimeout.Milliseconds(), 10)
	}
	if app != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = app
	}
	return poolCfg, nil
}
