package database

import (
	"context"
	"fmt"
	"time"

	pgxzerolog "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/config"
)

// NewPool builds a pgx pool from config. Query tracing goes to zerolog and,
// when observability is enabled, to New Relic as well.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger, nrEnabled bool) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifetime) * time.Second

	logTracer := &tracelog.TraceLog{
		Logger:   pgxzerolog.NewLogger(logger),
		LogLevel: tracelog.LogLevelWarn,
	}
	if nrEnabled {
		poolCfg.ConnConfig.Tracer = multitracer.New(logTracer, nrpgx5.NewTracer())
	} else {
		poolCfg.ConnConfig.Tracer = logTracer
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Connect opens a single pgx connection, used by the migrator.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}
