package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolOptions sizes the pgx pool. Zero values keep the defaults below.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

const (
	defaultMaxConns   = 25
	defaultMinConns   = 5
	connLifetime      = time.Hour
	connIdleTime      = 20 * time.Minute
	healthCheckPeriod = time.Minute
)

type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New opens a pool on DATABASE_URL and pings it before returning. Each
// WebSocket frame or HTTP request holds a connection for one statement or
// one transaction, so the pool stays small relative to live sockets.
func New(ctx context.Context, databaseURL string, opts PoolOptions, logger *zap.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	cfg.MaxConns = defaultMaxConns
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = defaultMinConns
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	cfg.MaxConnLifetime = connLifetime
	cfg.MaxConnIdleTime = connIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger = logger.With(zap.String("component", "postgres"))
	logger.Info("connected",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)
	return &DB{pool: pool, logger: logger}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing pool")
	db.pool.Close()
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Health pings the database. A failed ping logs the pool's state so an
// exhausted pool is distinguishable from an unreachable server.
func (db *DB) Health(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		st := db.pool.Stat()
		db.logger.Warn("health ping failed",
			zap.Int32("acquired", st.AcquiredConns()),
			zap.Int32("total", st.TotalConns()),
			zap.Int32("max", st.MaxConns()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
