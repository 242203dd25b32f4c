package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
)

const connectTimeout = 10 * time.Second

// Stores holds the server's connections.
type Stores struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Connect opens and pings Postgres and Redis. Nothing is left open on error.
func Connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := NewRedisClient(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Stores{Pool: pool, Redis: rdb}, nil
}

// Close releases both connections.
func (s *Stores) Close() {
	_ = s.Redis.Close()
	s.Pool.Close()
}

// PingPostgres and PingRedis back the health endpoint.
func (s *Stores) PingPostgres(ctx context.Context) error { return s.Pool.Ping(ctx) }
func (s *Stores) PingRedis(ctx context.Context) error    { return s.Redis.Ping(ctx).Err() }

// NewPostgresPool creates and validates a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxDBConns
	// Attempt writes arrive in bursts when a timed exam ends for a cohort.
	poolCfg.MinConns = min(4, cfg.MaxDBConns)
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Int32("max_conns", poolCfg.MaxConns).
		Int32("min_conns", poolCfg.MinConns).
		Msg("PostgreSQL connected")
	return pool, nil
}

// NewRedisClient creates and validates a Redis client connection.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")
	return rdb, nil
}
