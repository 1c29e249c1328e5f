// Package database opens the connections behind the configured storage
// drivers.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/radiusdt/dynaq/internal/config"
	"go.uber.org/zap"
)

// connectAttempts bounds startup retries per backend.
const connectAttempts = 3

// Backend is an open connection the service depends on.
type Backend interface {
	Name() string
	Health(ctx context.Context) error
	Close() error
}

// Connections are the backends opened for a configuration. Fields are nil
// for drivers the configuration does not use or that could not be reached.
type Connections struct {
	Postgres *PostgresDB
	Redis    *RedisDB
	Badger   *BadgerDB
}

// Connect opens the backends cfg selects. PostgreSQL and Redis failures are
// logged and leave the field nil so the server can fall back to memory;
// badger is local, so failing to open it is fatal.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Connections, error) {
	conns := &Connections{}

	if cfg.NeedsPostgres() {
		db, err := NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		} else {
			conns.Postgres = db
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverRedis:
		rdb, err := NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, using in-memory storage", zap.Error(err))
		} else {
			conns.Redis = rdb
		}
	case config.DriverBadger:
		bdb, err := NewBadgerDB(cfg.Storage, logger)
		if err != nil {
			conns.Close()
			return nil, err
		}
		conns.Badger = bdb
	}

	return conns, nil
}

// Backends lists the open connections.
func (c *Connections) Backends() []Backend {
	var out []Backend
	if c.Postgres != nil {
		out = append(out, c.Postgres)
	}
	if c.Redis != nil {
		out = append(out, c.Redis)
	}
	if c.Badger != nil {
		out = append(out, c.Badger)
	}
	return out
}

// Close closes every open connection and returns the joined errors.
func (c *Connections) Close() error {
	var errs []error
	for _, b := range c.Backends() {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func retry(ctx context.Context, logger *zap.Logger, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, connectAttempts-1), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn("backend not ready, retrying",
			zap.String("backend", name),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}
