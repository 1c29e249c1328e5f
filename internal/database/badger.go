package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/radiusdt/dynaq/internal/config"
	"go.uber.org/zap"
)

// BadgerDB wraps an embedded badger database used as the event store.
type BadgerDB struct {
	DB     *badger.DB
	logger *zap.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewBadgerDB opens (or creates) the database at cfg.BadgerPath and starts
// periodic value log garbage collection.
func NewBadgerDB(cfg config.StorageConfig, logger *zap.Logger) (*BadgerDB, error) {
	opts := badger.DefaultOptions(cfg.BadgerPath).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info("opened badger event store", zap.String("path", cfg.BadgerPath))

	b := &BadgerDB{
		DB:     db,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.runGC(5 * time.Minute)
	return b, nil
}

func (b *BadgerDB) runGC(interval time.Duration) {
	defer close(b.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// RunValueLogGC returns an error when there was nothing to collect
			for b.DB.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func (b *BadgerDB) Name() string { return config.DriverBadger }

// Close stops garbage collection and closes the database.
func (b *BadgerDB) Close() error {
	close(b.stop)
	<-b.done
	b.logger.Info("badger event store closed")
	return b.DB.Close()
}

// Health reports whether the database is open.
func (b *BadgerDB) Health(ctx context.Context) error {
	if b.DB.IsClosed() {
		return fmt.Errorf("badger: database is closed")
	}
	return nil
}
