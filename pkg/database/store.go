package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/internal/store/bolt"
	"github.com/aura-erp/meeting-scheduler/internal/store/postgres"
)

// StoreOptions selects and configures the persistence backend.
type StoreOptions struct {
	Driver   string // "postgres" or "bolt"
	DSN      string
	MaxConns int32
	BoltPath string
}

// OpenStore opens the configured backend. Postgres connections are migrated before use.
func OpenStore(ctx context.Context, opts StoreOptions, logger *zap.Logger) (store.Store, error) {
	switch opts.Driver {
	case "postgres":
		pool, err := NewPostgresPool(ctx, opts.DSN, opts.MaxConns, logger)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.New(pool), nil
	case "bolt":
		st, err := bolt.Open(opts.BoltPath)
		if err != nil {
			return nil, err
		}
		logger.Info("bbolt store opened", zap.String("path", opts.BoltPath))
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
