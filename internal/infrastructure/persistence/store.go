package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/config"
	"github.com/arungoks/tankerapp/internal/infrastructure/persistence/models"
	"github.com/arungoks/tankerapp/internal/infrastructure/stream"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrStoreClosed is the cause of StoreUnavailable errors after Close
var ErrStoreClosed = errors.New("store is closed")

// ChangeNotifier shares committed table changes between processes that use
// the same database, so each process can refresh its feeds.
type ChangeNotifier interface {
	// Publish announces that the named tables changed
	Publish(ctx context.Context, tables ...string) error
	// Subscribe blocks, calling fn for every change announced by another
	// process, until ctx is done
	Subscribe(ctx context.Context, fn func(tables []string)) error
	Close() error
}

// OpenOptions configures Open
type OpenOptions struct {
	Logger   *zap.Logger
	Notifier ChangeNotifier
	Database []DatabaseOption
	Feed     []stream.Option
	// Setup runs on a freshly opened database, e.g. to register tracing plugins
	Setup func(db *gorm.DB) error
}

// Open builds the store selected by cfg.Driver
func Open(ctx context.Context, cfg *config.DatabaseConfig, opts OpenOptions) (tanker.Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.Driver == config.DriverMemory {
		log.Info("Using in-memory store; data is lost on restart")
		return NewMemoryStore(opts.Feed...), nil
	}

	db, err := NewDatabase(cfg, opts.Database...)
	if err != nil {
		return nil, err
	}
	if opts.Setup != nil {
		if err := opts.Setup(db.DB); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("database setup: %w", err)
		}
	}
	if cfg.AutoMigrate {
		if err := db.DB.WithContext(ctx).AutoMigrate(models.AllModels()...); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("Database schema auto-migrated", zap.String("driver", cfg.Driver))
	}

	storeOpts := []GormStoreOption{WithStoreLogger(log), WithFeedOptions(opts.Feed...)}
	if opts.Notifier != nil {
		storeOpts = append(storeOpts, WithChangeNotifier(opts.Notifier))
	}
	log.Info("Database store opened", zap.String("driver", cfg.Driver))
	return NewGormStore(db, storeOpts...), nil
}
