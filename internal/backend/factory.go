package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgets/internal/amqp"
	"budgets/internal/storage"
	"budgets/internal/storage/gormstore"
	"budgets/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger    *slog.Logger
	newClient func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:    logger,
		newClient: amqp.NewClient,
	}
}

// CreateBackend opens the configured store and, when AMQP is configured,
// a publisher. A broker that cannot be reached is logged and skipped so the
// API still serves requests.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(config)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ping %s store: %w", config.Type, err)
	}

	result := &BackendResult{Store: store}
	var client *amqp.Client
	if config.AMQPURL != "" {
		client, err = f.newClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Publisher = client
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if client != nil {
			errs = append(errs, client.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized backend",
		"type", config.Type.String(),
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", result.Publisher != nil)
	return result, nil
}

func (f *DefaultFactory) openStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		if v, dirty, err := storage.SchemaVersion(config.SQLiteDBPath); err != nil {
			f.logger.Warn("Could not read schema version", "error", err)
		} else {
			f.logger.Debug("SQLite schema ready", "version", v, "dirty", dirty)
		}
		return repo, nil
	case GormBackend:
		s, err := gormstore.Open(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gorm store: %w", err)
		}
		return s, nil
	case MemoryBackend:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
