package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"finsession/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	clock  clockwork.Clock
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger, clock clockwork.Clock) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DefaultFactory{
		logger: logger,
		clock:  clock,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case RedisBackend:
		return f.createRedisBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	kv, err := storage.NewSQLiteKV(config.SQLiteDBPath, f.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite storage backend",
		"db_path", config.SQLiteDBPath,
		"schema_version", kv.SchemaVersion())

	return &BackendResult{
		KV:      kv,
		Cleaner: kv,
		Cleanup: kv.Close,
	}, nil
}

func (f *DefaultFactory) createRedisBackend(ctx context.Context, config Config) (*BackendResult, error) {
	kv, err := storage.NewRedisKV(ctx, storage.RedisConfig{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
	}

	f.logger.Info("Initialized Redis storage backend", "addr", config.RedisAddr, "db", config.RedisDB)

	// Redis expires keys itself, no sweeper needed.
	return &BackendResult{
		KV:      kv,
		Cleanup: kv.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	kv := storage.NewMemoryKV(config.MaxKeys, f.clock)

	f.logger.Info("Initialized memory storage backend", "max_keys", config.MaxKeys)

	return &BackendResult{
		KV:      kv,
		Cleaner: kv,
		Cleanup: kv.Close,
	}, nil
}
