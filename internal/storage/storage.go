// Package storage provides the durable key-value backends behind the offline queue.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotFound is returned by Get for keys that were never written or were deleted.
var ErrNotFound = errors.New("storage: key not found")

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongodb"
)

// Store is a durable key-value namespace. Values are opaque bytes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	// DSN is a directory for file, a database path for sqlite, a connection
	// string for postgres, a redis:// URL for redis and a mongodb:// URI for mongodb.
	DSN string
	// Prefix namespaces redis keys.
	Prefix string
	// Database is the MongoDB database name.
	Database string
}

// DefaultConfig returns a file backend under ./data.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendFile,
		DSN:      "data",
		Prefix:   "leadrelay",
		Database: "leadrelay",
	}
}

// Backends lists the accepted backend names.
func Backends() []string {
	return []string{BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendRedis, BackendMongo}
}

// New opens the backend described by cfg. SQL backends are migrated before use.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "storage"), slog.String("backend", cfg.Backend))

	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		s = NewMemoryStore()
	case BackendFile:
		s, err = NewFileStore(cfg.DSN)
	case BackendSQLite:
		s, err = NewSQLiteStore(ctx, cfg.DSN)
	case BackendPostgres:
		s, err = NewPostgresStore(ctx, cfg.DSN)
	case BackendRedis:
		s, err = NewRedisStore(ctx, cfg.DSN, cfg.Prefix)
	case BackendMongo:
		s, err = NewMongoStore(ctx, cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("storage opened")
	return s, nil
}
