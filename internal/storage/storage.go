package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when the key has never been saved.
var ErrNotFound = errors.New("storage: key not found")

// Storage persists engine state between restarts. Values are JSON-encoded;
// Load unmarshals into v, Save marshals v.
type Storage interface {
	Load(ctx context.Context, key string, v any) error
	Save(ctx context.Context, key string, v any) error
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Backend is one of "memory", "file", "redis", "postgres".
	Backend string
	// FilePath is the state file location for the file backend.
	FilePath string
	// RedisAddr and RedisDB configure the redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// PostgresURL is the connection string for the postgres backend.
	PostgresURL string
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.FilePath)
	case "redis":
		return NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
