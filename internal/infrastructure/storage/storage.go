package storage

import (
	"context"
	"fmt"
)

// Backend is a closable key-value slot
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend named by driver ("sqlite" or "memory")
func Open(driver, path string) (Backend, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
