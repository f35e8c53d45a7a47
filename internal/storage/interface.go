package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Backend names accepted by Open
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store persists cache entries as opaque values keyed by content fingerprint.
// Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes keys and returns how many existed
	Delete(ctx context.Context, keys []string) (int, error)

	// Keys lists every stored key in ascending order
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// Open creates the store selected by backend. path is ignored for memory.
func Open(backend, path string, logger *logrus.Logger) (Store, error) {
	switch backend {
	case BackendBolt, "":
		return NewBoltStore(path, logger)
	case BackendSQLite:
		return NewSQLiteStore(path, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
