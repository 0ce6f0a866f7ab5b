package chunkstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mohammed1916/marine-anomaly/internal/config"
)

// KVStore is the object storage an array is persisted to.
type KVStore interface {
	// Get returns the object stored under key, or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the object under key atomically.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the sorted keys starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Join joins key components with "/".
func Join(parts ...string) string {
	return strings.TrimPrefix(path.Join(parts...), "/")
}

// OpenKVStore returns the store selected by cfg.Driver.
func OpenKVStore(ctx context.Context, cfg config.OutputConfig) (KVStore, error) {
	switch cfg.Driver {
	case "file", "":
		return NewFileStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg.S3, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown kvstore driver %q", cfg.Driver)
	}
}
