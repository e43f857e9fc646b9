// Package kv defines the key-value contract shared by all storage
// backends. Values are opaque byte blobs; callers own the encoding.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been set or has
// been removed.
var ErrNotFound = errors.New("key not found")

// Store is the persistence interface the daemon programs against. All
// backends must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
