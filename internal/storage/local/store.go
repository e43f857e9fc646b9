// Package local implements the key-value store on plain JSON files, one
// file per key. It is the default backend for single-user daemon mode.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/example/matlab-dojo/internal/storage/kv"
)

// Store provides thread-safe file-backed key-value storage.
type Store struct {
	basePath string
	mu       sync.RWMutex
}

// New creates a file store rooted at basePath, creating the directory if
// needed.
func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Get returns the stored value for key, or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Set writes value to the key's file. The write goes through a temp file
// and rename so a crash never leaves a half-written document behind.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Remove deletes the key's file. Absent keys are not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *Store) Close() error { return nil }

func (s *Store) path(key string) string {
	// Keys are fixed identifiers, but flatten separators anyway so a key
	// can never escape the store directory.
	name := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(s.basePath, name+".json")
}
