// Package storage is the local key-value collaborator used for persisted
// filters and offline snapshots. Reading a missing key is not an error: Get
// returns (nil, nil).
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/seenimoa/macrocal/internal/config"
)

// Store is a minimal key-value store.
type Store interface {
	// Get returns the value under key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	Close() error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ErrInvalidKey reports a key that no backend accepts.
type ErrInvalidKey struct {
	Key string
}

func (e *ErrInvalidKey) Error() string {
	return fmt.Sprintf("invalid storage key %q", e.Key)
}

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return &ErrInvalidKey{Key: key}
	}
	return nil
}

// GetJSON decodes the value under key into v. found is false when the key
// is absent, in which case v is untouched.
func GetJSON(ctx context.Context, s Store, key string, v any) (found bool, err error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendFile, "":
		return NewFile(cfg.Path)
	case config.BackendRedis:
		return NewRedis(ctx, cfg.Redis)
	case config.BackendPostgres:
		return NewPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
