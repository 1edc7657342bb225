// Package cache holds the short-lived key/value caches used by the service.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"task-tracker-api/internal/config"
)

// Store is the backend behind derived-value caches such as miss counts.
// Callers treat every error as a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Purger is implemented by stores that need periodic housekeeping.
type Purger interface {
	PurgeExpired(ctx context.Context) error
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	items *SimpleCache[string, []byte]
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{items: NewSimpleCache[string, []byte](Options{ConcurrencySafe: true, Now: now})}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.items.Get(key)
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.items.Set(key, value, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.items.Delete(keys...)
	return nil
}

func (m *MemoryStore) PurgeExpired(context.Context) error {
	m.items.PurgeExpired()
	return nil
}

func (m *MemoryStore) Len() int { return m.items.Len() }

func (m *MemoryStore) Close() error { return nil }

// NopStore never stores anything; every read is a miss.
type NopStore struct{}

func (NopStore) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopStore) Delete(context.Context, ...string) error                  { return nil }
func (NopStore) Close() error                                             { return nil }

// New builds the store selected by cfg.Driver.
func New(cfg config.CacheConfig, now func() time.Time, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryStore(now), nil
	case "badger":
		return OpenBadger(BadgerConfig{Path: cfg.BadgerDir, Logger: logger})
	case "none":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("cache: unsupported driver %q", cfg.Driver)
	}
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Purger = (*MemoryStore)(nil)
	_ Store  = NopStore{}
)
