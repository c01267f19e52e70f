// Package cache provides the key/value persistence contract every
// backend-facing call wraps its network and DB queries in.
//
// The central mode is FetchOrFallback: always prefer a live fetch, but
// fall back to the cached copy when the fetch fails. A transient
// backend outage therefore degrades to stale data rather than a hard
// failure. There is no eviction; correctness depends on the fetch path
// refreshing entries.
package cache

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Retrieve when no entry exists for the
// (key, scope) pair.
var ErrNotFound = errors.New("cache: entry not found")

// Cache stores arbitrary JSON-serializable values under a (key, scope)
// pair. Keys are arbitrary strings (usually the query text); scopes
// namespace them per querier method.
type Cache interface {
	// Retrieve returns the stored value, or ErrNotFound.
	Retrieve(key, scope string) (any, error)

	// Store records the value, replacing any previous entry.
	Store(key, scope string, value any) error
}

// RetrieveOrUpdate returns the cached value if present; otherwise calls
// produce, stores its result, and returns it.
func RetrieveOrUpdate(c Cache, key, scope string, produce func() (any, error)) (any, error) {
	cached, err := c.Retrieve(key, scope)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	value, err := produce()
	if err != nil {
		return nil, err
	}
	if err := c.Store(key, scope, value); err != nil {
		return nil, fmt.Errorf("store %s/%s: %w", scope, key, err)
	}
	return value, nil
}

// FetchOrFallback always calls produce first. On success the cache is
// refreshed and the fresh value returned. On failure the cached value
// is returned if one exists; otherwise the producer's error is
// returned unchanged.
func FetchOrFallback(c Cache, key, scope string, produce func() (any, error)) (any, error) {
	value, produceErr := produce()
	if produceErr == nil {
		if err := c.Store(key, scope, value); err != nil {
			return nil, fmt.Errorf("store %s/%s: %w", scope, key, err)
		}
		return value, nil
	}

	cached, err := c.Retrieve(key, scope)
	if err == nil {
		return cached, nil
	}
	return nil, produceErr
}

// Memory is an in-process cache. Not safe for concurrent use; one
// update cycle owns its caches exclusively.
type Memory struct {
	entries map[string]map[string]any // scope -> key -> value
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]map[string]any)}
}

func (m *Memory) Retrieve(key, scope string) (any, error) {
	scoped, ok := m.entries[scope]
	if !ok {
		return nil, ErrNotFound
	}
	value, ok := scoped[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

func (m *Memory) Store(key, scope string, value any) error {
	scoped, ok := m.entries[scope]
	if !ok {
		scoped = make(map[string]any)
		m.entries[scope] = scoped
	}
	scoped[key] = value
	return nil
}

// Nop never stores and never hits. Used when no cache is configured.
type Nop struct{}

func (Nop) Retrieve(key, scope string) (any, error) { return nil, ErrNotFound }
func (Nop) Store(key, scope string, value any) error { return nil }
