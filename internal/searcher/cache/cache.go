// Package cache provides result caches for compiled search queries: an
// in-process LRU with TTL for single-instance deployments and a Redis-backed
// variant for fleets. Both collapse concurrent identical lookups through
// singleflight and support category-scoped invalidation. Cache failures are
// never fatal: a broken cache behaves like a miss.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Memory is an in-process result cache: size-bounded LRU with per-entry TTL.
type Memory[T any] struct {
	lru       *expirable.LRU[string, T]
	group     singleflight.Group
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMemory creates a cache holding at most maxEntries results for at most
// ttl each.
func NewMemory[T any](maxEntries int, ttl time.Duration) *Memory[T] {
	m := &Memory[T]{
		logger: slog.Default().With("component", "result-cache"),
	}
	m.lru = expirable.NewLRU(maxEntries, func(string, T) {
		m.evictions.Add(1)
	}, ttl)
	return m
}

// Get returns the cached value for key, if present and fresh.
func (m *Memory[T]) Get(_ context.Context, key Key) (T, bool) {
	v, ok := m.lru.Get(key.String())
	if ok {
		m.hits.Add(1)
		return v, true
	}
	m.misses.Add(1)
	var zero T
	return zero, false
}

// Set stores a value under key.
func (m *Memory[T]) Set(_ context.Context, key Key, value T) {
	m.lru.Add(key.String(), value)
}

// GetOrCompute returns the cached value or computes and stores it.
// Concurrent callers with the same key share a single computation. The
// returned bool reports a cache hit.
func (m *Memory[T]) GetOrCompute(ctx context.Context, key Key, compute func(context.Context) (T, error)) (T, bool, error) {
	if v, ok := m.Get(ctx, key); ok {
		return v, true, nil
	}
	rendered := key.String()
	v, err, _ := m.group.Do(rendered, func() (interface{}, error) {
		if v, ok := m.lru.Get(rendered); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		m.lru.Add(rendered, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), false, nil
}

// Invalidate drops every entry whose scope could contain records from the
// given category: entries scoped to it plus all unscoped entries. An empty
// scope clears the whole cache.
func (m *Memory[T]) Invalidate(_ context.Context, scope string) error {
	if scope == "" {
		n := m.lru.Len()
		m.lru.Purge()
		m.logger.Info("cache cleared", "entries", n)
		return nil
	}
	removed := 0
	for _, key := range m.lru.Keys() {
		if scopeMatches(scopeOf(key), scope) {
			if m.lru.Remove(key) {
				removed++
			}
		}
	}
	m.logger.Info("cache invalidated", "scope", scope, "entries_removed", removed)
	return nil
}

// Stats returns current counters. Evictions include TTL expiries.
func (m *Memory[T]) Stats() Stats {
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Entries:   m.lru.Len(),
	}
}
