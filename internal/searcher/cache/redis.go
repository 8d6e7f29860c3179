package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	pkgredis "github.com/mainframe-kb/incident-search/pkg/redis"
)

// Redis is the distributed result cache, sharing entries across search
// instances. Same contract as Memory: failures degrade to misses.
type Redis[T any] struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedis[T any](client *pkgredis.Client, ttl time.Duration) *Redis[T] {
	return &Redis[T]{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "result-cache-redis"),
	}
}

func (r *Redis[T]) Get(ctx context.Context, key Key) (T, bool) {
	var zero T
	data, err := r.client.Get(ctx, key.String())
	if err != nil {
		if !pkgredis.IsNilError(err) {
			r.logger.Error("cache get failed", "key", key.String(), "error", err)
		}
		r.misses.Add(1)
		return zero, false
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		r.logger.Error("cache unmarshal failed", "key", key.String(), "error", err)
		r.misses.Add(1)
		return zero, false
	}
	r.hits.Add(1)
	return v, true
}

func (r *Redis[T]) Set(ctx context.Context, key Key, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Error("cache marshal failed", "key", key.String(), "error", err)
		return
	}
	if err := r.client.Set(ctx, key.String(), data, r.ttl); err != nil {
		r.logger.Error("cache set failed", "key", key.String(), "error", err)
	}
}

func (r *Redis[T]) GetOrCompute(ctx context.Context, key Key, compute func(context.Context) (T, error)) (T, bool, error) {
	if v, ok := r.Get(ctx, key); ok {
		return v, true, nil
	}
	v, err, _ := r.group.Do(key.String(), func() (interface{}, error) {
		if v, ok := r.Get(ctx, key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		r.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), false, nil
}

// Invalidate deletes entries scoped to the category plus unscoped entries,
// or everything when scope is empty.
func (r *Redis[T]) Invalidate(ctx context.Context, scope string) error {
	patterns := []string{keyPrefix + ":*"}
	if scope != "" {
		patterns = []string{
			keyPrefix + "::*",
			keyPrefix + ":" + strings.ToLower(scope) + ":*",
		}
	}
	var total int64
	for _, p := range patterns {
		deleted, err := r.client.FlushByPattern(ctx, p)
		total += deleted
		if err != nil {
			return fmt.Errorf("invalidating cache: %w", err)
		}
	}
	r.logger.Info("cache invalidated", "scope", scope, "keys_deleted", total)
	return nil
}

// Stats returns hit/miss counters for this instance. Entry and eviction
// counts live server-side and are not reported here.
func (r *Redis[T]) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}
