package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type cached struct {
	IDs []string `json:"ids"`
}

func TestKeyScopeRoundTrip(t *testing.T) {
	k := Key{Query: "s0c7", Scope: "COBOL", Opts: "limit=10"}
	rendered := k.String()
	if got := scopeOf(rendered); got != "cobol" {
		t.Errorf("scopeOf(%q) = %q, want cobol", rendered, got)
	}
	unscoped := Key{Query: "s0c7", Opts: "limit=10"}.String()
	if got := scopeOf(unscoped); got != "" {
		t.Errorf("scopeOf(%q) = %q, want empty", unscoped, got)
	}
	if rendered == unscoped {
		t.Error("scoped and unscoped keys must differ")
	}
}

func TestKeyOptionsSplitEntries(t *testing.T) {
	a := Key{Query: "vsam", Opts: "limit=10"}.String()
	b := Key{Query: "vsam", Opts: "limit=20"}.String()
	if a == b {
		t.Error("different options must produce different keys")
	}
}

func TestMemoryGetOrCompute(t *testing.T) {
	c := NewMemory[cached](16, time.Minute)
	ctx := context.Background()
	key := Key{Query: "s0c7", Opts: "limit=10"}

	var calls atomic.Int32
	compute := func(context.Context) (cached, error) {
		calls.Add(1)
		return cached{IDs: []string{"rec-1"}}, nil
	}

	v, hit, err := c.GetOrCompute(ctx, key, compute)
	if err != nil || hit || len(v.IDs) != 1 {
		t.Fatalf("first call: v=%+v hit=%v err=%v", v, hit, err)
	}
	v, hit, err = c.GetOrCompute(ctx, key, compute)
	if err != nil || !hit || len(v.IDs) != 1 {
		t.Fatalf("second call: v=%+v hit=%v err=%v", v, hit, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestMemoryComputeErrorNotCached(t *testing.T) {
	c := NewMemory[cached](16, time.Minute)
	ctx := context.Background()
	key := Key{Query: "boom"}

	fail := errors.New("index unavailable")
	if _, _, err := c.GetOrCompute(ctx, key, func(context.Context) (cached, error) {
		return cached{}, fail
	}); !errors.Is(err, fail) {
		t.Fatalf("err = %v, want %v", err, fail)
	}
	// The failure must not poison the key.
	v, hit, err := c.GetOrCompute(ctx, key, func(context.Context) (cached, error) {
		return cached{IDs: []string{"ok"}}, nil
	})
	if err != nil || hit || len(v.IDs) != 1 {
		t.Errorf("after failure: v=%+v hit=%v err=%v", v, hit, err)
	}
}

func TestMemoryScopedInvalidation(t *testing.T) {
	c := NewMemory[cached](16, time.Minute)
	ctx := context.Background()

	unscoped := Key{Query: "abend"}
	cobol := Key{Query: "abend", Scope: "COBOL"}
	vsam := Key{Query: "status 35", Scope: "VSAM"}
	for _, k := range []Key{unscoped, cobol, vsam} {
		c.Set(ctx, k, cached{IDs: []string{"x"}})
	}

	// A COBOL record changed: COBOL-scoped and unscoped entries go, the
	// VSAM-scoped entry survives.
	if err := c.Invalidate(ctx, "COBOL"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := c.Get(ctx, unscoped); ok {
		t.Error("unscoped entry survived scoped invalidation")
	}
	if _, ok := c.Get(ctx, cobol); ok {
		t.Error("cobol entry survived its own scope's invalidation")
	}
	if _, ok := c.Get(ctx, vsam); !ok {
		t.Error("vsam entry should survive a cobol invalidation")
	}
}

func TestMemoryFullClear(t *testing.T) {
	c := NewMemory[cached](16, time.Minute)
	ctx := context.Background()
	c.Set(ctx, Key{Query: "a", Scope: "JCL"}, cached{})
	c.Set(ctx, Key{Query: "b"}, cached{})

	if err := c.Invalidate(ctx, ""); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if c.Stats().Entries != 0 {
		t.Errorf("entries = %d after full clear, want 0", c.Stats().Entries)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	c := NewMemory[cached](16, 30*time.Millisecond)
	ctx := context.Background()
	key := Key{Query: "ephemeral"}
	c.Set(ctx, key, cached{IDs: []string{"x"}})
	time.Sleep(150 * time.Millisecond)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("entry survived past its TTL")
	}
}

func TestMemorySingleflight(t *testing.T) {
	c := NewMemory[cached](16, time.Minute)
	ctx := context.Background()
	key := Key{Query: "concurrent"}

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (cached, error) {
		calls.Add(1)
		<-release
		return cached{IDs: []string{"x"}}, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(ctx, key, compute); err != nil {
				t.Errorf("GetOrCompute: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times for concurrent identical lookups, want 1", n)
	}
}

func TestMemoryCapacityEviction(t *testing.T) {
	c := NewMemory[cached](2, time.Minute)
	ctx := context.Background()
	c.Set(ctx, Key{Query: "a"}, cached{})
	c.Set(ctx, Key{Query: "b"}, cached{})
	c.Set(ctx, Key{Query: "c"}, cached{})

	s := c.Stats()
	if s.Entries != 2 {
		t.Errorf("entries = %d, want 2", s.Entries)
	}
	if s.Evictions == 0 {
		t.Error("expected an eviction to be counted")
	}
}
