package searcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mainframe-kb/incident-search/internal/index"
	"github.com/mainframe-kb/incident-search/internal/searcher/cache"
	"github.com/mainframe-kb/incident-search/internal/searcher/compiler"
	"github.com/mainframe-kb/incident-search/internal/searcher/executor"
	"github.com/mainframe-kb/incident-search/internal/store"
	"github.com/mainframe-kb/incident-search/pkg/config"
	"github.com/mainframe-kb/incident-search/pkg/metrics"
)

func testConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultLimit:     10,
		MaxResults:       100,
		MaxQueryLength:   512,
		MaxQueryTerms:    16,
		DefaultProfile:   "balanced",
		SnippetMaxLength: 160,
		SnippetsPerHit:   3,
		Ranking:          config.RankingConfig{K1: 1.2, B: 0.75, TitleBoost: 2.5, UsagePivot: 50},
	}
}

func corpus() []store.Record {
	return []store.Record{
		{
			ID:           "rec-s0c7",
			Title:        "S0C7 data exception in COBOL batch",
			Problem:      "Nightly job abends with S0C7 when moving unvalidated input to a packed field",
			Solution:     "Validate numeric fields with NUMERIC test before arithmetic",
			Category:     "COBOL",
			Tags:         []string{"abend"},
			UsageCount:   12,
			SuccessCount: 9,
			FailureCount: 1,
		},
		{
			ID:           "rec-vsam35",
			Title:        "VSAM open fails with file status 35",
			Problem:      "COBOL program gets file status 35 opening the VSAM master cluster",
			Solution:     "Define the cluster with IDCAMS and load an initial record",
			Category:     "VSAM",
			Tags:         []string{"file-status"},
			UsageCount:   30,
			SuccessCount: 20,
			FailureCount: 2,
		},
		{
			ID:         "rec-jcl",
			Title:      "JCL allocation error IEF212I",
			Problem:    "Dataset not found during step allocation",
			Solution:   "Fix the DSN or add a catalog entry",
			Category:   "JCL",
			UsageCount: 5,
		},
	}
}

func newTestService(t *testing.T, exec SearchExecutor) (*Service, *store.Memory, *index.Engine) {
	t.Helper()
	mem := store.NewMemory()
	for _, rec := range corpus() {
		mem.Put(rec)
	}
	engine := index.NewEngine()
	if err := engine.Rebuild(context.Background(), corpus()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if exec == nil {
		exec = executor.New(engine, executor.DefaultParams)
	}
	svc := New(testConfig(), Deps{
		Store:    mem,
		Index:    engine,
		Executor: exec,
		Cache:    cache.NewMemory[*Response](64, time.Minute),
	})
	return svc, mem, engine
}

func TestSearchErrorCodeScoresHigh(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	resp := svc.Search(context.Background(), "S0C7", Options{Snippets: true})

	if resp.Degraded {
		t.Fatal("unexpected degraded response")
	}
	if len(resp.Results) == 0 || resp.Results[0].Record.ID != "rec-s0c7" {
		t.Fatalf("results = %+v, want rec-s0c7 first", resp.Results)
	}
	if resp.Results[0].Score <= 90 {
		t.Errorf("exact error-code score = %.2f, want > 90", resp.Results[0].Score)
	}
	if resp.Results[0].Explanation == "" {
		t.Error("missing explanation")
	}
}

func TestSearchStatusPhraseRanksAndSnippets(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	resp := svc.Search(context.Background(), "VSAM status 35", Options{Snippets: true})

	if len(resp.Results) == 0 || resp.Results[0].Record.ID != "rec-vsam35" {
		t.Fatalf("results = %+v, want rec-vsam35 first", resp.Results)
	}
	var marked bool
	for _, sn := range resp.Results[0].Snippets {
		if strings.Contains(sn.Text, "<mark>") {
			marked = true
		}
	}
	if !marked {
		t.Errorf("no highlighted snippet in %+v", resp.Results[0].Snippets)
	}
}

type failingExecutor struct{ err error }

func (f *failingExecutor) Execute(context.Context, *compiler.Expression, executor.Filters) ([]executor.Match, error) {
	return nil, f.err
}

func TestSearchFallsBackWhenEngineFails(t *testing.T) {
	svc, _, _ := newTestService(t, &failingExecutor{err: errors.New("postings corrupted")})
	resp := svc.Search(context.Background(), "VSAM", Options{Snippets: true})

	if !resp.Degraded {
		t.Fatal("response should be flagged degraded")
	}
	if len(resp.Results) == 0 {
		t.Fatal("fallback scan should still find records mentioning VSAM")
	}
	for _, r := range resp.Results {
		text := r.Record.Title + " " + r.Record.Problem + " " + r.Record.Solution
		if !strings.Contains(strings.ToLower(text), "vsam") {
			t.Errorf("fallback returned unrelated record %s", r.Record.ID)
		}
	}
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, *compiler.Expression, executor.Filters) ([]executor.Match, error) {
	panic("index corruption")
}

func TestSearchRecoversFromPanic(t *testing.T) {
	svc, _, _ := newTestService(t, panickingExecutor{})
	resp := svc.Search(context.Background(), "cobol", Options{})
	if !resp.Degraded {
		t.Error("panicking pipeline should degrade, not crash")
	}
}

func TestSearchBreakerKeepsFallbackWorking(t *testing.T) {
	svc, _, _ := newTestService(t, &failingExecutor{err: errors.New("boom")})
	// Push well past the failure threshold so the breaker opens.
	for i := 0; i < 10; i++ {
		resp := svc.Search(context.Background(), "cobol", Options{})
		if !resp.Degraded {
			t.Fatalf("call %d: expected degraded response", i)
		}
	}
	if got := svc.Statistics().BreakerState; got != "open" {
		t.Errorf("breaker state = %s, want open", got)
	}
}

func TestSearchCacheHit(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	first := svc.Search(ctx, "s0c7 cobol", Options{})
	if first.CacheHit {
		t.Error("first search should not be a cache hit")
	}
	second := svc.Search(ctx, "s0c7 cobol", Options{})
	if !second.CacheHit {
		t.Error("identical second search should hit the cache")
	}
	// Term order must not split the cache.
	third := svc.Search(ctx, "cobol s0c7", Options{})
	if !third.CacheHit {
		t.Error("reordered query should hit the same cache entry")
	}
}

// slowExecutor delays execution so concurrent identical searches pile up on
// the same in-flight computation.
type slowExecutor struct {
	delay time.Duration
	inner SearchExecutor
}

func (s *slowExecutor) Execute(ctx context.Context, expr *compiler.Expression, f executor.Filters) ([]executor.Match, error) {
	time.Sleep(s.delay)
	return s.inner.Execute(ctx, expr, f)
}

func TestSearchConcurrentCallersGetOwnResponse(t *testing.T) {
	engine := index.NewEngine()
	if err := engine.Rebuild(context.Background(), corpus()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	svc, _, _ := newTestService(t, &slowExecutor{
		delay: 30 * time.Millisecond,
		inner: executor.New(engine, executor.DefaultParams),
	})

	// Coalesced misses share one computed response internally; every caller
	// must still get its own copy, since latency is stamped per caller.
	const callers = 4
	responses := make([]*Response, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = svc.Search(context.Background(), "cobol s0c7", Options{})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if responses[i] == nil || responses[i].Degraded {
			t.Fatalf("caller %d: response = %+v, want non-degraded", i, responses[i])
		}
		if responses[i].TookMS < 0 {
			t.Errorf("caller %d: latency = %d, want >= 0", i, responses[i].TookMS)
		}
		if responses[i].TotalCount != responses[0].TotalCount {
			t.Errorf("caller %d: total = %d, want %d", i, responses[i].TotalCount, responses[0].TotalCount)
		}
		for j := i + 1; j < callers; j++ {
			if responses[i] == responses[j] {
				t.Errorf("callers %d and %d share a response object", i, j)
			}
		}
	}

	// The cached entry must not have been mutated by any caller's bookkeeping:
	// a later hit still serves it cleanly.
	hit := svc.Search(context.Background(), "cobol s0c7", Options{})
	if !hit.CacheHit {
		t.Error("follow-up identical search should hit the cache")
	}
	for i := 0; i < callers; i++ {
		if hit == responses[i] {
			t.Errorf("cache hit shares caller %d's response object", i)
		}
	}
}

func TestApplyUpsertInvalidatesCache(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	before := svc.Search(ctx, "allocation", Options{})
	if len(before.Results) != 1 {
		t.Fatalf("results = %+v, want the JCL record", before.Results)
	}

	svc.Apply(ctx, store.RecordEvent{
		Type: store.EventUpsert,
		Record: store.Record{
			ID:       "rec-new",
			Title:    "Space allocation abend B37",
			Problem:  "Allocation failed with B37",
			Solution: "Increase primary space",
			Category: "JCL",
		},
	})

	after := svc.Search(ctx, "allocation", Options{})
	if after.CacheHit {
		t.Error("cache should have been invalidated by the mutation")
	}
	if len(after.Results) != 2 {
		t.Errorf("results after upsert = %d, want 2", len(after.Results))
	}
}

func TestApplyDeleteRemovesFromResults(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	svc.Apply(ctx, store.RecordEvent{
		Type:   store.EventDelete,
		Record: store.Record{ID: "rec-jcl", Category: "JCL"},
	})
	resp := svc.Search(ctx, "allocation", Options{})
	if len(resp.Results) != 0 {
		t.Errorf("deleted record still returned: %+v", resp.Results)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	for _, q := range []string{"", "   ", "!!! ??? ;;;"} {
		resp := svc.Search(context.Background(), q, Options{})
		if resp == nil || resp.Degraded || len(resp.Results) != 0 {
			t.Errorf("Search(%q) = %+v, want empty non-degraded response", q, resp)
		}
	}
}

func TestSearchUnknownProfileDefaults(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	resp := svc.Search(context.Background(), "cobol", Options{Profile: "nonsense"})
	if resp.Profile != "balanced" {
		t.Errorf("profile = %s, want balanced fallback", resp.Profile)
	}
}

func TestSearchLimitClamp(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	resp := svc.Search(context.Background(), "cobol", Options{Limit: 100000})
	if len(resp.Results) > testConfig().MaxResults {
		t.Errorf("limit clamp failed: %d results", len(resp.Results))
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	resp := svc.Search(context.Background(), "cobol", Options{Category: "VSAM"})
	for _, r := range resp.Results {
		if !strings.EqualFold(r.Record.Category, "VSAM") {
			t.Errorf("category filter leaked record %s (%s)", r.Record.ID, r.Record.Category)
		}
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %+v, want only the VSAM record", resp.Results)
	}
}

// metrics.New registers with the default Prometheus registry, so only one
// test in the package may construct it.
func TestSearchCountsCacheHitsAndMisses(t *testing.T) {
	m := metrics.New()
	mem := store.NewMemory()
	for _, rec := range corpus() {
		mem.Put(rec)
	}
	engine := index.NewEngine()
	if err := engine.Rebuild(context.Background(), corpus()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	svc := New(testConfig(), Deps{
		Store:    mem,
		Index:    engine,
		Executor: executor.New(engine, executor.DefaultParams),
		Cache:    cache.NewMemory[*Response](64, time.Minute),
		Metrics:  m,
	})
	ctx := context.Background()

	svc.Search(ctx, "s0c7 cobol", Options{})
	svc.Search(ctx, "s0c7 cobol", Options{})
	svc.Search(ctx, "s0c7 cobol", Options{})

	if got := testutil.ToFloat64(m.CacheMissesTotal); got != 1 {
		t.Errorf("cache_misses_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 2 {
		t.Errorf("cache_hits_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheEvictions); got != 0 {
		t.Errorf("cache_evictions = %v, want 0", got)
	}
}

func TestRebuildFromStore(t *testing.T) {
	mem := store.NewMemory()
	for _, rec := range corpus() {
		mem.Put(rec)
	}
	engine := index.NewEngine()
	svc := New(testConfig(), Deps{
		Store:    mem,
		Index:    engine,
		Executor: executor.New(engine, executor.DefaultParams),
		Cache:    cache.NewMemory[*Response](64, time.Minute),
	})

	if err := svc.RebuildFromStore(context.Background()); err != nil {
		t.Fatalf("RebuildFromStore: %v", err)
	}
	if got := svc.Statistics().Index.Documents; got != len(corpus()) {
		t.Errorf("indexed documents = %d, want %d", got, len(corpus()))
	}
	resp := svc.Search(context.Background(), "S0C7", Options{})
	if len(resp.Results) == 0 {
		t.Error("search after rebuild found nothing")
	}
}
