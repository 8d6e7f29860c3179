// Package searcher orchestrates the search pipeline: query compilation,
// indexed execution, composite ranking, snippet generation, and result
// caching. A request moves through an explicit state machine
// (Compiling → Searching → Ranking → Snippeting → CacheWrite → Done); any
// failure on the enhanced path transitions to Fallback, a plain lexical scan
// of the knowledge store. Search never returns an error to the caller.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mainframe-kb/incident-search/internal/index"
	"github.com/mainframe-kb/incident-search/internal/searcher/cache"
	"github.com/mainframe-kb/incident-search/internal/searcher/compiler"
	"github.com/mainframe-kb/incident-search/internal/searcher/executor"
	"github.com/mainframe-kb/incident-search/internal/searcher/ranker"
	"github.com/mainframe-kb/incident-search/internal/searcher/snippet"
	"github.com/mainframe-kb/incident-search/internal/store"
	"github.com/mainframe-kb/incident-search/pkg/config"
	"github.com/mainframe-kb/incident-search/pkg/metrics"
	"github.com/mainframe-kb/incident-search/pkg/resilience"
	"github.com/mainframe-kb/incident-search/pkg/tracing"
)

// State names one phase of the search pipeline.
type State string

const (
	StateCompiling  State = "compiling"
	StateSearching  State = "searching"
	StateRanking    State = "ranking"
	StateSnippeting State = "snippeting"
	StateCacheWrite State = "cache_write"
	StateFallback   State = "fallback"
	StateDone       State = "done"
)

// SearchExecutor runs a compiled expression against the index.
type SearchExecutor interface {
	Execute(ctx context.Context, expr *compiler.Expression, filters executor.Filters) ([]executor.Match, error)
}

// IndexAdmin is the mutation surface the service drives on the index.
type IndexAdmin interface {
	Upsert(rec store.Record)
	Delete(id string)
	Rebuild(ctx context.Context, records []store.Record) error
	Stats() index.Stats
}

// ResultCache caches whole responses. Both cache.Memory[*Response] and
// cache.Redis[*Response] satisfy it.
type ResultCache interface {
	GetOrCompute(ctx context.Context, key cache.Key, compute func(context.Context) (*Response, error)) (*Response, bool, error)
	Invalidate(ctx context.Context, scope string) error
	Stats() cache.Stats
}

// Deps are the collaborators a Service needs. Metrics may be nil.
type Deps struct {
	Store    store.Store
	Index    IndexAdmin
	Executor SearchExecutor
	Cache    ResultCache
	Metrics  *metrics.Metrics
}

// Service is the search orchestrator.
type Service struct {
	cfg     config.SearchConfig
	store   store.Store
	index   IndexAdmin
	exec    SearchExecutor
	cache   ResultCache
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(cfg config.SearchConfig, deps Deps) *Service {
	return &Service{
		cfg:     cfg,
		store:   deps.Store,
		index:   deps.Index,
		exec:    deps.Executor,
		cache:   deps.Cache,
		breaker: resilience.NewCircuitBreaker("search-engine", resilience.CircuitBreakerConfig{}),
		metrics: deps.Metrics,
		logger:  slog.Default().With("component", "search-service"),
	}
}

// Search answers a query. It always returns a usable Response: compilation
// cannot fail, engine failures fall back to a lexical store scan with
// Degraded set, and cache failures count as misses.
func (s *Service) Search(ctx context.Context, query string, opts Options) *Response {
	start := time.Now()
	opts = s.normalize(opts)

	ctx, span := tracing.StartChildSpan(ctx, "search")
	span.SetAttr("query", query)
	defer span.End()

	st := StateCompiling
	expr := compiler.Compile(query, compiler.Limits{
		MaxQueryLength: s.cfg.MaxQueryLength,
		MaxTerms:       s.cfg.MaxQueryTerms,
	})
	if expr.Empty() {
		s.count("empty_query")
		return s.finish(&Response{Query: query, Profile: opts.Profile, Results: []Result{}}, start, "bypass")
	}

	key := cache.Key{Query: expr.NormalizedKey(), Scope: opts.Category, Opts: opts.cacheOpts()}
	resp, hit, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*Response, error) {
		return s.enhanced(ctx, st, expr, query, opts)
	})
	if err != nil {
		s.logger.Warn("enhanced search failed, falling back",
			"query", query,
			"state", string(StateFallback),
			"error", err,
		)
		return s.finish(s.fallback(ctx, query, opts), start, "bypass")
	}
	// The computed response is the cached object, and on a singleflight-
	// coalesced miss it is also shared with concurrent callers. finish
	// writes TookMS, so every caller works on its own copy.
	copied := *resp
	resp = &copied
	if hit {
		resp.CacheHit = true
		s.count("ok")
		return s.finish(resp, start, "hit")
	}
	if len(resp.Results) == 0 {
		s.count("zero_result")
	} else {
		s.count("ok")
	}
	return s.finish(resp, start, "miss")
}

// enhanced is the indexed pipeline, guarded by the circuit breaker. A panic
// anywhere inside counts as a failure and trips toward the breaker's
// threshold like any other error.
func (s *Service) enhanced(ctx context.Context, st State, expr *compiler.Expression, query string, opts Options) (resp *Response, err error) {
	err = s.breaker.Execute(func() (ferr error) {
		defer func() {
			if r := recover(); r != nil {
				ferr = fmt.Errorf("search pipeline panic in state %s: %v", st, r)
			}
		}()

		st = s.transition(st, StateSearching)
		matches, execErr := s.exec.Execute(ctx, expr, executor.Filters{Category: opts.Category, Tags: opts.Tags})
		if execErr != nil {
			return execErr
		}

		st = s.transition(st, StateRanking)
		profile, _ := ranker.ParseProfile(opts.Profile)
		ranked := ranker.Rank(matches, ranker.Options{
			Profile:    profile,
			Limit:      opts.Limit,
			UsagePivot: s.cfg.Ranking.UsagePivot,
			Debug:      opts.Debug,
		})

		st = s.transition(st, StateSnippeting)
		results := make([]Result, 0, len(ranked))
		for _, r := range ranked {
			res := Result{
				Record:      r.Record,
				Score:       r.Score,
				Explanation: r.Explanation,
				Debug:       r.Debug,
			}
			if opts.Snippets {
				res.Snippets = s.snippets(r.Record, expr)
			}
			results = append(results, res)
		}

		st = s.transition(st, StateCacheWrite)
		resp = &Response{
			Query:      query,
			Profile:    profile.String(),
			Results:    results,
			TotalCount: len(matches),
		}
		st = s.transition(st, StateDone)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// fallback is the degraded path: a dumb substring scan against the store,
// bypassing tokenizer, index, and ranker entirely. Results are ordered by
// usage and never cached.
func (s *Service) fallback(ctx context.Context, query string, opts Options) *Response {
	s.count("degraded")
	if s.metrics != nil {
		s.metrics.SearchFallbacksTotal.Inc()
	}

	records, err := s.store.ScanLexical(ctx, query, opts.Limit)
	if err != nil {
		s.logger.Error("fallback scan failed", "query", query, "error", err)
		return &Response{Query: query, Profile: opts.Profile, Results: []Result{}, Degraded: true}
	}

	results := make([]Result, 0, len(records))
	for _, rec := range records {
		if opts.Category != "" && !recordInCategory(rec, opts.Category) {
			continue
		}
		res := Result{
			Record:      rec,
			Explanation: "lexical scan (degraded)",
		}
		if opts.Snippets {
			res.Snippets = snippet.Generate(recordFields(rec), rawTerms(query), snippet.Options{
				MaxLength:   s.cfg.SnippetMaxLength,
				MaxSnippets: s.cfg.SnippetsPerHit,
			})
		}
		results = append(results, res)
	}
	return &Response{
		Query:      query,
		Profile:    opts.Profile,
		Results:    results,
		TotalCount: len(results),
		Degraded:   true,
	}
}

func (s *Service) snippets(rec store.Record, expr *compiler.Expression) []snippet.Snippet {
	terms := make([]string, 0, len(expr.Clauses)*2)
	for _, c := range expr.Clauses {
		terms = append(terms, c.Surface)
		if c.Term != c.Surface {
			terms = append(terms, c.Term)
		}
	}
	return snippet.Generate(recordFields(rec), terms, snippet.Options{
		MaxLength:   s.cfg.SnippetMaxLength,
		MaxSnippets: s.cfg.SnippetsPerHit,
	})
}

// Apply folds one record mutation event into the index and invalidates the
// affected cache scope.
func (s *Service) Apply(ctx context.Context, event store.RecordEvent) {
	switch event.Type {
	case store.EventUpsert:
		s.index.Upsert(event.Record)
		if s.metrics != nil {
			s.metrics.RecordsIndexedTotal.Inc()
		}
	case store.EventDelete:
		s.index.Delete(event.Record.ID)
		if s.metrics != nil {
			s.metrics.RecordsDeletedTotal.Inc()
		}
	default:
		s.logger.Warn("unknown record event type", "type", event.Type)
		return
	}

	// Category scope narrows the invalidation; an event without one clears
	// the whole cache.
	if err := s.cache.Invalidate(ctx, event.Record.Category); err != nil {
		s.logger.Error("cache invalidation failed", "scope", event.Record.Category, "error", err)
	}
	s.updateIndexGauges()
}

// RebuildFromStore loads the full corpus and rebuilds the index, retrying
// transient store failures. Used at startup and for manual reindexing.
func (s *Service) RebuildFromStore(ctx context.Context) error {
	return resilience.WithTimeout(ctx, s.cfg.RebuildTimeout, "index-rebuild", s.rebuild)
}

func (s *Service) rebuild(ctx context.Context) error {
	var records []store.Record
	err := resilience.Retry(ctx, "store-list", resilience.RetryConfig{}, func() error {
		var listErr error
		records, listErr = s.store.List(ctx)
		return listErr
	})
	if err != nil {
		s.countRebuild("error")
		return fmt.Errorf("loading records for rebuild: %w", err)
	}

	if err := s.index.Rebuild(ctx, records); err != nil {
		s.countRebuild("error")
		return fmt.Errorf("rebuilding index: %w", err)
	}
	if err := s.cache.Invalidate(ctx, ""); err != nil {
		s.logger.Error("cache clear after rebuild failed", "error", err)
	}
	s.countRebuild("ok")
	s.updateIndexGauges()
	s.logger.Info("index rebuilt from store", "records", len(records))
	return nil
}

// Statistics is the operational snapshot served by the statistics endpoint.
type Statistics struct {
	Index        index.Stats `json:"index"`
	Cache        cache.Stats `json:"cache"`
	BreakerState string      `json:"breaker_state"`
}

func (s *Service) Statistics() Statistics {
	return Statistics{
		Index:        s.index.Stats(),
		Cache:        s.cache.Stats(),
		BreakerState: s.breaker.GetState().String(),
	}
}

// InvalidateCache exposes manual cache invalidation (empty scope clears all).
func (s *Service) InvalidateCache(ctx context.Context, scope string) error {
	return s.cache.Invalidate(ctx, scope)
}

// CacheStats exposes the cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Service) normalize(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxResults > 0 && opts.Limit > s.cfg.MaxResults {
		opts.Limit = s.cfg.MaxResults
	}
	if opts.Profile == "" {
		opts.Profile = s.cfg.DefaultProfile
	}
	if _, ok := ranker.ParseProfile(opts.Profile); !ok {
		s.logger.Warn("unknown ranking profile, using default", "profile", opts.Profile)
		opts.Profile = ranker.ProfileBalanced.String()
	}
	return opts
}

func (s *Service) transition(from, to State) State {
	s.logger.Debug("pipeline transition", "from", string(from), "to", string(to))
	return to
}

func (s *Service) finish(resp *Response, start time.Time, cacheStatus string) *Response {
	resp.TookMS = time.Since(start).Milliseconds()
	if s.metrics != nil {
		switch cacheStatus {
		case "hit":
			s.metrics.CacheHitsTotal.Inc()
		case "miss":
			s.metrics.CacheMissesTotal.Inc()
		}
		s.metrics.CacheEvictions.Set(float64(s.cache.Stats().Evictions))
		s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
		s.metrics.SearchResultsCount.Observe(float64(len(resp.Results)))
		s.metrics.CircuitBreakerState.WithLabelValues("search-engine").Set(float64(s.breaker.GetState()))
	}
	return resp
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countRebuild(status string) {
	if s.metrics != nil {
		s.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Service) updateIndexGauges() {
	if s.metrics == nil {
		return
	}
	stats := s.index.Stats()
	s.metrics.IndexDocCount.Set(float64(stats.Documents))
	s.metrics.IndexTermCount.Set(float64(stats.Terms))
}

func rawTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func recordFields(rec store.Record) []snippet.Field {
	return []snippet.Field{
		{Name: "title", Text: rec.Title},
		{Name: "problem", Text: rec.Problem},
		{Name: "solution", Text: rec.Solution},
	}
}

func recordInCategory(rec store.Record, category string) bool {
	return strings.EqualFold(rec.Category, category)
}
