package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mainframe-kb/incident-search/internal/index"
	"github.com/mainframe-kb/incident-search/internal/index/tokenizer"
	"github.com/mainframe-kb/incident-search/internal/searcher"
	"github.com/mainframe-kb/incident-search/internal/searcher/cache"
	"github.com/mainframe-kb/incident-search/internal/searcher/compiler"
	"github.com/mainframe-kb/incident-search/internal/searcher/executor"
	"github.com/mainframe-kb/incident-search/internal/searcher/ranker"
	"github.com/mainframe-kb/incident-search/internal/store"
	"github.com/mainframe-kb/incident-search/pkg/config"
)

// BenchmarkQueryCompile measures query compilation latency for queries of
// varying shape.
func BenchmarkQueryCompile(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "dataset allocation failure"},
		{"error_code", "S0C7 abend in payroll batch"},
		{"status_phrase", "vsam file status 35 on open"},
		{"mixed", "IEF212I allocation error gdg generation missing"},
		{"long", "cics transaction asra abend storage violation dump offset compile listing working storage"},
	}

	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				expr := compiler.Compile(q.query, compiler.DefaultLimits)
				_ = expr
			}
		})
	}
}

// BenchmarkExecute measures BM25 retrieval over increasing corpus sizes.
func BenchmarkExecute(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			engine := index.NewEngine()
			if err := engine.Rebuild(context.Background(), syntheticRecords(n)); err != nil {
				b.Fatal(err)
			}
			exec := executor.New(engine, executor.DefaultParams)
			expr := compiler.Compile("dataset allocation vsam", compiler.DefaultLimits)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				matches, err := exec.Execute(context.Background(), expr, executor.Filters{})
				if err != nil {
					b.Fatal(err)
				}
				_ = matches
			}
		})
	}
}

// BenchmarkRank measures composite scoring and top-k selection for candidate
// sets of varying size.
func BenchmarkRank(b *testing.B) {
	sizes := []int{10, 100, 1000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("candidates_%d", n), func(b *testing.B) {
			matches := make([]executor.Match, n)
			for i := 0; i < n; i++ {
				matches[i] = executor.Match{
					Record: store.Record{
						ID:           fmt.Sprintf("rec-%05d", i),
						Category:     "JCL",
						Tags:         []string{"batch"},
						UsageCount:   i % 60,
						SuccessCount: i % 7,
						FailureCount: i % 3,
					},
					BM25: float64(n-i) * 0.37,
					Matched: []executor.MatchedTerm{
						{Term: "alloc", Surface: "allocation", Kind: tokenizer.KindGeneral, Weight: 1.0, TF: 2},
						{Term: "vsam", Surface: "vsam", Kind: tokenizer.KindDomainKeyword, Weight: 2.0, TF: 1},
					},
				}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ranked := ranker.Rank(matches, ranker.Options{Profile: ranker.ProfileBalanced, Limit: 10})
				_ = ranked
			}
		})
	}
}

// BenchmarkServiceSearch measures the full pipeline with caching disabled by
// unique queries, and separately the cache-hit path.
func BenchmarkServiceSearch(b *testing.B) {
	svc := newBenchService(b, 5000)

	b.Run("cold", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			resp := svc.Search(context.Background(),
				fmt.Sprintf("dataset allocation vsam %d", i), searcher.Options{Limit: 10})
			_ = resp
		}
	})

	b.Run("cached", func(b *testing.B) {
		svc.Search(context.Background(), "dataset allocation vsam", searcher.Options{Limit: 10})
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			resp := svc.Search(context.Background(), "dataset allocation vsam", searcher.Options{Limit: 10})
			_ = resp
		}
	})
}

// BenchmarkServiceSearchParallel measures concurrent search throughput.
func BenchmarkServiceSearchParallel(b *testing.B) {
	svc := newBenchService(b, 5000)

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			resp := svc.Search(context.Background(),
				fmt.Sprintf("batch abend restart %d", i%100), searcher.Options{Limit: 10})
			_ = resp
			i++
		}
	})
}

func newBenchService(b *testing.B, corpusSize int) *searcher.Service {
	b.Helper()

	mem := store.NewMemory()
	for _, rec := range syntheticRecords(corpusSize) {
		mem.Put(rec)
	}
	engine := index.NewEngine()
	exec := executor.New(engine, executor.DefaultParams)

	cfg := config.SearchConfig{
		DefaultLimit:     10,
		MaxResults:       100,
		MaxQueryLength:   512,
		MaxQueryTerms:    16,
		DefaultProfile:   "balanced",
		SnippetMaxLength: 160,
		SnippetsPerHit:   3,
		RebuildTimeout:   time.Minute,
		Ranking:          config.RankingConfig{K1: 1.2, B: 0.75, TitleBoost: 2.5, UsagePivot: 50},
	}
	svc := searcher.New(cfg, searcher.Deps{
		Store:    mem,
		Index:    engine,
		Executor: exec,
		Cache:    cache.NewMemory[*searcher.Response](4096, time.Minute),
	})
	if err := svc.RebuildFromStore(context.Background()); err != nil {
		b.Fatal(err)
	}
	return svc
}
