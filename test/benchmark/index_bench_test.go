// Package benchmark contains Go benchmarks for the inverted index, the query
// pipeline, and the search service, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/mainframe-kb/incident-search/internal/index"
	"github.com/mainframe-kb/incident-search/internal/store"
)

var benchTerms = []string{"abend", "dataset", "alloc", "vsam", "restart", "sqlcode", "compil", "batch"}

func syntheticRecords(n int) []store.Record {
	records := make([]store.Record, n)
	for i := 0; i < n; i++ {
		records[i] = store.Record{
			ID:    fmt.Sprintf("rec-%05d", i),
			Title: fmt.Sprintf("Batch job abend during %s processing", benchTerms[i%len(benchTerms)]),
			Problem: fmt.Sprintf(
				"The nightly job failed with an error while processing the %s step. "+
					"The dataset could not be allocated and the restart attempt hit VSAM status 35.",
				benchTerms[(i+1)%len(benchTerms)]),
			Solution: fmt.Sprintf(
				"Verify the catalog entry, redefine the %s cluster, and resubmit from the failing step.",
				benchTerms[(i+2)%len(benchTerms)]),
			Category:   "JCL",
			Tags:       []string{"batch", benchTerms[i%len(benchTerms)]},
			UsageCount: i % 40,
		}
	}
	return records
}

// BenchmarkEngineUpsert measures per-record insert throughput.
func BenchmarkEngineUpsert(b *testing.B) {
	records := syntheticRecords(1000)
	engine := index.NewEngine()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := records[i%len(records)]
		rec.ID = fmt.Sprintf("bench-%d", i)
		engine.Upsert(rec)
	}
}

// BenchmarkEngineLookup measures single-term lookup latency over 10 000
// records.
func BenchmarkEngineLookup(b *testing.B) {
	engine := index.NewEngine()
	if err := engine.Rebuild(context.Background(), syntheticRecords(10000)); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		postings := engine.Lookup(benchTerms[i%len(benchTerms)], false)
		_ = postings
	}
}

// BenchmarkEngineLookupPrefix measures prefix-expanded lookups, which walk a
// term range instead of a single posting list.
func BenchmarkEngineLookupPrefix(b *testing.B) {
	engine := index.NewEngine()
	if err := engine.Rebuild(context.Background(), syntheticRecords(10000)); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		postings := engine.Lookup("alloc", true)
		_ = postings
	}
}

// BenchmarkEngineLookupParallel measures concurrent read throughput under the
// engine's read lock.
func BenchmarkEngineLookupParallel(b *testing.B) {
	engine := index.NewEngine()
	if err := engine.Rebuild(context.Background(), syntheticRecords(10000)); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			postings := engine.Lookup(benchTerms[i%len(benchTerms)], false)
			_ = postings
			i++
		}
	})
}

// BenchmarkEngineRebuild measures full rebuild cost at various corpus sizes.
func BenchmarkEngineRebuild(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			records := syntheticRecords(n)
			engine := index.NewEngine()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := engine.Rebuild(context.Background(), records); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
