// Package executor evaluates compiled query expressions against the inverted
// index: postings lookup, AND intersection, BM25 scoring with title
// weighting, and category/tag post-filtering. It produces raw matches; the
// ranker turns those into final composite scores.
package executor

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/mainframe-kb/incident-search/internal/index"
	"github.com/mainframe-kb/incident-search/internal/index/tokenizer"
	"github.com/mainframe-kb/incident-search/internal/searcher/compiler"
	"github.com/mainframe-kb/incident-search/internal/store"
)

// Index is the read surface the executor needs from the index engine.
type Index interface {
	Lookup(term string, prefix bool) []index.Posting
	Record(id string) (store.Record, bool)
	DocLength(id string) int
	AvgDocLength() float64
	DocCount() int
}

// Filters restrict matches after lexical evaluation. Zero value filters
// nothing.
type Filters struct {
	Category string
	Tags     []string
}

// MatchedTerm records one query clause that matched a record, with the
// weight the tokenizer assigned to it. The ranker folds these weights into
// the composite score and the snippet generator highlights the surfaces.
type MatchedTerm struct {
	Term    string
	Surface string
	Kind    tokenizer.Kind
	Weight  float64
	TF      int
}

// Match is one record that satisfies every clause of the expression.
// BM25 is the raw lexical score; the ranker normalises it within the
// candidate set.
type Match struct {
	Record  store.Record
	BM25    float64
	Matched []MatchedTerm
}

// Params are the BM25 tuning knobs, set from search.ranking config.
type Params struct {
	K1         float64
	B          float64
	TitleBoost float64
}

// DefaultParams match the config defaults.
var DefaultParams = Params{K1: 1.2, B: 0.75, TitleBoost: 2.5}

// Executor runs expressions against a single index.
type Executor struct {
	idx    Index
	params Params
	logger *slog.Logger
}

func New(idx Index, params Params) *Executor {
	if params.K1 <= 0 {
		params.K1 = DefaultParams.K1
	}
	if params.B <= 0 {
		params.B = DefaultParams.B
	}
	if params.TitleBoost <= 0 {
		params.TitleBoost = DefaultParams.TitleBoost
	}
	return &Executor{
		idx:    idx,
		params: params,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates the expression as a conjunction: a record must match
// every clause. An empty expression yields no matches and no error.
func (e *Executor) Execute(ctx context.Context, expr *compiler.Expression, filters Filters) ([]Match, error) {
	if expr.Empty() {
		return []Match{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	postingsPerClause := make([]map[string]index.Posting, len(expr.Clauses))
	for i, c := range expr.Clauses {
		postings := e.idx.Lookup(c.Term, c.Prefix)
		byDoc := make(map[string]index.Posting, len(postings))
		for _, p := range postings {
			byDoc[p.RecordID] = p
		}
		if len(byDoc) == 0 {
			// AND semantics: one clause with no postings empties the result.
			return []Match{}, nil
		}
		postingsPerClause[i] = byDoc
	}

	candidates := intersect(postingsPerClause)

	totalDocs := e.idx.DocCount()
	avgLen := e.idx.AvgDocLength()

	matches := make([]Match, 0, len(candidates))
	for id := range candidates {
		rec, ok := e.idx.Record(id)
		if !ok {
			continue
		}
		if !passesFilters(rec, filters) {
			continue
		}

		var score float64
		matched := make([]MatchedTerm, 0, len(expr.Clauses))
		for i, c := range expr.Clauses {
			p := postingsPerClause[i][id]
			idf := computeIDF(totalDocs, len(postingsPerClause[i]))
			effTF := float64(p.TF) + (e.params.TitleBoost-1)*float64(p.TitleTF)
			score += idf * e.tfNorm(effTF, float64(e.idx.DocLength(id)), avgLen)
			matched = append(matched, MatchedTerm{
				Term:    c.Term,
				Surface: c.Surface,
				Kind:    c.Kind,
				Weight:  c.Weight,
				TF:      p.TF,
			})
		}
		matches = append(matches, Match{Record: rec, BM25: score, Matched: matched})
	}

	e.logger.Debug("expression executed",
		"clauses", len(expr.Clauses),
		"candidates", len(candidates),
		"matches", len(matches),
	)
	return matches, nil
}

// intersect returns the record IDs present in every clause's postings,
// seeded from the smallest set.
func intersect(perClause []map[string]index.Posting) map[string]struct{} {
	smallest := 0
	for i, byDoc := range perClause {
		if len(byDoc) < len(perClause[smallest]) {
			smallest = i
		}
	}
	candidates := make(map[string]struct{}, len(perClause[smallest]))
	for id := range perClause[smallest] {
		candidates[id] = struct{}{}
	}
	for i, byDoc := range perClause {
		if i == smallest {
			continue
		}
		for id := range candidates {
			if _, ok := byDoc[id]; !ok {
				delete(candidates, id)
			}
		}
	}
	return candidates
}

func passesFilters(rec store.Record, f Filters) bool {
	if f.Category != "" && !strings.EqualFold(rec.Category, f.Category) {
		return false
	}
	for _, tag := range f.Tags {
		if !rec.HasTag(tag) {
			return false
		}
	}
	return true
}

func computeIDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func (e *Executor) tfNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + e.params.K1*(1-e.params.B+e.params.B*lengthRatio)
	return (termFreq * (e.params.K1 + 1)) / denominator
}
