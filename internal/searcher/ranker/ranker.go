// Package ranker turns raw executor matches into the final ranked result
// list. The composite score blends four components on a 0-100 scale:
// normalised lexical relevance amplified by matched-token weight, log-dampened
// usage, resolution success rate, and a taxonomy boost when query terms name
// the record's category or tags. Component weights come from the selected
// Profile. Ordering is total and deterministic: score desc, usage desc,
// record ID asc.
package ranker

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mainframe-kb/incident-search/internal/searcher/executor"
	"github.com/mainframe-kb/incident-search/internal/store"
)

// Options tune a single ranking pass.
type Options struct {
	Profile Profile
	Limit   int
	// UsagePivot is the usage count that saturates the usage component.
	UsagePivot int
	// Debug attaches per-component breakdowns to each result.
	Debug bool
}

// DefaultUsagePivot matches the ranking config default.
const DefaultUsagePivot = 50

// lexicalCap bounds the lexical component below the total's ceiling, so
// usage, success and taxonomy still order records whose lexical component
// has saturated. An exact error-code match alone still clears 90.
const lexicalCap = 92.0

// RankedResult is one scored record with its explanation.
type RankedResult struct {
	Record      store.Record `json:"record"`
	Score       float64      `json:"score"`
	Explanation string       `json:"explanation"`
	Debug       *DebugInfo   `json:"debug,omitempty"`
}

// DebugInfo breaks a score into its components for diagnostics.
type DebugInfo struct {
	Profile      string             `json:"profile"`
	LexicalNorm  float64            `json:"lexical_norm"`
	TokenWeight  float64            `json:"token_weight"`
	Components   map[string]float64 `json:"components"`
	MatchedTerms []string           `json:"matched_terms"`
}

// Rank scores and orders matches. The lexical component is normalised
// against the best BM25 score in this candidate set, so the strongest
// lexical match always contributes its full share.
func Rank(matches []executor.Match, opts Options) []RankedResult {
	if len(matches) == 0 {
		return []RankedResult{}
	}
	if opts.UsagePivot <= 0 {
		opts.UsagePivot = DefaultUsagePivot
	}
	w := opts.Profile.weights()

	var maxBM25 float64
	for _, m := range matches {
		if m.BM25 > maxBM25 {
			maxBM25 = m.BM25
		}
	}

	results := make([]RankedResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, score(m, w, maxBM25, opts))
	}
	return topK(results, opts.Limit)
}

func score(m executor.Match, w weights, maxBM25 float64, opts Options) RankedResult {
	lexNorm := 0.0
	if maxBM25 > 0 {
		lexNorm = m.BM25 / maxBM25
	}

	tokenWeight := avgTokenWeight(m.Matched)
	domainFactor := 1 + (tokenWeight-1)*w.DomainBoost

	lexical := clamp(w.Lexical*100*lexNorm*domainFactor, 0, lexicalCap)
	usage := w.Usage * 100 * usageSignal(m.Record.UsageCount, opts.UsagePivot)
	success := w.Success * 100 * m.Record.SuccessRate()
	taxonomy := w.Taxonomy * 100 * taxonomySignal(m.Record, m.Matched)

	total := clamp(lexical+usage+success+taxonomy, 0, 100)

	res := RankedResult{
		Record: m.Record,
		Score:  math.Round(total*100) / 100,
		Explanation: fmt.Sprintf(
			"lexical %.1f (%d terms, token weight %.1f) + usage %.1f + success %.1f + taxonomy %.1f",
			lexical, len(m.Matched), tokenWeight, usage, success, taxonomy,
		),
	}
	if opts.Debug {
		terms := make([]string, 0, len(m.Matched))
		for _, mt := range m.Matched {
			terms = append(terms, mt.Term)
		}
		res.Debug = &DebugInfo{
			Profile:     opts.Profile.String(),
			LexicalNorm: lexNorm,
			TokenWeight: tokenWeight,
			Components: map[string]float64{
				"lexical":  lexical,
				"usage":    usage,
				"success":  success,
				"taxonomy": taxonomy,
			},
			MatchedTerms: terms,
		}
	}
	return res
}

func avgTokenWeight(matched []executor.MatchedTerm) float64 {
	if len(matched) == 0 {
		return 1
	}
	var sum float64
	for _, mt := range matched {
		sum += mt.Weight
	}
	return sum / float64(len(matched))
}

// usageSignal dampens raw usage counts logarithmically and saturates at the
// pivot, so a record used thousands of times cannot drown out relevance.
func usageSignal(usage, pivot int) float64 {
	if usage <= 0 {
		return 0
	}
	s := math.Log1p(float64(usage)) / math.Log1p(float64(pivot))
	if s > 1 {
		return 1
	}
	return s
}

// taxonomySignal is 1 when any matched query term names the record's
// category or one of its tags.
func taxonomySignal(rec store.Record, matched []executor.MatchedTerm) float64 {
	for _, mt := range matched {
		if strings.EqualFold(mt.Surface, rec.Category) || strings.EqualFold(mt.Term, rec.Category) {
			return 1
		}
		if rec.HasTag(mt.Surface) || rec.HasTag(mt.Term) {
			return 1
		}
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// less is the total result order: score desc, usage desc, record ID asc.
func less(a, b RankedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Record.UsageCount != b.Record.UsageCount {
		return a.Record.UsageCount > b.Record.UsageCount
	}
	return a.Record.ID < b.Record.ID
}

// sortAll orders an entire slice; used when no limit applies.
func sortAll(results []RankedResult) {
	sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })
}
