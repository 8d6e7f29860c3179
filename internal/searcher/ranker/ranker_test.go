package ranker

import (
	"testing"

	"github.com/mainframe-kb/incident-search/internal/index/tokenizer"
	"github.com/mainframe-kb/incident-search/internal/searcher/executor"
	"github.com/mainframe-kb/incident-search/internal/store"
)

func errorCodeMatch(id string, bm25 float64, rec store.Record) executor.Match {
	rec.ID = id
	return executor.Match{
		Record: rec,
		BM25:   bm25,
		Matched: []executor.MatchedTerm{
			{Term: "S0C7", Surface: "S0C7", Kind: tokenizer.KindErrorCode, Weight: 3.0, TF: 2},
		},
	}
}

func generalMatch(id string, bm25 float64, rec store.Record) executor.Match {
	rec.ID = id
	return executor.Match{
		Record: rec,
		BM25:   bm25,
		Matched: []executor.MatchedTerm{
			{Term: "alloc", Surface: "allocation", Kind: tokenizer.KindGeneral, Weight: 1.0, TF: 1},
		},
	}
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in   string
		want Profile
		ok   bool
	}{
		{"", ProfileBalanced, true},
		{"balanced", ProfileBalanced, true},
		{"Precision", ProfilePrecision, true},
		{"mainframe", ProfileMainframeFocused, true},
		{"mainframe-focused", ProfileMainframeFocused, true},
		{"bogus", ProfileBalanced, false},
	}
	for _, tt := range tests {
		got, ok := ParseProfile(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseProfile(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExactErrorCodeScoresAboveNinetyOnEveryProfile(t *testing.T) {
	match := errorCodeMatch("rec-1", 4.2, store.Record{Title: "S0C7 data exception"})
	for _, p := range []Profile{ProfileBalanced, ProfilePrecision, ProfileMainframeFocused} {
		results := Rank([]executor.Match{match}, Options{Profile: p, Limit: 10})
		if len(results) != 1 {
			t.Fatalf("profile %v: got %d results", p, len(results))
		}
		if results[0].Score <= 90 {
			t.Errorf("profile %v: exact error-code match scored %.2f, want > 90", p, results[0].Score)
		}
	}
}

func TestUsageBreaksLexicalTies(t *testing.T) {
	popular := generalMatch("popular", 2.0, store.Record{UsageCount: 40, SuccessCount: 8, FailureCount: 2})
	fresh := generalMatch("fresh", 2.0, store.Record{})
	results := Rank([]executor.Match{fresh, popular}, Options{Profile: ProfileBalanced, Limit: 10})
	if results[0].Record.ID != "popular" {
		t.Errorf("order = [%s, %s], want popular first", results[0].Record.ID, results[1].Record.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("popular scored %.2f, fresh %.2f; want popular higher", results[0].Score, results[1].Score)
	}
}

func TestPrecisionProfileMutesUsage(t *testing.T) {
	strong := generalMatch("strong", 3.0, store.Record{})
	weakButPopular := generalMatch("popular", 1.0, store.Record{UsageCount: 500, SuccessCount: 50})
	results := Rank([]executor.Match{weakButPopular, strong}, Options{Profile: ProfilePrecision, Limit: 10})
	if results[0].Record.ID != "strong" {
		t.Errorf("precision profile ranked %s first, want strong lexical match", results[0].Record.ID)
	}
}

func TestTaxonomyBoost(t *testing.T) {
	inCategory := executor.Match{
		Record: store.Record{ID: "a", Category: "VSAM"},
		BM25:   2.0,
		Matched: []executor.MatchedTerm{
			{Term: "vsam", Surface: "VSAM", Kind: tokenizer.KindDomainKeyword, Weight: 2.0, TF: 1},
		},
	}
	outOfCategory := executor.Match{
		Record: store.Record{ID: "b", Category: "COBOL"},
		BM25:   2.0,
		Matched: []executor.MatchedTerm{
			{Term: "vsam", Surface: "VSAM", Kind: tokenizer.KindDomainKeyword, Weight: 2.0, TF: 1},
		},
	}
	results := Rank([]executor.Match{outOfCategory, inCategory}, Options{Profile: ProfileBalanced, Limit: 10})
	if results[0].Record.ID != "a" {
		t.Errorf("record whose category matches the query should rank first, got %s", results[0].Record.ID)
	}
}

func TestDeterministicTieBreakByID(t *testing.T) {
	a := generalMatch("rec-a", 1.0, store.Record{})
	b := generalMatch("rec-b", 1.0, store.Record{})
	for range 10 {
		results := Rank([]executor.Match{b, a}, Options{Profile: ProfileBalanced, Limit: 10})
		if results[0].Record.ID != "rec-a" || results[1].Record.ID != "rec-b" {
			t.Fatalf("tie order = [%s, %s], want [rec-a, rec-b]", results[0].Record.ID, results[1].Record.ID)
		}
	}
}

func TestTopKLimit(t *testing.T) {
	matches := make([]executor.Match, 0, 20)
	for i := range 20 {
		rec := store.Record{UsageCount: i}
		matches = append(matches, generalMatch(string(rune('a'+i)), float64(i+1), rec))
	}
	results := Rank(matches, Options{Profile: ProfileBalanced, Limit: 5})
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results out of order at %d: %.2f > %.2f", i, results[i].Score, results[i-1].Score)
		}
	}
	// The strongest lexical match must survive the cut.
	if results[0].Record.ID != string(rune('a'+19)) {
		t.Errorf("top result = %s, want the highest-BM25 match", results[0].Record.ID)
	}
}

func TestDebugInfo(t *testing.T) {
	match := errorCodeMatch("rec-1", 4.2, store.Record{UsageCount: 10, SuccessCount: 3, FailureCount: 1})
	results := Rank([]executor.Match{match}, Options{Profile: ProfileMainframeFocused, Limit: 1, Debug: true})
	d := results[0].Debug
	if d == nil {
		t.Fatal("Debug requested but nil")
	}
	if d.Profile != "mainframe" || d.TokenWeight != 3.0 || len(d.MatchedTerms) != 1 {
		t.Errorf("Debug = %+v", d)
	}
	if results[0].Explanation == "" {
		t.Error("Explanation must always be populated")
	}

	plain := Rank([]executor.Match{match}, Options{Profile: ProfileBalanced, Limit: 1})
	if plain[0].Debug != nil {
		t.Error("Debug populated without being requested")
	}
}

func TestEmptyMatches(t *testing.T) {
	if results := Rank(nil, Options{Profile: ProfileBalanced}); len(results) != 0 {
		t.Errorf("Rank(nil) = %+v, want empty", results)
	}
}
