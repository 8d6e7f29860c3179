package compiler

import (
	"strings"
	"testing"

	"github.com/mainframe-kb/incident-search/internal/index/tokenizer"
)

func TestCompileLoneErrorCode(t *testing.T) {
	expr := Compile("S0C7", Limits{})
	if len(expr.Clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(expr.Clauses))
	}
	c := expr.Clauses[0]
	if c.Term != "S0C7" || c.Kind != tokenizer.KindErrorCode {
		t.Errorf("clause = %+v, want exact S0C7 error code", c)
	}
	if c.Prefix {
		t.Error("error-code clause must not allow prefix expansion")
	}
}

func TestCompileMixedQuery(t *testing.T) {
	expr := Compile("VSAM allocation failure", Limits{})
	if len(expr.Clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d: %+v", len(expr.Clauses), expr.Clauses)
	}
	byTerm := make(map[string]Clause)
	for _, c := range expr.Clauses {
		byTerm[c.Term] = c
	}
	if c, ok := byTerm["vsam"]; !ok || c.Prefix {
		t.Errorf("vsam clause = %+v, want exact domain keyword", c)
	}
	if c, ok := byTerm["allocat"]; !ok || !c.Prefix {
		t.Errorf("allocat clause = %+v, want stemmed prefix clause", c)
	}
}

func TestCompileMalformedNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   \t\n  ",
		"'; DROP TABLE kb_records; --",
		"((((((((",
		strings.Repeat("A", 5000),
		strings.Repeat("term ", 400),
		"%_\\*?[]{}",
	}
	for _, q := range inputs {
		expr := Compile(q, Limits{})
		if expr == nil {
			t.Fatalf("Compile(%q) returned nil", q)
		}
		if len(expr.Clauses) > DefaultLimits.MaxTerms {
			t.Errorf("Compile(%q) produced %d clauses, above cap", q, len(expr.Clauses))
		}
	}
}

func TestCompileEmptyIsEmpty(t *testing.T) {
	if expr := Compile("", Limits{}); !expr.Empty() {
		t.Errorf("empty query should compile to empty expression, got %+v", expr)
	}
}

func TestNormalizedKeyOrderIndependent(t *testing.T) {
	a := Compile("vsam status 35", Limits{})
	b := Compile("status 35 vsam", Limits{})
	if a.NormalizedKey() != b.NormalizedKey() {
		t.Errorf("keys differ: %q vs %q", a.NormalizedKey(), b.NormalizedKey())
	}
}

func TestCompileDeduplicatesTerms(t *testing.T) {
	expr := Compile("loop loop loop", Limits{})
	if len(expr.Clauses) != 1 {
		t.Errorf("expected 1 clause after dedup, got %d", len(expr.Clauses))
	}
}
