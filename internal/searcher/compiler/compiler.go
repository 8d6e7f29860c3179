// Package compiler turns free-text queries into structured boolean
// expressions over classified tokens. A lone error-code query compiles to an
// exact match; mixed queries compile each term to (exact OR stemmed-prefix)
// and AND the clauses together. Hostile input (injection characters,
// oversized queries) is neutralised, never passed through.
package compiler

import (
	"sort"
	"strings"

	"github.com/mainframe-kb/incident-search/internal/index/tokenizer"
)

// Clause is one AND-ed term of a compiled expression. Exact clauses match
// the indexed term verbatim; Prefix additionally expands to all indexed
// terms sharing the stem as a prefix.
type Clause struct {
	Term    string
	Surface string
	Kind    tokenizer.Kind
	Weight  float64
	Prefix  bool
}

// Expression is a compiled query: the conjunction of its clauses. An
// expression with no clauses is valid and matches nothing.
type Expression struct {
	Clauses []Clause
	Raw     string
}

// Empty reports whether the expression can never match.
func (e *Expression) Empty() bool {
	return len(e.Clauses) == 0
}

// NormalizedKey returns a canonical string for the expression, used as the
// query part of cache keys: sorted terms, so term order does not split the
// cache.
func (e *Expression) NormalizedKey() string {
	terms := make([]string, 0, len(e.Clauses))
	for _, c := range e.Clauses {
		if c.Prefix {
			terms = append(terms, c.Term+"*")
		} else {
			terms = append(terms, c.Term)
		}
	}
	sort.Strings(terms)
	return strings.Join(terms, ",")
}

// Limits guard against adversarial queries. Characters with syntactic
// meaning never survive tokenization, so escaping is unnecessary; length and
// term-count caps bound the work a single query can cause.
type Limits struct {
	MaxQueryLength int
	MaxTerms       int
}

// DefaultLimits are used when a limit field is zero.
var DefaultLimits = Limits{MaxQueryLength: 512, MaxTerms: 16}

// Compile builds an Expression from raw query text. It cannot fail:
// malformed or hostile queries compile to a valid, possibly empty
// expression.
func Compile(query string, limits Limits) *Expression {
	if limits.MaxQueryLength <= 0 {
		limits.MaxQueryLength = DefaultLimits.MaxQueryLength
	}
	if limits.MaxTerms <= 0 {
		limits.MaxTerms = DefaultLimits.MaxTerms
	}

	raw := strings.TrimSpace(query)
	if len(raw) > limits.MaxQueryLength {
		raw = raw[:limits.MaxQueryLength]
	}

	tokens := tokenizer.Tokenize(raw)
	if len(tokens) > limits.MaxTerms {
		tokens = tokens[:limits.MaxTerms]
	}

	expr := &Expression{
		Clauses: make([]Clause, 0, len(tokens)),
		Raw:     raw,
	}

	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		term := tok.IndexTerm()
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		expr.Clauses = append(expr.Clauses, Clause{
			Term:    term,
			Surface: tok.Text,
			Kind:    tok.Kind,
			Weight:  tok.Weight,
			// Error codes are high-precision anchors: exact form only.
			Prefix: tok.Kind == tokenizer.KindGeneral,
		})
	}
	return expr
}
