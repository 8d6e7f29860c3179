// Package tokenizer turns incident text into typed, weighted tokens. It
// recognises mainframe error codes (kept verbatim, weight 3.0) and domain
// keywords (weight 2.0), lower-cases and stems everything else (weight 1.0),
// and drops tokens that are too short, too long, or purely numeric.
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token's surface form.
type Kind int

const (
	KindGeneral Kind = iota
	KindDomainKeyword
	KindErrorCode
)

func (k Kind) String() string {
	switch k {
	case KindErrorCode:
		return "error_code"
	case KindDomainKeyword:
		return "domain_keyword"
	default:
		return "general"
	}
}

// Weight returns the indexing weight for the kind. Weights are fixed by
// kind: error codes are high-precision anchors, domain keywords matter more
// than prose, prose is baseline.
func (k Kind) Weight() float64 {
	switch k {
	case KindErrorCode:
		return 3.0
	case KindDomainKeyword:
		return 2.0
	default:
		return 1.0
	}
}

// Token is a single classified term. Text is the canonical surface form
// (uppercase for error codes, lowercase otherwise); Stemmed is the form
// written to the index. Error codes are never stemmed.
type Token struct {
	Text    string
	Stemmed string
	Weight  float64
	Kind    Kind
}

// IndexTerm returns the string under which this token is indexed.
func (t Token) IndexTerm() string {
	return t.Stemmed
}

const (
	minTokenLen = 2
	maxTokenLen = 50
)

// Platform and language names treated as domain keywords.
var domainKeywords = map[string]struct{}{
	"cobol": {}, "jcl": {}, "db2": {}, "cics": {}, "vsam": {},
	"ims": {}, "mvs": {}, "zos": {}, "tso": {}, "ispf": {},
	"rexx": {}, "racf": {},
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "in": {},
	"is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "to": {}, "was": {}, "were": {}, "will": {}, "with": {},
	"this": {}, "when": {}, "which": {}, "not": {}, "no": {},
}

// Error-code surface patterns, matched case-insensitively because operators
// type codes in either case. The generic letters+digits form additionally
// requires the original word to be uppercase, so prose like "Code7" is not
// promoted.
var (
	reSystemAbend = regexp.MustCompile(`^S[0-9A-F]C[0-9A-F]$`)
	reUserAbend   = regexp.MustCompile(`^U\d{3,4}$`)
	reMessageCode = regexp.MustCompile(`^(IEF|IEB|IEC|IDC|IGD|IGZ|IKJ|ICH|ICE|IOS|IEA|CEE|DFS|DSN|WER|EDC)\d{2,5}[A-Z]?$`)
	reSQLCode     = regexp.MustCompile(`^SQLCODE-?\d+$`)
	reStatusCode  = regexp.MustCompile(`^STATUS-\d{1,3}$`)
	reGenericCode = regexp.MustCompile(`^[A-Z]{1,4}\d{2,5}[A-Z]{0,2}$`)
)

// Code prefixes that combine with a following bare number into one
// error-code token ("status 35" -> STATUS-35, "sqlcode 803" -> SQLCODE-803).
var combiningPrefixes = map[string]struct{}{
	"status":  {},
	"sqlcode": {},
	"abend":   {},
}

// Tokenize splits text into classified tokens. It is a pure function of its
// input: malformed input (empty, punctuation-only) yields an empty slice,
// never an error. Every returned token satisfies ShouldIndex.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]Token, 0, len(words))
	prev := ""
	for _, word := range words {
		if combined, ok := combineCode(prev, word); ok {
			tokens = append(tokens, Token{
				Text:    combined,
				Stemmed: combined,
				Weight:  KindErrorCode.Weight(),
				Kind:    KindErrorCode,
			})
			prev = word
			continue
		}
		prev = word

		tok, ok := classify(word)
		if !ok || !ShouldIndex(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// ShouldIndex reports whether a token belongs in the index: at least 2 and
// at most 50 runes, and not purely numeric.
func ShouldIndex(tok Token) bool {
	n := utf8.RuneCountInString(tok.Text)
	if n < minTokenLen || n > maxTokenLen {
		return false
	}
	return !isNumeric(tok.Text)
}

// classify checks error-code patterns first, then the domain-keyword set,
// then falls through to general prose (lowercased and stemmed).
func classify(word string) (Token, bool) {
	lower := strings.ToLower(word)
	upper := strings.ToUpper(word)

	// Known keywords like DB2 would also satisfy the generic letters+digits
	// pattern, so the keyword set is consulted inside the error-code check.
	if _, keyword := domainKeywords[lower]; !keyword && isErrorCode(word, upper) {
		return Token{
			Text:    upper,
			Stemmed: upper,
			Weight:  KindErrorCode.Weight(),
			Kind:    KindErrorCode,
		}, true
	}

	if _, ok := domainKeywords[lower]; ok {
		return Token{
			Text:    lower,
			Stemmed: lower,
			Weight:  KindDomainKeyword.Weight(),
			Kind:    KindDomainKeyword,
		}, true
	}

	if _, stop := stopWords[lower]; stop {
		return Token{}, false
	}
	return Token{
		Text:    lower,
		Stemmed: Stem(lower),
		Weight:  KindGeneral.Weight(),
		Kind:    KindGeneral,
	}, true
}

func isErrorCode(original, upper string) bool {
	if isNumeric(upper) {
		return false
	}
	if reSystemAbend.MatchString(upper) ||
		reUserAbend.MatchString(upper) ||
		reMessageCode.MatchString(upper) ||
		reSQLCode.MatchString(upper) ||
		reStatusCode.MatchString(upper) {
		return true
	}
	// Generic letter+digit identifiers only count when written in uppercase.
	return original == upper && reGenericCode.MatchString(upper) && hasDigit(upper)
}

// combineCode merges a code prefix word and a following bare number into a
// single error-code token.
func combineCode(prev, word string) (string, bool) {
	if !isNumeric(word) || len(word) > 5 {
		return "", false
	}
	if _, ok := combiningPrefixes[strings.ToLower(prev)]; !ok {
		return "", false
	}
	return strings.ToUpper(prev) + "-" + word, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// stemRules is the domain suffix table, applied in order. Replacement rules
// keep enough of the stem that morphological variants collapse to a shared
// prefix ("processing"->"process", "allocation"->"allocat",
// "compiling"->"compil", "successful"->"success").
var stemRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// Stem applies the suffix table to a lowercased word and returns the first
// rewrite whose result is long enough, or the word unchanged.
func Stem(word string) string {
	for _, rule := range stemRules {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}
