// Package snippet extracts short highlighted excerpts from record fields
// around matched query terms. For each field it slides a window over the
// term occurrences, picks the densest one, merges overlapping occurrence
// ranges, and wraps each matched surface in <mark> tags. Snippet failure is
// never fatal: a field that cannot produce a window falls back to its
// truncated head.
package snippet

import (
	"sort"
	"strings"
	"unicode"
)

// Snippet is one highlighted excerpt from a single record field.
type Snippet struct {
	Field      string      `json:"field"`
	Text       string      `json:"text"`
	Highlights []Highlight `json:"highlights"`
}

// Highlight locates one marked term inside Snippet.Text, offset in bytes
// relative to the snippet (not the source field).
type Highlight struct {
	Term   string `json:"term"`
	Offset int    `json:"offset"`
}

// Field is a named source text to excerpt from, in display priority order.
type Field struct {
	Name string
	Text string
}

// Options bound the generator's output.
type Options struct {
	MaxLength   int // max snippet length in runes, default 160
	MaxSnippets int // max snippets per record, default 3
}

const (
	defaultMaxLength   = 160
	defaultMaxSnippets = 3
	markOpen           = "<mark>"
	markClose          = "</mark>"
)

// occurrence is a matched term's location in the source field, in runes.
type occurrence struct {
	start, end int
	term       string
}

// Generate produces up to MaxSnippets excerpts across the given fields.
// Terms are matched case-insensitively on word boundaries. Fields with at
// least one occurrence win over fields with none; if nothing matches
// anywhere, the first non-empty field's head is returned unhighlighted so
// the caller always has something to display.
func Generate(fields []Field, terms []string, opts Options) []Snippet {
	if opts.MaxLength <= 0 {
		opts.MaxLength = defaultMaxLength
	}
	if opts.MaxSnippets <= 0 {
		opts.MaxSnippets = defaultMaxSnippets
	}

	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}

	snippets := make([]Snippet, 0, opts.MaxSnippets)
	for _, f := range fields {
		if len(snippets) == opts.MaxSnippets {
			break
		}
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		occs := findOccurrences(f.Text, lowered)
		if len(occs) == 0 {
			continue
		}
		snippets = append(snippets, buildSnippet(f, occs, opts.MaxLength))
	}

	if len(snippets) == 0 {
		for _, f := range fields {
			if strings.TrimSpace(f.Text) == "" {
				continue
			}
			text, _ := truncate(f.Text, opts.MaxLength)
			return []Snippet{{Field: f.Name, Text: text, Highlights: []Highlight{}}}
		}
	}
	return snippets
}

// findOccurrences locates every word-boundary match of any term, in rune
// offsets, sorted by position. Overlapping or duplicate ranges are merged,
// keeping the longer term.
func findOccurrences(text string, terms []string) []occurrence {
	runes := []rune(strings.ToLower(text))
	var occs []occurrence
	for _, term := range terms {
		tr := []rune(term)
		if len(tr) == 0 {
			continue
		}
		for i := 0; i+len(tr) <= len(runes); i++ {
			if !runesMatch(runes[i:i+len(tr)], tr) {
				continue
			}
			if i > 0 && isWordRune(runes[i-1]) {
				continue
			}
			// Prefix matches are fine: "alloc" highlights "allocation".
			occs = append(occs, occurrence{start: i, end: i + len(tr), term: term})
		}
	}
	sort.Slice(occs, func(i, j int) bool {
		if occs[i].start != occs[j].start {
			return occs[i].start < occs[j].start
		}
		return occs[i].end > occs[j].end
	})
	return mergeOverlaps(occs)
}

func runesMatch(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}

// mergeOverlaps collapses overlapping occurrence ranges so highlights never
// nest. Input must be sorted by start asc, end desc.
func mergeOverlaps(occs []occurrence) []occurrence {
	merged := occs[:0]
	for _, o := range occs {
		if len(merged) > 0 && o.start < merged[len(merged)-1].end {
			continue
		}
		merged = append(merged, o)
	}
	return merged
}

// buildSnippet picks the window of maxLen runes containing the most
// occurrences and renders it with <mark> wrapping.
func buildSnippet(f Field, occs []occurrence, maxLen int) Snippet {
	runes := []rune(f.Text)

	// Best window: for each occurrence as the window's first hit, count how
	// many later occurrences fit.
	bestStart, bestCount := 0, 0
	for i, o := range occs {
		count := 0
		for j := i; j < len(occs) && occs[j].end <= o.start+maxLen; j++ {
			count++
		}
		if count > bestCount {
			bestCount = count
			bestStart = o.start
		}
	}

	// Center the window's hits: back off to give leading context, snapping
	// to a word boundary.
	start := bestStart - maxLen/4
	if start < 0 {
		start = 0
	}
	for start > 0 && start < len(runes) && isWordRune(runes[start-1]) {
		start--
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
	}

	var sb strings.Builder
	highlights := make([]Highlight, 0, bestCount)
	if start > 0 {
		sb.WriteString("…")
	}
	cursor := start
	for _, o := range occs {
		if o.start < start || o.end > end {
			continue
		}
		sb.WriteString(string(runes[cursor:o.start]))
		highlights = append(highlights, Highlight{
			Term:   string(runes[o.start:o.end]),
			Offset: sb.Len() + len(markOpen),
		})
		sb.WriteString(markOpen)
		sb.WriteString(string(runes[o.start:o.end]))
		sb.WriteString(markClose)
		cursor = o.end
	}
	sb.WriteString(string(runes[cursor:end]))
	if end < len(runes) {
		sb.WriteString("…")
	}

	return Snippet{Field: f.Name, Text: sb.String(), Highlights: highlights}
}

// truncate cuts text to max runes, reporting whether it was shortened.
func truncate(text string, max int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= max {
		return text, false
	}
	return string(runes[:max]) + "…", true
}
