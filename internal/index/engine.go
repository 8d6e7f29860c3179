// Package index maintains the in-memory inverted index over incident
// records. The index is a derived view: it is rebuilt or incrementally
// updated from the knowledge store and never persisted. Access follows a
// single-writer/multiple-reader discipline via an RWMutex; readers never
// observe a half-applied mutation.
package index

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mainframe-kb/incident-search/internal/index/tokenizer"
	"github.com/mainframe-kb/incident-search/internal/store"
)

type docEntry struct {
	rec    store.Record
	length int
	terms  []string
}

// Engine owns the inverted index and per-record statistics.
type Engine struct {
	mu       sync.RWMutex
	postings map[string]map[string]*Posting
	docs     map[string]*docEntry
	totalLen int64
	logger   *slog.Logger
}

// NewEngine creates an empty index engine.
func NewEngine() *Engine {
	return &Engine{
		postings: make(map[string]map[string]*Posting),
		docs:     make(map[string]*docEntry),
		logger:   slog.Default().With("component", "index-engine"),
	}
}

// Upsert indexes a record, replacing any previous version of it.
func (e *Engine) Upsert(rec store.Record) {
	entry, perTerm := buildEntry(rec)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(rec.ID)
	e.insertLocked(entry, perTerm)

	e.logger.Debug("record indexed",
		"record_id", rec.ID,
		"terms", len(perTerm),
		"doc_length", entry.length,
	)
}

// Delete removes a record from the index. Unknown IDs are a no-op.
func (e *Engine) Delete(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(id)
}

// Rebuild replaces the whole index with a fresh view of the given records.
// Tokenization runs in parallel outside the lock; the swap itself is a
// single exclusive-lock section, so concurrent readers see either the old
// or the new corpus, never a mix.
func (e *Engine) Rebuild(ctx context.Context, records []store.Record) error {
	type built struct {
		entry   *docEntry
		perTerm map[string]*Posting
	}
	results := make([]built, len(records))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range records {
		g.Go(func() error {
			entry, perTerm := buildEntry(records[i])
			results[i] = built{entry: entry, perTerm: perTerm}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	postings := make(map[string]map[string]*Posting)
	docs := make(map[string]*docEntry, len(records))
	var totalLen int64
	for _, b := range results {
		docs[b.entry.rec.ID] = b.entry
		totalLen += int64(b.entry.length)
		for term, p := range b.perTerm {
			byDoc, ok := postings[term]
			if !ok {
				byDoc = make(map[string]*Posting)
				postings[term] = byDoc
			}
			byDoc[b.entry.rec.ID] = p
		}
	}

	e.mu.Lock()
	e.postings = postings
	e.docs = docs
	e.totalLen = totalLen
	e.mu.Unlock()

	e.logger.Info("index rebuilt", "documents", len(docs), "terms", len(postings))
	return nil
}

// Lookup returns the postings for a term, optionally expanded to every
// indexed term sharing the prefix. Postings from multiple expanded terms are
// merged per record, keeping the highest frequency. The result is sorted by
// record ID for determinism. A missing term or an empty index yields an
// empty slice, never an error.
func (e *Engine) Lookup(term string, prefix bool) []Posting {
	e.mu.RLock()
	defer e.mu.RUnlock()

	merged := make(map[string]Posting)
	collect := func(byDoc map[string]*Posting) {
		for id, p := range byDoc {
			existing, ok := merged[id]
			if !ok || p.TF > existing.TF {
				merged[id] = *p
			}
		}
	}

	if byDoc, ok := e.postings[term]; ok {
		collect(byDoc)
	}
	if prefix {
		for candidate, byDoc := range e.postings {
			if candidate != term && strings.HasPrefix(candidate, term) {
				collect(byDoc)
			}
		}
	}

	out := make([]Posting, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}

// Record returns the indexed snapshot of a record.
func (e *Engine) Record(id string) (store.Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.docs[id]
	if !ok {
		return store.Record{}, false
	}
	return entry.rec, true
}

// DocLength returns the token count of a record, 0 if unknown.
func (e *Engine) DocLength(id string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if entry, ok := e.docs[id]; ok {
		return entry.length
	}
	return 0
}

// AvgDocLength returns the mean token count across the corpus.
func (e *Engine) AvgDocLength() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.docs) == 0 {
		return 0
	}
	return float64(e.totalLen) / float64(len(e.docs))
}

// DocCount returns the number of indexed records.
func (e *Engine) DocCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Stats returns a snapshot of index size statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	avg := 0.0
	if len(e.docs) > 0 {
		avg = float64(e.totalLen) / float64(len(e.docs))
	}
	return Stats{
		Documents:    len(e.docs),
		Terms:        len(e.postings),
		AvgDocLength: avg,
	}
}

// buildEntry tokenizes a record into its doc entry and per-term postings.
// Title tokens are counted twice: once in the overall TF and once in
// TitleTF for field weighting.
func buildEntry(rec store.Record) (*docEntry, map[string]*Posting) {
	titleTokens := tokenizer.Tokenize(rec.Title)
	bodyTokens := tokenizer.Tokenize(rec.Problem + " " + rec.Solution)

	perTerm := make(map[string]*Posting)
	add := func(tok tokenizer.Token, title bool) {
		term := tok.IndexTerm()
		p, ok := perTerm[term]
		if !ok {
			p = &Posting{RecordID: rec.ID}
			perTerm[term] = p
		}
		p.TF++
		if title {
			p.TitleTF++
		}
	}
	for _, tok := range titleTokens {
		add(tok, true)
	}
	for _, tok := range bodyTokens {
		add(tok, false)
	}

	terms := make([]string, 0, len(perTerm))
	for term := range perTerm {
		terms = append(terms, term)
	}
	entry := &docEntry{
		rec:    rec,
		length: len(titleTokens) + len(bodyTokens),
		terms:  terms,
	}
	return entry, perTerm
}

func (e *Engine) insertLocked(entry *docEntry, perTerm map[string]*Posting) {
	e.docs[entry.rec.ID] = entry
	e.totalLen += int64(entry.length)
	for term, p := range perTerm {
		byDoc, ok := e.postings[term]
		if !ok {
			byDoc = make(map[string]*Posting)
			e.postings[term] = byDoc
		}
		byDoc[entry.rec.ID] = p
	}
}

func (e *Engine) removeLocked(id string) {
	entry, ok := e.docs[id]
	if !ok {
		return
	}
	for _, term := range entry.terms {
		if byDoc, ok := e.postings[term]; ok {
			delete(byDoc, id)
			if len(byDoc) == 0 {
				delete(e.postings, term)
			}
		}
	}
	e.totalLen -= int64(entry.length)
	delete(e.docs, id)
}
