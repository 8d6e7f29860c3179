package store

import "context"

// EventType distinguishes record mutation events on the Kafka stream.
type EventType string

const (
	EventUpsert EventType = "upsert"
	EventDelete EventType = "delete"
)

// RecordEvent is the Kafka message payload published by the records service
// after a mutation is persisted. Delete events carry only the record ID and
// (when known) the category, so the cache can be invalidated narrowly.
type RecordEvent struct {
	Type     EventType `json:"type"`
	Record   Record    `json:"record"`
	Occurred string    `json:"occurred_at"`
}

// Store is the read interface the search core uses against the knowledge
// store. ScanLexical is the minimal, non-enhanced search path used when the
// indexed pipeline is unavailable.
type Store interface {
	// List returns every record in the corpus, for full index rebuilds.
	List(ctx context.Context) ([]Record, error)

	// Get returns a single record by ID.
	Get(ctx context.Context, id string) (Record, error)

	// ScanLexical performs a plain substring match over title, problem, and
	// solution, ordered by usage count descending. It is deliberately dumb:
	// it must work even when the index and tokenizer are broken.
	ScanLexical(ctx context.Context, query string, limit int) ([]Record, error)
}
