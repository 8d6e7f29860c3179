// Package analytics tracks search traffic: the search service publishes
// per-query events to Kafka, and the aggregator consumes them into rolling
// statistics (volume, latency percentiles, top queries, degraded and
// zero-result counts).
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventZeroResult EventType = "zero_result"
	EventDegraded   EventType = "degraded"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Category  string    `json:"category,omitempty"`
	Profile   string    `json:"profile"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Degraded  bool      `json:"degraded"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}
