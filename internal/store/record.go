// Package store defines the incident Record model and the knowledge-store
// interface the search core reads from. The store is the single source of
// truth for records; the index is only a derived view and is refreshed from
// here.
package store

import (
	"strings"
	"time"
)

// Record is one incident knowledge-base entry. The search core consumes it
// read-only; all mutation happens through the records service.
type Record struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Problem      string    `json:"problem"`
	Solution     string    `json:"solution"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	UsageCount   int       `json:"usage_count"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SuccessRate returns success_count / (success_count + failure_count),
// or 0 when the record has no resolution history.
func (r Record) SuccessRate() float64 {
	total := r.SuccessCount + r.FailureCount
	if total == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(total)
}

// HasTag reports whether the record carries the given tag (case-insensitive).
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
