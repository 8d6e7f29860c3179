package searcher

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mainframe-kb/incident-search/internal/searcher/ranker"
	"github.com/mainframe-kb/incident-search/internal/searcher/snippet"
	"github.com/mainframe-kb/incident-search/internal/store"
)

// Options shape one search request. The zero value asks for the configured
// defaults.
type Options struct {
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Profile  string   `json:"profile,omitempty"`
	Snippets bool     `json:"snippets,omitempty"`
	Debug    bool     `json:"debug,omitempty"`
}

// cacheOpts serialises the result-shaping options for the cache key.
func (o Options) cacheOpts() string {
	tags := make([]string, len(o.Tags))
	for i, t := range o.Tags {
		tags[i] = strings.ToLower(t)
	}
	sort.Strings(tags)
	var sb strings.Builder
	sb.WriteString("limit=")
	sb.WriteString(strconv.Itoa(o.Limit))
	sb.WriteString("|profile=")
	sb.WriteString(strings.ToLower(o.Profile))
	sb.WriteString("|tags=")
	sb.WriteString(strings.Join(tags, ","))
	if o.Snippets {
		sb.WriteString("|snippets")
	}
	if o.Debug {
		sb.WriteString("|debug")
	}
	return sb.String()
}

// Result is one ranked hit with its presentation extras.
type Result struct {
	Record      store.Record      `json:"record"`
	Score       float64           `json:"score"`
	Explanation string            `json:"explanation"`
	Snippets    []snippet.Snippet `json:"snippets,omitempty"`
	Debug       *ranker.DebugInfo `json:"debug,omitempty"`
}

// Response is the complete answer to a search. Search always returns one:
// failures surface as Degraded, never as an error to the caller.
type Response struct {
	Query      string   `json:"query"`
	Profile    string   `json:"profile"`
	Results    []Result `json:"results"`
	TotalCount int      `json:"total_count"`
	Degraded   bool     `json:"degraded"`
	CacheHit   bool     `json:"cache_hit"`
	TookMS     int64    `json:"took_ms"`
}
