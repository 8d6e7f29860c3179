// Package handler exposes the search service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mainframe-kb/incident-search/internal/analytics"
	"github.com/mainframe-kb/incident-search/internal/searcher"
	"github.com/mainframe-kb/incident-search/pkg/logger"
	"github.com/mainframe-kb/incident-search/pkg/middleware"
)

type Handler struct {
	service   *searcher.Service
	collector *analytics.Collector
	logger    *slog.Logger
}

// New creates the handler. collector may be nil to disable analytics.
func New(service *searcher.Service, collector *analytics.Collector) *Handler {
	return &Handler{
		service:   service,
		collector: collector,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search. The only required parameter is q;
// category, tags, limit, profile, snippets, and debug shape the result.
// Malformed optional parameters are rejected with 400, but a query that
// cannot be answered by the indexed pipeline still returns 200 with
// degraded=true.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	opts := searcher.Options{
		Category: r.URL.Query().Get("category"),
		Profile:  r.URL.Query().Get("profile"),
		Snippets: true,
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.Tags = append(opts.Tags, t)
			}
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}
	if v := r.URL.Query().Get("snippets"); v != "" {
		opts.Snippets = v != "false" && v != "0"
	}
	if v := r.URL.Query().Get("debug"); v == "true" || v == "1" {
		opts.Debug = true
	}

	resp := h.service.Search(ctx, query, opts)

	log.Info("search completed",
		"query", query,
		"total", resp.TotalCount,
		"returned", len(resp.Results),
		"degraded", resp.Degraded,
		"cache_hit", resp.CacheHit,
		"latency_ms", resp.TookMS,
	)
	h.track(ctx, query, opts, resp, start)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) track(ctx context.Context, query string, opts searcher.Options, resp *searcher.Response, start time.Time) {
	if h.collector == nil {
		return
	}
	eventType := analytics.EventSearch
	switch {
	case resp.Degraded:
		eventType = analytics.EventDegraded
	case resp.CacheHit:
		eventType = analytics.EventCacheHit
	case resp.TotalCount == 0:
		eventType = analytics.EventZeroResult
	}
	h.collector.Track(analytics.SearchEvent{
		Type:      eventType,
		Query:     query,
		Category:  opts.Category,
		Profile:   resp.Profile,
		TotalHits: resp.TotalCount,
		Returned:  len(resp.Results),
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  resp.CacheHit,
		Degraded:  resp.Degraded,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})
}

// Statistics handles GET /api/v1/search/statistics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Statistics())
}

// CacheStats handles GET /api/v1/search/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.CacheStats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"evictions": stats.Evictions,
		"entries":   stats.Entries,
		"hit_rate":  fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/search/cache/invalidate. An optional
// category parameter narrows the invalidation to one scope.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("category")
	if err := h.service.InvalidateCache(r.Context(), scope); err != nil {
		h.logger.Error("cache invalidation failed", "scope", scope, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "scope": scope})
}

// Rebuild handles POST /api/v1/index/rebuild: full reload from the store.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RebuildFromStore(r.Context()); err != nil {
		h.logger.Error("index rebuild failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "index rebuild failed")
		return
	}
	h.writeJSON(w, http.StatusOK, h.service.Statistics())
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
