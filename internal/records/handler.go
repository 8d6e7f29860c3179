package records

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mainframe-kb/incident-search/internal/store"
	apperrors "github.com/mainframe-kb/incident-search/pkg/errors"
	"github.com/mainframe-kb/incident-search/pkg/logger"
)

// Handler exposes record CRUD and feedback over HTTP.
type Handler struct {
	publisher *Publisher
	reader    store.Store
	logger    *slog.Logger
}

func NewHandler(publisher *Publisher, reader store.Store) *Handler {
	return &Handler{
		publisher: publisher,
		reader:    reader,
		logger:    slog.Default().With("component", "records-handler"),
	}
}

// Upsert handles POST /api/v1/records and PUT /api/v1/records/{id}.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if id := r.PathValue("id"); id != "" {
		req.ID = id
	}
	if err := ValidateUpsert(&req); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.publisher.Upsert(ctx, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("record upsert failed", "error", err, "status_code", status)
		h.writeError(w, status, "record upsert failed")
		return
	}
	log.Info("record upserted", "record_id", rec.ID)
	h.writeJSON(w, http.StatusOK, rec)
}

// Get handles GET /api/v1/records/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.reader.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), "record not found")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/v1/records/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := h.publisher.Delete(ctx, id); err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Error("record delete failed", "record_id", id, "error", err)
		h.writeError(w, status, "record delete failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// Feedback handles POST /api/v1/records/{id}/feedback.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := ValidateFeedback(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.publisher.Feedback(ctx, id, req.Outcome)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Error("feedback failed", "record_id", id, "error", err)
		h.writeError(w, status, "feedback failed")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
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
