package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/store"
)

// HistoryHandler serves past sessions and predictions.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// Predictions handles GET /api/predictions and /api/predictions/stats.
func (h *HistoryHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	if strings.TrimPrefix(r.URL.Path, "/api/predictions") == "/stats" {
		counts, err := h.store.Predictions().CountByLabel()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count predictions")
			return
		}
		if counts == nil {
			counts = []store.LabelCount{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"labels": counts})
		return
	}

	preds, err := h.store.Predictions().List(r.URL.Query().Get("session"), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list predictions")
		return
	}
	if preds == nil {
		preds = []*store.Prediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": preds})
}

// Sessions handles GET /api/sessions and /api/sessions/{id}.
func (h *HistoryHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
	if id == "" {
		recs, err := h.store.Sessions().List(queryLimit(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}
		if recs == nil {
			recs = []*store.SessionRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
		return
	}

	rec, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
