package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/practice"
	"github.com/ayusman/mudra/internal/store"
)

// PracticeHandler drives practice drills.
type PracticeHandler struct {
	drill *practice.Drill
	store *store.Store
}

// NewPracticeHandler creates a PracticeHandler. s may be nil, in which case
// history is empty.
func NewPracticeHandler(d *practice.Drill, s *store.Store) *PracticeHandler {
	return &PracticeHandler{drill: d, store: s}
}

// ServeHTTP routes /api/practice, /api/practice/stop and
// /api/practice/history.
func (h *PracticeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimPrefix(r.URL.Path, "/api/practice") {
	case "", "/":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, h.drill.Status())
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, h.drill.Start())
		default:
			methodNotAllowed(w)
		}
	case "/stop":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		result, err := h.drill.Stop()
		if errors.Is(err, practice.ErrNotActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "/history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.history(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *PracticeHandler) history(w http.ResponseWriter, r *http.Request) {
	runs := []*store.PracticeRun{}
	if h.store != nil {
		list, err := h.store.PracticeRuns().List(queryLimit(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list practice runs")
			return
		}
		if list != nil {
			runs = list
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
