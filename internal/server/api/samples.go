package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/store"
)

// SampleHandler serves recorded training samples and controls the
// recorder.
type SampleHandler struct {
	store    *store.Store
	recorder *app.Recorder
}

// NewSampleHandler creates a SampleHandler. recorder may be nil, in which
// case /api/samples/record is unavailable.
func NewSampleHandler(s *store.Store, recorder *app.Recorder) *SampleHandler {
	return &SampleHandler{store: s, recorder: recorder}
}

// ServeHTTP routes /api/samples, /api/samples/record, /api/samples/stats,
// /api/samples/validate and /api/samples/{id}.
func (h *SampleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/samples")
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.deleteByLabel(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	case "record":
		h.record(w, r)
		return
	case "stats":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.stats(w)
		return
	case "validate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.validate(w, r)
		return
	}

	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sample id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		methodNotAllowed(w)
	}
}

type listSamplesResponse struct {
	Samples []*store.Sample `json:"samples"`
}

// list handles GET /api/samples. Frames are omitted.
func (h *SampleHandler) list(w http.ResponseWriter, r *http.Request) {
	samples, err := h.store.Samples().ListByLabel(r.URL.Query().Get("label"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}
	if samples == nil {
		samples = []*store.Sample{}
	}
	writeJSON(w, http.StatusOK, listSamplesResponse{Samples: samples})
}

// get handles GET /api/samples/{id}, frames included.
func (h *SampleHandler) get(w http.ResponseWriter, id int64) {
	sample, err := h.store.Samples().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sample not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get sample")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// delete handles DELETE /api/samples/{id}.
func (h *SampleHandler) delete(w http.ResponseWriter, id int64) {
	if err := h.store.Samples().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sample not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete sample")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteByLabel handles DELETE /api/samples?label=.
func (h *SampleHandler) deleteByLabel(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	n, err := h.store.Samples().DeleteByLabel(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type sampleStatsResponse struct {
	Total  int                 `json:"total"`
	Labels []store.SampleCount `json:"labels"`
}

// stats handles GET /api/samples/stats.
func (h *SampleHandler) stats(w http.ResponseWriter) {
	counts, err := h.store.Samples().CountByLabel()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}
	resp := sampleStatsResponse{Labels: counts}
	if resp.Labels == nil {
		resp.Labels = []store.SampleCount{}
	}
	for _, c := range counts {
		resp.Total += c.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

// validate handles POST /api/samples/validate. With ?delete=true the
// malformed samples are removed as well as reported.
func (h *SampleHandler) validate(w http.ResponseWriter, r *http.Request) {
	del := false
	if v := r.URL.Query().Get("delete"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "delete must be a boolean")
			return
		}
		del = b
	}
	result, err := h.store.Samples().Validate(features.Size, del)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to validate samples")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type recordRequest struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// record handles GET, POST and DELETE on /api/samples/record.
func (h *SampleHandler) record(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "Recording unavailable")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.recorder.Status())
	case http.MethodPost:
		var req recordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		st, err := h.recorder.Arm(req.Label, req.Count)
		switch {
		case errors.Is(err, app.ErrInvalidRecording):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrNoStore):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, "Failed to start recording")
		default:
			writeJSON(w, http.StatusAccepted, st)
		}
	case http.MethodDelete:
		h.recorder.Cancel()
		writeJSON(w, http.StatusOK, h.recorder.Status())
	default:
		methodNotAllowed(w)
	}
}
