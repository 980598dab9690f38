package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/session"
)

// Controller is the part of the app the session endpoints drive.
type Controller interface {
	Start(ctx context.Context) (string, error)
	Stop()
	Toggle(ctx context.Context) (bool, error)
	Session() *session.Session
}

// SessionHandler starts, stops and reports the recognition session.
type SessionHandler struct {
	ctrl Controller
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(ctrl Controller) *SessionHandler {
	return &SessionHandler{ctrl: ctrl}
}

type sessionResponse struct {
	session.Display
	Running         bool `json:"running"`
	SpeechAvailable bool `json:"speech_available"`
}

func (h *SessionHandler) snapshot() sessionResponse {
	s := h.ctrl.Session()
	return sessionResponse{
		Display:         s.Display(),
		Running:         s.Running(),
		SpeechAvailable: s.SpeechAvailable(),
	}
}

// ServeHTTP routes /api/session and its start, stop and toggle actions.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/session"), "/")

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, h.snapshot())
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	switch action {
	case "start":
		if _, err := h.ctrl.Start(r.Context()); err != nil {
			if errors.Is(err, session.ErrAlreadyRunning) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to start session")
			return
		}
	case "stop":
		h.ctrl.Stop()
	case "toggle":
		if _, err := h.ctrl.Toggle(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to start session")
			return
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	writeJSON(w, http.StatusOK, h.snapshot())
}
