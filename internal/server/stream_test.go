package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type staticFrames struct {
	mu   sync.Mutex
	jpeg []byte
	seq  uint64
}

func (s *staticFrames) LatestFrame() ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jpeg, s.seq
}

func TestStreamHandler(t *testing.T) {
	t.Run("rejects non-GET", func(t *testing.T) {
		h := NewStreamHandler(&staticFrames{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("writes each frame once", func(t *testing.T) {
		h := NewStreamHandler(&staticFrames{jpeg: []byte("JPEGDATA"), seq: 1})
		h.poll = time.Millisecond

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
			t.Errorf("unexpected Content-Type %q", ct)
		}
		body := rec.Body.String()
		if n := strings.Count(body, "--frame"); n != 1 {
			t.Errorf("frames written = %d, want 1", n)
		}
		if !strings.Contains(body, "Content-Length: 8") || !strings.Contains(body, "JPEGDATA") {
			t.Errorf("unexpected body %q", body)
		}
	})

	t.Run("waits for the first frame", func(t *testing.T) {
		h := NewStreamHandler(&staticFrames{})
		h.poll = time.Millisecond

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx))

		if rec.Body.Len() != 0 {
			t.Errorf("expected empty body, got %q", rec.Body.String())
		}
	})
}
