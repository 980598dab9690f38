package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/practice"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, window []features.Vector) (classifier.Result, error) {
	return classifier.Result{Label: "Hello", Confidence: 90}, nil
}

func newTestApp(t *testing.T, st *store.Store) *app.App {
	t.Helper()
	sess := session.New(stubClassifier{}, speech.NewMockSpeaker(), session.DefaultConfig())
	a := app.New(app.Config{Session: sess, Store: st})
	t.Cleanup(func() { a.Close() })
	return a
}

// newTestPlugins returns a manager holding one plugin "notes" with a
// single "append" action.
func newTestPlugins(t *testing.T) *plugin.Manager {
	t.Helper()
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "notes")
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"notes","version":"1.0.0","executable":"run.sh","actions":["append"]}`
	if err := os.WriteFile(filepath.Join(pluginDir, plugin.ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte("#!/bin/sh\necho '{\"success\":true}'\n"), 0755); err != nil {
		t.Fatal(err)
	}

	m := plugin.NewManager(dir, nil)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return m
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestBindingHandler_CRUD(t *testing.T) {
	s := newTestStore(t)
	h := NewBindingHandler(s, newTestPlugins(t))

	rec := do(t, h, http.MethodPost, "/api/bindings", createBindingRequest{
		Label:      "Hello",
		PluginName: "notes",
		ActionName: "append",
		Config:     json.RawMessage(`{"file":"/tmp/out.txt"}`),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created bindingResponse
	decode(t, rec, &created)
	if created.ID == "" || !created.Enabled || created.Label != "Hello" {
		t.Errorf("unexpected binding %+v", created)
	}

	rec = do(t, h, http.MethodGet, "/api/bindings/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected status %d, got %d", http.StatusOK, rec.Code)
	}

	disabled := false
	rec = do(t, h, http.MethodPut, "/api/bindings/"+created.ID, updateBindingRequest{Enabled: &disabled})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var updated bindingResponse
	decode(t, rec, &updated)
	if updated.Enabled || updated.ActionName != "append" {
		t.Errorf("unexpected update result %+v", updated)
	}

	t.Run("label filter lists enabled bindings only", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/bindings?label=Hello", nil)
		var list listBindingsResponse
		decode(t, rec, &list)
		if len(list.Bindings) != 0 {
			t.Errorf("expected no enabled bindings, got %d", len(list.Bindings))
		}

		rec = do(t, h, http.MethodGet, "/api/bindings", nil)
		decode(t, rec, &list)
		if len(list.Bindings) != 1 {
			t.Errorf("expected 1 binding, got %d", len(list.Bindings))
		}
	})

	rec = do(t, h, http.MethodDelete, "/api/bindings/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/bindings/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestBindingHandler_Validation(t *testing.T) {
	h := NewBindingHandler(newTestStore(t), newTestPlugins(t))

	tests := []struct {
		name string
		body any
		want string
	}{
		{"invalid json", "{", "Invalid JSON"},
		{"missing label", createBindingRequest{PluginName: "notes", ActionName: "append"}, "label is required"},
		{"missing plugin", createBindingRequest{Label: "Hello", ActionName: "append"}, "plugin_name is required"},
		{"missing action", createBindingRequest{Label: "Hello", PluginName: "notes"}, "action_name is required"},
		{"unknown plugin", createBindingRequest{Label: "Hello", PluginName: "missing", ActionName: "append"}, "Plugin not found"},
		{"unknown action", createBindingRequest{Label: "Hello", PluginName: "notes", ActionName: "erase"}, "Action not supported by plugin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/bindings", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			var resp errorResponse
			decode(t, rec, &resp)
			if resp.Error != tt.want {
				t.Errorf("error = %q, want %q", resp.Error, tt.want)
			}
		})
	}

	if rec := do(t, h, http.MethodGet, "/api/bindings/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/api/bindings", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("patch: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestSampleHandler(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s)
	h := NewSampleHandler(s, a.Recorder())

	for _, label := range []string{"Hello", "Hello", "Yes"} {
		if err := s.Samples().Create(&store.Sample{Label: label, FrameCount: 1, Frames: json.RawMessage(`[[0]]`)}); err != nil {
			t.Fatal(err)
		}
	}

	var list listSamplesResponse
	decode(t, do(t, h, http.MethodGet, "/api/samples?label=Hello", nil), &list)
	if len(list.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(list.Samples))
	}

	id := list.Samples[0].ID
	rec := do(t, h, http.MethodGet, "/api/samples/"+itoa(id), nil)
	var sample store.Sample
	decode(t, rec, &sample)
	if sample.Label != "Hello" || len(sample.Frames) == 0 {
		t.Errorf("unexpected sample %+v", sample)
	}

	if rec := do(t, h, http.MethodGet, "/api/samples/abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/samples/"+itoa(id), nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/samples/"+itoa(id), nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	var deleted map[string]int64
	decode(t, do(t, h, http.MethodDelete, "/api/samples?label=Yes", nil), &deleted)
	if deleted["deleted"] != 1 {
		t.Errorf("deleted = %d, want 1", deleted["deleted"])
	}
	if rec := do(t, h, http.MethodDelete, "/api/samples", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("delete without label: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSampleHandler_Record(t *testing.T) {
	s := newTestStore(t)
	h := NewSampleHandler(s, newTestApp(t, s).Recorder())

	if rec := do(t, h, http.MethodPost, "/api/samples/record", recordRequest{Label: "", Count: 3}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty label: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/samples/record", recordRequest{Label: "Water", Count: 3})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("arm: expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
	var st app.RecorderStatus
	decode(t, rec, &st)
	if !st.Active || st.Label != "Water" || st.Remaining != 3 {
		t.Errorf("unexpected status %+v", st)
	}

	decode(t, do(t, h, http.MethodDelete, "/api/samples/record", nil), &st)
	if st.Active {
		t.Error("recorder should be idle after cancel")
	}

	noRecorder := NewSampleHandler(s, nil)
	if rec := do(t, noRecorder, http.MethodGet, "/api/samples/record", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no recorder: expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestSampleHandler_StatsAndValidate(t *testing.T) {
	s := newTestStore(t)
	h := NewSampleHandler(s, nil)

	good, err := json.Marshal([][]float64{make([]float64, features.Size)})
	if err != nil {
		t.Fatal(err)
	}
	samples := []*store.Sample{
		{Label: "Hello", FrameCount: 1, Frames: good},
		{Label: "Hello", FrameCount: 1, Frames: json.RawMessage(`[[0,1]]`)},
		{Label: "Yes", FrameCount: 1, Frames: good},
	}
	if err := s.Samples().CreateBatch(samples); err != nil {
		t.Fatal(err)
	}

	var stats sampleStatsResponse
	decode(t, do(t, h, http.MethodGet, "/api/samples/stats", nil), &stats)
	if stats.Total != 3 || len(stats.Labels) != 2 || stats.Labels[0].Label != "Hello" || stats.Labels[0].Count != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if rec := do(t, h, http.MethodPost, "/api/samples/stats", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST stats: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}

	var v store.Validation
	decode(t, do(t, h, http.MethodPost, "/api/samples/validate", nil), &v)
	if v.Checked != 3 || len(v.Invalid) != 1 || v.Invalid[0] != samples[1].ID || v.Deleted != 0 {
		t.Errorf("unexpected validation %+v", v)
	}

	if rec := do(t, h, http.MethodPost, "/api/samples/validate?delete=maybe", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad delete flag: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/samples/validate", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET validate: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}

	decode(t, do(t, h, http.MethodPost, "/api/samples/validate?delete=true", nil), &v)
	if v.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", v.Deleted)
	}
	decode(t, do(t, h, http.MethodGet, "/api/samples/stats", nil), &stats)
	if stats.Total != 2 {
		t.Errorf("total after cleanup = %d, want 2", stats.Total)
	}
}

func TestHistoryHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewHistoryHandler(s)
	now := time.Now()

	if err := s.Sessions().Begin("s1", now); err != nil {
		t.Fatal(err)
	}
	for _, p := range []store.Prediction{
		{SessionID: "s1", Label: "Hello", Confidence: 90, Spoken: true},
		{SessionID: "s1", Label: "Hello", Confidence: 80},
		{SessionID: "s1", Label: "Yes", Confidence: 70, Spoken: true},
	} {
		p := p
		if err := s.Predictions().Create(&p); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("predictions with limit", func(t *testing.T) {
		var resp struct {
			Predictions []store.Prediction `json:"predictions"`
		}
		decode(t, do(t, http.HandlerFunc(h.Predictions), http.MethodGet, "/api/predictions?session=s1&limit=2", nil), &resp)
		if len(resp.Predictions) != 2 {
			t.Errorf("expected 2 predictions, got %d", len(resp.Predictions))
		}
	})

	t.Run("stats", func(t *testing.T) {
		var resp struct {
			Labels []store.LabelCount `json:"labels"`
		}
		decode(t, do(t, http.HandlerFunc(h.Predictions), http.MethodGet, "/api/predictions/stats", nil), &resp)
		counts := map[string]store.LabelCount{}
		for _, c := range resp.Labels {
			counts[c.Label] = c
		}
		if counts["Hello"].Count != 2 || counts["Hello"].Spoken != 1 || counts["Yes"].Count != 1 {
			t.Errorf("unexpected stats %+v", resp.Labels)
		}
	})

	t.Run("sessions", func(t *testing.T) {
		var resp struct {
			Sessions []store.SessionRecord `json:"sessions"`
		}
		decode(t, do(t, http.HandlerFunc(h.Sessions), http.MethodGet, "/api/sessions", nil), &resp)
		if len(resp.Sessions) != 1 || resp.Sessions[0].ID != "s1" {
			t.Errorf("unexpected sessions %+v", resp.Sessions)
		}

		rec := do(t, http.HandlerFunc(h.Sessions), http.MethodGet, "/api/sessions/missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestPracticeHandler(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s)
	h := NewPracticeHandler(a.Drill(), s)

	if rec := do(t, h, http.MethodPost, "/api/practice/stop", nil); rec.Code != http.StatusConflict {
		t.Errorf("stop idle: expected status %d, got %d", http.StatusConflict, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/practice", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: expected status %d, got %d", http.StatusCreated, rec.Code)
	}
	var st practice.Status
	decode(t, rec, &st)
	if !st.Active || st.Word == nil || st.Word.Word != practice.DefaultWords[0].Word {
		t.Errorf("unexpected status %+v", st)
	}

	rec = do(t, h, http.MethodPost, "/api/practice/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var result practice.Result
	decode(t, rec, &result)
	if result.Total != len(practice.DefaultWords) || result.Score != 0 {
		t.Errorf("unexpected result %+v", result)
	}

	var history struct {
		Runs []store.PracticeRun `json:"runs"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/practice/history", nil), &history)
	if len(history.Runs) != 1 {
		t.Errorf("expected 1 practice run, got %d", len(history.Runs))
	}

	if rec := do(t, h, http.MethodGet, "/api/practice/other", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler(t *testing.T) {
	a := newTestApp(t, nil)
	h := NewSessionHandler(a)

	var resp sessionResponse
	decode(t, do(t, h, http.MethodGet, "/api/session", nil), &resp)
	if resp.Running || resp.State != session.StateStopped || !resp.SpeechAvailable {
		t.Errorf("unexpected idle snapshot %+v", resp)
	}

	decode(t, do(t, h, http.MethodPost, "/api/session/toggle", nil), &resp)
	if !resp.Running || resp.SessionID == "" {
		t.Errorf("expected running session, got %+v", resp)
	}

	if rec := do(t, h, http.MethodPost, "/api/session/start", nil); rec.Code != http.StatusConflict {
		t.Errorf("start while running: expected status %d, got %d", http.StatusConflict, rec.Code)
	}

	decode(t, do(t, h, http.MethodPost, "/api/session/stop", nil), &resp)
	if resp.Running {
		t.Error("expected stopped session")
	}

	if rec := do(t, h, http.MethodPost, "/api/session/pause", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/session/start", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET action: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestPluginHandler(t *testing.T) {
	m := newTestPlugins(t)
	h := NewPluginHandler(m)

	var resp struct {
		Plugins []pluginResponse `json:"plugins"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/plugins", nil), &resp)
	if len(resp.Plugins) != 1 || resp.Plugins[0].Name != "notes" || resp.Plugins[0].Actions[0] != "append" {
		t.Errorf("unexpected plugins %+v", resp.Plugins)
	}

	// A plugin dropped into the directory appears after a reload.
	other := filepath.Join(m.PluginDir(), "lights")
	if err := os.MkdirAll(other, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"lights","executable":"run.sh","actions":["on","off"]}`
	if err := os.WriteFile(filepath.Join(other, plugin.ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	decode(t, do(t, h, http.MethodPost, "/api/plugins/reload", nil), &resp)
	if len(resp.Plugins) != 2 {
		t.Errorf("expected 2 plugins after reload, got %d", len(resp.Plugins))
	}

	if rec := do(t, h, http.MethodGet, "/api/plugins/reload", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET reload: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
