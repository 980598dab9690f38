package app

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/store"
)

var (
	// ErrNoStore is returned when recording without a database.
	ErrNoStore = errors.New("no sample store configured")
	// ErrInvalidRecording is returned for an empty label or a non-positive count.
	ErrInvalidRecording = errors.New("recording needs a label and a positive count")
)

// RecorderStatus is a snapshot of the recorder.
type RecorderStatus struct {
	Active    bool   `json:"active"`
	Label     string `json:"label,omitempty"`
	Remaining int    `json:"remaining"`
	Recorded  int    `json:"recorded"`
}

// Recorder saves full feature windows as labelled training samples while
// armed. Consecutive windows of one generation overlap by all but one
// frame, so only every stride-th window is kept. The count restarts with
// each new generation.
type Recorder struct {
	store   *store.Store
	stride  int
	publish func(kind string, payload any)
	log     *logrus.Entry

	mu        sync.Mutex
	label     string
	remaining int
	recorded  int
	skip      int
	gen       uint64
}

// NewRecorder creates an idle recorder. A non-positive stride keeps windows
// that share no frames.
func NewRecorder(s *store.Store, stride int, publish func(string, any), log *logrus.Entry) *Recorder {
	return &Recorder{store: s, stride: stride, publish: publish, log: log}
}

// Arm starts recording count samples for label, replacing any recording
// in progress.
func (r *Recorder) Arm(label string, count int) (RecorderStatus, error) {
	label = strings.TrimSpace(label)
	if label == "" || count <= 0 {
		return RecorderStatus{}, ErrInvalidRecording
	}
	if r.store == nil {
		return RecorderStatus{}, ErrNoStore
	}

	r.mu.Lock()
	r.label = label
	r.remaining = count
	r.recorded = 0
	r.skip = 0
	st := r.statusLocked()
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"label": label, "count": count}).Info("recording armed")
	r.publish(EventRecording, st)
	return st, nil
}

// Cancel disarms the recorder, keeping samples already saved.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if r.remaining == 0 {
		r.mu.Unlock()
		return
	}
	r.remaining = 0
	st := r.statusLocked()
	r.mu.Unlock()

	r.publish(EventRecording, st)
}

// Status returns the recorder state.
func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() RecorderStatus {
	return RecorderStatus{
		Active:    r.remaining > 0,
		Label:     r.label,
		Remaining: r.remaining,
		Recorded:  r.recorded,
	}
}

// Capture is the session's full-window hook.
func (r *Recorder) Capture(sessionID string, generation uint64, window []features.Vector) {
	r.mu.Lock()
	if generation != r.gen {
		r.gen = generation
		r.skip = 0
	}
	if r.remaining == 0 {
		r.mu.Unlock()
		return
	}
	if r.skip > 0 {
		r.skip--
		r.mu.Unlock()
		return
	}
	stride := r.stride
	if stride <= 0 {
		stride = len(window)
	}
	r.skip = stride - 1
	label := r.label
	r.mu.Unlock()

	frames := make([][]float64, len(window))
	for i := range window {
		frames[i] = window[i].Slice()
	}
	data, err := json.Marshal(frames)
	if err != nil {
		r.log.WithError(err).Warn("failed to encode sample")
		return
	}

	sample := &store.Sample{Label: label, FrameCount: len(window), Frames: data}
	if err := r.store.Samples().Create(sample); err != nil {
		r.log.WithError(err).WithField("label", label).Warn("failed to save sample")
		return
	}

	r.mu.Lock()
	// A re-arm while saving starts a new recording; the sample is kept but
	// not counted toward it.
	if r.label == label && r.remaining > 0 {
		r.remaining--
		r.recorded++
	}
	st := r.statusLocked()
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"label":     label,
		"session":   sessionID,
		"remaining": st.Remaining,
	}).Debug("sample recorded")
	r.publish(EventRecording, st)
}
