// Package session runs one recognition session: it feeds detector frames
// through the feature window and inference gate and turns completions into
// speech and display text.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/dispatch"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/observe"
	"github.com/ayusman/mudra/internal/present"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/speech"
)

var (
	// ErrNotRunning is returned by Ingest when the session is stopped.
	ErrNotRunning = errors.New("session not running")
	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("session already running")
)

// State is the externally visible pipeline state.
type State string

const (
	StateStopped     State = "stopped"
	StateIdle        State = "idle"
	StateFilling     State = "filling"
	StateReady       State = "ready"
	StateDispatching State = "dispatching"
)

// Config holds the tunables of one session.
type Config struct {
	WindowLength        int
	ThrottleInterval    time.Duration
	ConfidenceThreshold float64
	// DiscardStaleOnGap invalidates an outstanding request when the hands
	// disappear, so its result is never shown for a gesture that ended.
	DiscardStaleOnGap bool
	Speech            speech.ControllerConfig

	Now     func() time.Time
	Metrics *observe.Metrics
	Logger  *logrus.Entry
}

// DefaultConfig returns a 30-frame window, 900ms throttle and 50% threshold.
func DefaultConfig() Config {
	return Config{
		WindowLength:        sequence.DefaultLength,
		ThrottleInterval:    dispatch.DefaultInterval,
		ConfidenceThreshold: 50,
		Speech:              speech.DefaultControllerConfig(),
	}
}

// Display is what a UI renders for the session.
type Display struct {
	SessionID  string `json:"session_id,omitempty"`
	State      State  `json:"state"`
	Status     string `json:"status"`
	Prediction string `json:"prediction"`
	LastSpoken string `json:"last_spoken,omitempty"`
	Frames     int    `json:"frames"`
	Capacity   int    `json:"capacity"`
}

// Prediction is one applied classifier result.
type Prediction struct {
	SessionID  string    `json:"session_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Spoken     bool      `json:"spoken"`
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
}

// Summary describes a finished session.
type Summary struct {
	ID         string
	StartedAt  time.Time
	EndedAt    time.Time
	Frames     int
	Dispatches int
	Failures   int
	Utterances int
}

// Hooks observe a session. They run after the session lock is released and
// may call back into the session.
type Hooks struct {
	OnStart      func(id string, at time.Time)
	OnStop       func(Summary)
	OnDisplay    func(Display)
	OnPrediction func(Prediction)
	OnFailure    func(sessionID string, err error)
	// OnWindowFull receives a copy of every full window, oldest frame first.
	// generation changes whenever the window restarts, so windows of equal
	// generation share frames and windows of different ones never do.
	OnWindowFull func(sessionID string, generation uint64, window []features.Vector)
}

// Session serializes frame ingestion and dispatch completions under one
// lock, which stands in for a single event loop.
type Session struct {
	cfg       Config
	now       func() time.Time
	metrics   *observe.Metrics
	log       *logrus.Entry
	window    *sequence.Window
	gate      *dispatch.Gate
	speech    *speech.Controller
	presenter present.Presenter

	mu         sync.Mutex
	hooks      Hooks
	running    bool
	summary    Summary
	status     string
	prediction string
	windowGen  uint64
}

// New creates a stopped session. speaker may be nil.
func New(c classifier.Classifier, speaker speech.Speaker, cfg Config) *Session {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = sequence.DefaultLength
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Speech.Metrics == nil {
		cfg.Speech.Metrics = cfg.Metrics
	}
	if cfg.Speech.Logger == nil {
		cfg.Speech.Logger = cfg.Logger
	}

	s := &Session{
		cfg:       cfg,
		now:       cfg.Now,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		window:    sequence.New(cfg.WindowLength),
		speech:    speech.NewController(speaker, cfg.Speech),
		presenter: present.New(cfg.ConfidenceThreshold),
		status:    present.StatusIdle,
	}
	s.gate = dispatch.New(c, dispatch.Config{
		Interval: cfg.ThrottleInterval,
		Now:      cfg.Now,
		Metrics:  cfg.Metrics,
		Logger:   cfg.Logger,
	}, s.complete)
	return s
}

// SetHooks replaces the session hooks.
func (s *Session) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Start begins a new session with fresh window, gate and speech state.
func (s *Session) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.running {
		id := s.summary.ID
		s.mu.Unlock()
		return id, ErrAlreadyRunning
	}

	s.resetWindowLocked()
	s.gate.Reset()
	s.speech.Reset()
	s.running = true
	s.summary = Summary{ID: uuid.NewString(), StartedAt: s.now()}
	s.status = s.presenter.Status(0, s.window.Cap())
	s.prediction = ""
	id, at := s.summary.ID, s.summary.StartedAt
	hooks := s.hooks
	d := s.displayLocked()
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.WithField("session", id).Info("session started")

	if hooks.OnStart != nil {
		hooks.OnStart(id, at)
	}
	if hooks.OnDisplay != nil {
		hooks.OnDisplay(d)
	}
	return id, nil
}

// Stop ends the session, discarding window, dispatch and speech state and
// cancelling pending speech. Responses still in flight are discarded when
// they arrive. Stopping a stopped session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.resetWindowLocked()
	s.gate.Reset()
	s.speech.Stop()
	s.summary.EndedAt = s.now()
	summary := s.summary
	s.status = present.StatusIdle
	s.prediction = ""
	hooks := s.hooks
	d := s.displayLocked()
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(context.Background(), -1)
	s.log.WithFields(logrus.Fields{
		"session":    summary.ID,
		"frames":     summary.Frames,
		"dispatches": summary.Dispatches,
		"failures":   summary.Failures,
	}).Info("session stopped")

	if hooks.OnStop != nil {
		hooks.OnStop(summary)
	}
	if hooks.OnDisplay != nil {
		hooks.OnDisplay(d)
	}
}

// Ingest processes one detector frame. Frames without hands, or with a
// malformed hand, reset the window. Dispatch and speech failures never
// surface here.
func (s *Session) Ingest(ctx context.Context, hands []detector.HandLandmarks) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.summary.Frames++

	v, err := features.Build(hands)
	var (
		full []features.Vector
		gen  uint64
	)
	switch {
	case errors.Is(err, features.ErrNoHands), errors.Is(err, features.ErrMalformedHand):
		if errors.Is(err, features.ErrMalformedHand) {
			s.metrics.RecordFrame(ctx, "malformed")
			s.log.Debug("dropping frame with malformed hand")
		} else {
			s.metrics.RecordFrame(ctx, "no_hands")
		}
		s.resetWindowLocked()
		if s.cfg.DiscardStaleOnGap {
			s.gate.Invalidate()
		}
	default:
		s.metrics.RecordFrame(ctx, "vector")
		s.window.Push(v)
		if s.window.IsFull() {
			if s.hooks.OnWindowFull != nil {
				full = s.window.Snapshot()
				gen = s.windowGen
			}
			if _, out := s.gate.TryDispatch(ctx, s.window, s.now()); out.Sent() {
				s.summary.Dispatches++
			}
		}
	}
	s.status = s.presenter.Status(s.window.Len(), s.window.Cap())
	id := s.summary.ID
	hooks := s.hooks
	d := s.displayLocked()
	s.mu.Unlock()

	if full != nil {
		hooks.OnWindowFull(id, gen, full)
	}
	if hooks.OnDisplay != nil {
		hooks.OnDisplay(d)
	}
	return nil
}

// complete applies a classifier completion. It runs on the gate's request
// goroutine and enters the loop like a frame would.
func (s *Session) complete(c dispatch.Completion) {
	ctx := context.Background()

	s.mu.Lock()
	if c.Stale || !s.running || !s.gate.Current(c.Ticket) {
		s.mu.Unlock()
		s.metrics.RecordCompletion(ctx, "stale")
		return
	}

	id := s.summary.ID
	hooks := s.hooks

	if c.Err != nil {
		s.summary.Failures++
		s.prediction = s.presenter.Failure(c.Err)
		d := s.displayLocked()
		s.mu.Unlock()

		s.metrics.RecordCompletion(ctx, "failed")
		if hooks.OnFailure != nil {
			hooks.OnFailure(id, c.Err)
		}
		if hooks.OnDisplay != nil {
			hooks.OnDisplay(d)
		}
		return
	}

	action := s.speech.Handle(ctx, c.Result, s.cfg.ConfidenceThreshold)
	if action.Speak {
		s.summary.Utterances++
	}
	s.prediction = s.presenter.Prediction(c.Result)
	p := Prediction{
		SessionID:  id,
		Label:      c.Result.Label,
		Confidence: c.Result.Confidence,
		Spoken:     action.Speak,
		Text:       s.prediction,
		At:         c.CompletedAt,
	}
	d := s.displayLocked()
	s.mu.Unlock()

	s.metrics.RecordCompletion(ctx, "applied")
	s.log.WithFields(logrus.Fields{
		"label":      p.Label,
		"confidence": p.Confidence,
		"spoken":     p.Spoken,
	}).Debug("prediction applied")

	if hooks.OnPrediction != nil {
		hooks.OnPrediction(p)
	}
	if hooks.OnDisplay != nil {
		hooks.OnDisplay(d)
	}
}

// resetWindowLocked empties the window and starts a new generation.
func (s *Session) resetWindowLocked() {
	s.window.Reset()
	s.windowGen++
}

func (s *Session) stateLocked() State {
	switch {
	case !s.running:
		return StateStopped
	case s.window.Len() == 0:
		return StateIdle
	case s.gate.InFlight():
		return StateDispatching
	case s.window.IsFull():
		return StateReady
	default:
		return StateFilling
	}
}

func (s *Session) displayLocked() Display {
	d := Display{
		State:      s.stateLocked(),
		Status:     s.status,
		Prediction: s.prediction,
		LastSpoken: s.speech.LastSpoken(),
		Frames:     s.window.Len(),
		Capacity:   s.window.Cap(),
	}
	if s.running {
		d.SessionID = s.summary.ID
	}
	return d
}

// State returns the current pipeline state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Display returns the current display text.
func (s *Session) Display() Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayLocked()
}

// Running reports whether the session has been started and not stopped.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ID returns the current session id, or "" when stopped.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ""
	}
	return s.summary.ID
}

// SpeechAvailable reports whether a speech engine is attached.
func (s *Session) SpeechAvailable() bool {
	return s.speech.Available()
}

// Wait blocks until outstanding classifier requests have completed.
func (s *Session) Wait() {
	s.gate.Wait()
}
