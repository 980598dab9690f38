// Package app wires the camera, hand detector and recognition session
// together and connects session events to storage, practice drills, plugin
// actions and live feedback.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/observe"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/practice"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// Event kinds sent to the Publisher.
const (
	EventDisplay    = "display"
	EventPrediction = "prediction"
	EventFailure    = "failure"
	EventHands      = "hands"
	EventSession    = "session"
	EventPractice   = "practice"
	EventRecording  = "recording"
)

// MaxConcurrentActions bounds plugin runs in flight. Further spoken labels
// are dropped until a slot frees up.
const MaxConcurrentActions = 2

// Publisher receives live events for connected clients.
type Publisher interface {
	Publish(kind string, payload any)
}

// Publishers fans each event out to several publishers in order.
type Publishers []Publisher

// Publish implements Publisher.
func (ps Publishers) Publish(kind string, payload any) {
	for _, p := range ps {
		p.Publish(kind, payload)
	}
}

// Config holds the collaborators of an App. Store, Plugins, Executor and
// Publisher are optional.
type Config struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Session   *session.Session
	Store     *store.Store
	Plugins   *plugin.Manager
	Executor  *plugin.Executor
	Publisher Publisher
	Practice  practice.Config

	// RecordStride is the number of frames between two recorded samples.
	// Zero records non-overlapping windows.
	RecordStride int

	Metrics *observe.Metrics
	Logger  *logrus.Entry
}

// SessionEvent is published when a session starts or stops.
type SessionEvent struct {
	Running bool             `json:"running"`
	ID      string           `json:"id"`
	At      time.Time        `json:"at"`
	Summary *session.Summary `json:"summary,omitempty"`
}

// HandsEvent carries the landmarks of one camera frame.
type HandsEvent struct {
	Hands     []detector.HandLandmarks `json:"hands"`
	Timestamp int64                    `json:"timestamp"`
}

// App is the main application that orchestrates recognition and the
// side effects of its results.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	session  *session.Session
	drill    *practice.Drill
	recorder *Recorder
	metrics  *observe.Metrics
	log      *logrus.Entry

	actions errgroup.Group

	mu      sync.RWMutex
	running bool
	frame   []byte
	frameN  uint64
	hands   []detector.HandLandmarks
}

// New creates an App and installs its hooks on the session.
func New(config Config) *App {
	if config.Metrics == nil {
		config.Metrics = observe.DefaultMetrics()
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.Detector == nil {
		config.Detector = detector.NewMockDetector()
	}

	a := &App{
		config:   config,
		camera:   config.Camera,
		detector: config.Detector,
		session:  config.Session,
		metrics:  config.Metrics,
		log:      config.Logger,
	}
	a.actions.SetLimit(MaxConcurrentActions)

	practiceCfg := config.Practice
	practiceCfg.OnFinish = a.practiceFinished
	a.drill = practice.New(practiceCfg)

	a.recorder = NewRecorder(config.Store, config.RecordStride, a.publish, a.log)

	a.session.SetHooks(session.Hooks{
		OnStart:      a.sessionStarted,
		OnStop:       a.sessionStopped,
		OnDisplay:    func(d session.Display) { a.publish(EventDisplay, d) },
		OnPrediction: a.predictionApplied,
		OnFailure:    a.predictionFailed,
		OnWindowFull: a.recorder.Capture,
	})

	return a
}

// Start opens the camera and begins a recognition session.
func (a *App) Start(ctx context.Context) (string, error) {
	if a.camera != nil {
		if err := a.camera.Open(); err != nil {
			return "", err
		}
	}
	return a.session.Start(ctx)
}

// Stop ends the recognition session. The camera stays open so the preview
// stream keeps working.
func (a *App) Stop() {
	a.session.Stop()
}

// Toggle starts a stopped session or stops a running one and reports
// whether recognition is now running.
func (a *App) Toggle(ctx context.Context) (bool, error) {
	if a.session.Running() {
		a.Stop()
		return false, nil
	}
	if _, err := a.Start(ctx); err != nil && !errors.Is(err, session.ErrAlreadyRunning) {
		return false, err
	}
	return true, nil
}

// Session returns the recognition session.
func (a *App) Session() *session.Session {
	return a.session
}

// Drill returns the practice drill.
func (a *App) Drill() *practice.Drill {
	return a.drill
}

// Recorder returns the sample recorder.
func (a *App) Recorder() *Recorder {
	return a.recorder
}

// Plugins returns the plugin manager, or nil.
func (a *App) Plugins() *plugin.Manager {
	return a.config.Plugins
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// LatestFrame returns the most recent JPEG-encoded camera frame and its
// sequence number. The sequence is zero before the first frame.
func (a *App) LatestFrame() ([]byte, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frame, a.frameN
}

// LatestHands returns the landmarks detected in the most recent frame.
func (a *App) LatestHands() []detector.HandLandmarks {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hands
}

// Wait blocks until outstanding classifier requests and plugin actions
// have finished.
func (a *App) Wait() {
	a.session.Wait()
	a.actions.Wait()
}

// Close stops the session and releases the camera and detector.
func (a *App) Close() error {
	a.session.Stop()
	a.Wait()

	var errs []error
	if a.camera != nil {
		errs = append(errs, a.camera.Close())
	}
	errs = append(errs, a.detector.Close())
	return errors.Join(errs...)
}

func (a *App) publish(kind string, payload any) {
	if a.config.Publisher != nil {
		a.config.Publisher.Publish(kind, payload)
	}
}

func (a *App) sessionStarted(id string, at time.Time) {
	if a.config.Store != nil {
		if err := a.config.Store.Sessions().Begin(id, at); err != nil {
			a.log.WithError(err).WithField("session", id).Warn("failed to record session start")
		}
	}
	a.publish(EventSession, SessionEvent{Running: true, ID: id, At: at})
}

func (a *App) sessionStopped(s session.Summary) {
	if a.config.Store != nil {
		ended := s.EndedAt
		rec := &store.SessionRecord{
			ID:         s.ID,
			StartedAt:  s.StartedAt,
			EndedAt:    &ended,
			Frames:     s.Frames,
			Dispatches: s.Dispatches,
			Failures:   s.Failures,
			Utterances: s.Utterances,
		}
		if err := a.config.Store.Sessions().Finish(rec); err != nil {
			a.log.WithError(err).WithField("session", s.ID).Warn("failed to record session summary")
		}
	}
	a.recorder.Cancel()
	a.publish(EventSession, SessionEvent{Running: false, ID: s.ID, At: s.EndedAt, Summary: &s})
}

func (a *App) predictionApplied(p session.Prediction) {
	if a.config.Store != nil {
		err := a.config.Store.Predictions().Create(&store.Prediction{
			SessionID:  p.SessionID,
			Label:      p.Label,
			Confidence: p.Confidence,
			Spoken:     p.Spoken,
			CreatedAt:  p.At,
		})
		if err != nil {
			a.log.WithError(err).Warn("failed to record prediction")
		}
	}

	if a.drill.Observe(p.Label, p.Confidence) {
		a.publish(EventPractice, a.drill.Status())
	}

	if p.Spoken {
		a.fireBindings(p)
	}

	a.publish(EventPrediction, p)
}

func (a *App) predictionFailed(sessionID string, err error) {
	a.publish(EventFailure, map[string]string{
		"session_id": sessionID,
		"error":      err.Error(),
	})
}

func (a *App) practiceFinished(r practice.Result) {
	if a.config.Store != nil {
		err := a.config.Store.PracticeRuns().Create(&store.PracticeRun{
			ID:        r.ID,
			Score:     r.Score,
			Total:     r.Total,
			Accuracy:  r.Accuracy,
			Duration:  r.Duration,
			CreatedAt: r.EndedAt,
		})
		if err != nil {
			a.log.WithError(err).Warn("failed to record practice run")
		}
	}
	a.log.WithFields(logrus.Fields{
		"score":    r.Score,
		"total":    r.Total,
		"accuracy": r.Accuracy,
	}).Info("practice finished")
	a.publish(EventPractice, a.drill.Status())
}
