// Package dispatch implements the throttled single-flight gate in front of the
// remote classifier.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/observe"
)

// DefaultInterval is the minimum time between a completion and the next send.
const DefaultInterval = 900 * time.Millisecond

// Outcome is the gate's decision for one full-window check.
type Outcome string

const (
	Sent      Outcome = "sent"
	NotFull   Outcome = "not_full"
	InFlight  Outcome = "in_flight"
	Throttled Outcome = "throttled"
)

// Sent reports whether a request was started.
func (o Outcome) Sent() bool { return o == Sent }

// Window is the part of sequence.Window the gate reads.
type Window interface {
	IsFull() bool
	Snapshot() []features.Vector
}

// Ticket identifies one sent request.
type Ticket struct {
	ID     uint64
	Epoch  uint64
	SentAt time.Time
}

// Completion is delivered once per Sent ticket.
type Completion struct {
	Ticket
	Result      classifier.Result
	Err         error
	CompletedAt time.Time
	// Stale is set when the gate was Reset or Invalidated after this ticket
	// was sent. Stale completions must not be applied.
	Stale bool
}

// Config configures a Gate.
type Config struct {
	Interval time.Duration
	// Now is the clock. Default: time.Now.
	Now     func() time.Time
	Metrics *observe.Metrics
	Logger  *logrus.Entry
}

// Gate admits at most one classifier call at a time and no more than one per
// Interval, measured from the previous completion. Requests that do not pass
// are dropped, never queued.
type Gate struct {
	classifier classifier.Classifier
	interval   time.Duration
	now        func() time.Time
	metrics    *observe.Metrics
	log        *logrus.Entry
	onDone     func(Completion)

	mu           sync.Mutex
	lastDispatch time.Time
	inFlight     bool
	nextID       uint64
	staleThrough uint64 // tickets with ID <= staleThrough are stale
	epoch        uint64

	wg sync.WaitGroup
}

// New creates a Gate. onDone runs on the request goroutine after the gate
// state has been updated.
func New(c classifier.Classifier, cfg Config, onDone func(Completion)) *Gate {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
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
	if onDone == nil {
		onDone = func(Completion) {}
	}
	return &Gate{
		classifier: c,
		interval:   cfg.Interval,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		onDone:     onDone,
	}
}

// TryDispatch sends the window if it is full, nothing is in flight, and at
// least Interval has passed since the last completion. inFlight is set before
// the call starts. The call runs detached from ctx cancellation.
func (g *Gate) TryDispatch(ctx context.Context, w Window, now time.Time) (Ticket, Outcome) {
	t, outcome := g.admit(w, now)
	if !outcome.Sent() {
		g.metrics.RecordDispatch(ctx, string(outcome))
		return Ticket{}, outcome
	}

	g.metrics.RecordDispatch(ctx, string(Sent))
	window := w.Snapshot()

	g.wg.Add(1)
	go g.run(context.WithoutCancel(ctx), t, window)

	return t, Sent
}

// admit checks the gate and, on success, claims the in-flight slot and
// issues the next ticket.
func (g *Gate) admit(w Window, now time.Time) (Ticket, Outcome) {
	if !w.IsFull() {
		return Ticket{}, NotFull
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return Ticket{}, InFlight
	}
	if !g.lastDispatch.IsZero() && now.Sub(g.lastDispatch) < g.interval {
		return Ticket{}, Throttled
	}
	g.inFlight = true
	g.nextID++
	return Ticket{ID: g.nextID, Epoch: g.epoch, SentAt: now}, Sent
}

func (g *Gate) run(ctx context.Context, t Ticket, window []features.Vector) {
	defer g.wg.Done()

	start := time.Now()
	res, err := g.classifier.Classify(ctx, window)
	g.metrics.RecordClassifierCall(ctx, time.Since(start), classifier.Kind(err))

	c := Completion{Ticket: t, Result: res, Err: err, CompletedAt: g.now()}

	g.mu.Lock()
	if t.Epoch == g.epoch {
		g.inFlight = false
		g.lastDispatch = c.CompletedAt
	}
	c.Stale = !g.currentLocked(t)
	g.mu.Unlock()

	switch {
	case err != nil:
		g.log.WithError(err).WithField("ticket", t.ID).Warn("classifier request failed")
	case c.Stale:
		g.log.WithField("ticket", t.ID).Debug("discarding stale classifier response")
	}

	g.onDone(c)
}

// Reset restores the initial state and makes any outstanding request stale.
// An outstanding request no longer holds the single-flight slot.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	g.inFlight = false
	g.lastDispatch = time.Time{}
	g.staleThrough = g.nextID
}

// Invalidate marks the outstanding request stale but keeps it holding the
// single-flight slot until it completes.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.staleThrough = g.nextID
}

// Current reports whether t has not been made stale by Reset or Invalidate.
// A completion whose Stale flag was clear can turn stale before it is applied.
func (g *Gate) Current(t Ticket) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentLocked(t)
}

func (g *Gate) currentLocked(t Ticket) bool {
	return t.Epoch == g.epoch && t.ID > g.staleThrough
}

// InFlight reports whether a request holds the single-flight slot.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// LastDispatch returns the completion time of the last request, or zero.
func (g *Gate) LastDispatch() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastDispatch
}

// Wait blocks until every started request has delivered its completion.
func (g *Gate) Wait() {
	g.wg.Wait()
}
