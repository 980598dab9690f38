// Package practice runs a timed signing drill over a fixed word list, scored
// from live predictions.
package practice

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotActive is returned when no drill is running.
var ErrNotActive = errors.New("no practice drill running")

// Word is one drill prompt.
type Word struct {
	Word        string `json:"word"`
	Instruction string `json:"instruction"`
}

// DefaultWords is the standard drill.
var DefaultWords = []Word{
	{"Hello", "Wave your hand in greeting"},
	{"Thank You", "Touch your chin and move hand forward"},
	{"Please", "Place hand on chest and move in circular motion"},
	{"Sorry", "Make a fist and rub it on your chest in circular motion"},
	{"Water", "Make 'W' with three fingers and tap your chin"},
	{"Help", "Place one hand on the other and lift both up"},
	{"Yes", "Make a fist and nod it up and down"},
	{"No", "Extend index and middle finger and close them"},
}

const (
	DefaultWordTimeLimit  = 10 * time.Second
	DefaultPassConfidence = 50
)

// Config configures a Drill.
type Config struct {
	Words          []Word
	WordTimeLimit  time.Duration
	PassConfidence float64
	Now            func() time.Time
	// OnFinish is called, outside the drill lock, when a drill ends.
	OnFinish func(Result)
}

// Result summarizes a finished drill.
type Result struct {
	ID        string        `json:"id"`
	Score     int           `json:"score"`
	Total     int           `json:"total"`
	Accuracy  int           `json:"accuracy"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
}

// Status is a snapshot of the drill.
type Status struct {
	Active    bool    `json:"active"`
	ID        string  `json:"id,omitempty"`
	Index     int     `json:"index"`
	Total     int     `json:"total"`
	Score     int     `json:"score"`
	Word      *Word   `json:"word,omitempty"`
	Remaining float64 `json:"remaining_seconds"`
	Last      *Result `json:"last,omitempty"`
}

// Drill is safe for concurrent use.
type Drill struct {
	cfg Config

	mu        sync.Mutex
	active    bool
	id        string
	index     int
	score     int
	startedAt time.Time
	deadline  time.Time
	last      *Result
}

// New creates an idle drill.
func New(cfg Config) *Drill {
	if len(cfg.Words) == 0 {
		cfg.Words = DefaultWords
	}
	if cfg.WordTimeLimit <= 0 {
		cfg.WordTimeLimit = DefaultWordTimeLimit
	}
	if cfg.PassConfidence <= 0 {
		cfg.PassConfidence = DefaultPassConfidence
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Drill{cfg: cfg}
}

// Start begins a drill at the first word, replacing any running drill
// without recording it.
func (d *Drill) Start() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.cfg.Now()
	d.active = true
	d.id = uuid.NewString()
	d.index = 0
	d.score = 0
	d.startedAt = now
	d.deadline = now.Add(d.cfg.WordTimeLimit)
	return d.statusLocked(now)
}

// Observe scores one prediction against the current word. A match above the
// pass confidence counts and moves to the next word.
func (d *Drill) Observe(label string, confidence float64) bool {
	d.mu.Lock()
	now := d.cfg.Now()
	finished := d.expireLocked(now)
	correct := false
	if d.active && label == d.cfg.Words[d.index].Word && confidence > d.cfg.PassConfidence {
		correct = true
		d.score++
		if r := d.advanceLocked(now); r != nil {
			finished = r
		}
	}
	d.mu.Unlock()

	d.notify(finished)
	return correct
}

// Tick applies time limits. Callers poll it; Status and Observe tick too.
func (d *Drill) Tick() {
	d.mu.Lock()
	finished := d.expireLocked(d.cfg.Now())
	d.mu.Unlock()
	d.notify(finished)
}

// Stop ends the running drill early and records its result.
func (d *Drill) Stop() (Result, error) {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return Result{}, ErrNotActive
	}
	r := d.finishLocked(d.cfg.Now())
	d.mu.Unlock()

	d.notify(r)
	return *r, nil
}

// Status returns the current drill state.
func (d *Drill) Status() Status {
	d.mu.Lock()
	now := d.cfg.Now()
	finished := d.expireLocked(now)
	st := d.statusLocked(now)
	d.mu.Unlock()

	d.notify(finished)
	return st
}

func (d *Drill) notify(r *Result) {
	if r != nil && d.cfg.OnFinish != nil {
		d.cfg.OnFinish(*r)
	}
}

// expireLocked skips every word whose time has run out.
func (d *Drill) expireLocked(now time.Time) *Result {
	for d.active && !now.Before(d.deadline) {
		if r := d.advanceLocked(d.deadline); r != nil {
			return r
		}
	}
	return nil
}

func (d *Drill) advanceLocked(now time.Time) *Result {
	if d.index >= len(d.cfg.Words)-1 {
		return d.finishLocked(now)
	}
	d.index++
	d.deadline = now.Add(d.cfg.WordTimeLimit)
	return nil
}

func (d *Drill) finishLocked(now time.Time) *Result {
	total := len(d.cfg.Words)
	r := &Result{
		ID:        d.id,
		Score:     d.score,
		Total:     total,
		Accuracy:  Accuracy(d.score, total),
		StartedAt: d.startedAt,
		EndedAt:   now,
		Duration:  now.Sub(d.startedAt),
	}
	d.active = false
	d.last = r
	return r
}

func (d *Drill) statusLocked(now time.Time) Status {
	st := Status{
		Active: d.active,
		Total:  len(d.cfg.Words),
		Score:  d.score,
		Last:   d.last,
	}
	if d.active {
		w := d.cfg.Words[d.index]
		st.ID = d.id
		st.Index = d.index
		st.Word = &w
		st.Remaining = d.deadline.Sub(now).Seconds()
	}
	return st
}

// Accuracy returns score/total as a rounded percentage.
func Accuracy(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}
