// Package speech turns classifier results into deduplicated spoken output.
package speech

import (
	"context"
	"errors"

	"github.com/ayusman/mudra/internal/classifier"
)

// ErrNoEngine is returned when no speech engine is available.
var ErrNoEngine = errors.New("no speech engine available")

// Voice holds the fixed utterance parameters. Rate, Pitch and Volume are
// relative to the engine default (1 = unchanged).
type Voice struct {
	Lang   string  `yaml:"lang" json:"lang"`
	Rate   float64 `yaml:"rate" json:"rate"`
	Pitch  float64 `yaml:"pitch" json:"pitch"`
	Volume float64 `yaml:"volume" json:"volume"`
}

// DefaultVoice returns en-US at 0.8 rate, normal pitch and volume.
func DefaultVoice() Voice {
	return Voice{Lang: "en-US", Rate: 0.8, Pitch: 1, Volume: 1}
}

// Speaker is a speech engine. Speak must not block until the utterance has
// finished. Cancel drops the current and any queued utterances.
type Speaker interface {
	Speak(ctx context.Context, text string, voice Voice) error
	Cancel() error
}

// Suppression reasons.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonRepeat         = "repeat"
	ReasonEmptyLabel     = "empty_label"
)

// Action is the deduper's decision for one result.
type Action struct {
	Speak  bool
	Label  string
	Reason string // set when Speak is false
}

// Deduper suppresses repeated and, optionally, low-confidence labels.
// Not safe for concurrent use.
type Deduper struct {
	gateOnThreshold bool
	lastSpoken      string
}

// NewDeduper returns a Deduper with nothing spoken yet.
func NewDeduper(gateOnThreshold bool) *Deduper {
	return &Deduper{gateOnThreshold: gateOnThreshold}
}

// MaybeSpeak decides whether result should be spoken. A spoken label becomes
// the new lastSpoken; suppressed results leave it unchanged.
func (d *Deduper) MaybeSpeak(result classifier.Result, threshold float64) Action {
	switch {
	case result.Label == "":
		return Action{Reason: ReasonEmptyLabel}
	case d.gateOnThreshold && result.Confidence < threshold:
		return Action{Label: result.Label, Reason: ReasonBelowThreshold}
	case result.Label == d.lastSpoken:
		return Action{Label: result.Label, Reason: ReasonRepeat}
	}
	d.lastSpoken = result.Label
	return Action{Speak: true, Label: result.Label}
}

// LastSpoken returns the most recently spoken label, or "".
func (d *Deduper) LastSpoken() string {
	return d.lastSpoken
}

// Reset forgets the last spoken label.
func (d *Deduper) Reset() {
	d.lastSpoken = ""
}
