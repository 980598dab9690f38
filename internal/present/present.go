// Package present formats recognition results and pipeline status as display text.
package present

import (
	"fmt"
	"strconv"

	"github.com/ayusman/mudra/internal/classifier"
)

const (
	StatusWaiting = "Waiting for hands..."
	StatusIdle    = "Idle"
	ServerError   = "Server error"
)

// Presenter is stateless apart from the threshold it reports against.
type Presenter struct {
	Threshold float64
}

// New returns a Presenter for threshold (percent).
func New(threshold float64) Presenter {
	return Presenter{Threshold: threshold}
}

// Prediction renders "Hello (90.0%)", or a low-confidence notice when the
// result is below the threshold.
func (p Presenter) Prediction(r classifier.Result) string {
	if r.Confidence < p.Threshold {
		return fmt.Sprintf("Low confidence: %.1f%% (threshold: %s%%)",
			r.Confidence, strconv.FormatFloat(p.Threshold, 'f', -1, 64))
	}
	return fmt.Sprintf("%s (%.1f%%)", r.Label, r.Confidence)
}

// Failure renders a dispatch failure.
func (p Presenter) Failure(error) string {
	return ServerError
}

// Status renders window progress. An empty window means no hands.
func (p Presenter) Status(length, capacity int) string {
	if length == 0 {
		return StatusWaiting
	}
	return fmt.Sprintf("Recording frames (%d/%d)", length, capacity)
}
