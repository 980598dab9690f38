package speech

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/observe"
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Voice Voice
	// Interrupt cancels the in-progress utterance before speaking a new one.
	// When false, utterances queue behind each other.
	Interrupt       bool
	GateOnThreshold bool
	Metrics         *observe.Metrics
	Logger          *logrus.Entry
}

// DefaultControllerConfig returns the interrupting, threshold-gated defaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Voice:           DefaultVoice(),
		Interrupt:       true,
		GateOnThreshold: true,
	}
}

// Controller feeds deduper decisions to a Speaker. A nil Speaker is allowed;
// the controller then warns once and keeps deciding without sound.
type Controller struct {
	deduper   *Deduper
	speaker   Speaker
	voice     Voice
	interrupt bool
	metrics   *observe.Metrics
	log       *logrus.Entry
	warnOnce  sync.Once
}

// NewController creates a Controller.
func NewController(speaker Speaker, cfg ControllerConfig) *Controller {
	if cfg.Voice == (Voice{}) {
		cfg.Voice = DefaultVoice()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Controller{
		deduper:   NewDeduper(cfg.GateOnThreshold),
		speaker:   speaker,
		voice:     cfg.Voice,
		interrupt: cfg.Interrupt,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
	}
}

// Handle runs the deduper on result and speaks the label when it passes.
// Speech failures are logged and never returned.
func (c *Controller) Handle(ctx context.Context, result classifier.Result, threshold float64) Action {
	action := c.deduper.MaybeSpeak(result, threshold)
	if !action.Speak {
		c.metrics.RecordUtterance(ctx, "suppressed")
		return action
	}
	c.metrics.RecordUtterance(ctx, "spoken")

	if c.speaker == nil {
		c.warnOnce.Do(func() {
			c.log.Warn("speech engine unavailable, predictions will not be spoken")
		})
		return action
	}

	if c.interrupt {
		if err := c.speaker.Cancel(); err != nil {
			c.log.WithError(err).Warn("cancel utterance")
		}
	}
	if err := c.speaker.Speak(ctx, action.Label, c.voice); err != nil {
		c.log.WithError(err).WithField("label", action.Label).Warn("speak label")
	}
	return action
}

// LastSpoken returns the last label handed to the speaker.
func (c *Controller) LastSpoken() string {
	return c.deduper.LastSpoken()
}

// Available reports whether a speech engine is attached.
func (c *Controller) Available() bool {
	return c.speaker != nil
}

// Reset forgets the last spoken label without touching the engine.
func (c *Controller) Reset() {
	c.deduper.Reset()
}

// Stop forgets the last spoken label and cancels pending speech.
func (c *Controller) Stop() {
	c.deduper.Reset()
	if c.speaker == nil {
		return
	}
	if err := c.speaker.Cancel(); err != nil {
		c.log.WithError(err).Warn("cancel speech on stop")
	}
}
