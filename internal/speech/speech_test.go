package speech

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/observe"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestDeduper(t *testing.T) {
	t.Run("below threshold is suppressed", func(t *testing.T) {
		d := NewDeduper(true)
		a := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 49}, 50)
		if a.Speak || a.Reason != ReasonBelowThreshold {
			t.Errorf("action = %+v", a)
		}
		if d.LastSpoken() != "" {
			t.Errorf("lastSpoken = %q, want empty", d.LastSpoken())
		}
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		d := NewDeduper(true)
		if a := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 50}, 50); !a.Speak {
			t.Errorf("confidence equal to threshold suppressed: %+v", a)
		}
	})

	t.Run("gate disabled speaks low confidence", func(t *testing.T) {
		d := NewDeduper(false)
		if a := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 10}, 50); !a.Speak {
			t.Errorf("action = %+v", a)
		}
	})

	t.Run("repeat is suppressed", func(t *testing.T) {
		d := NewDeduper(true)
		first := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 90}, 50)
		second := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 95}, 50)
		if !first.Speak || first.Label != "Hello" {
			t.Errorf("first = %+v", first)
		}
		if second.Speak || second.Reason != ReasonRepeat {
			t.Errorf("second = %+v", second)
		}
	})

	t.Run("new label after repeat speaks", func(t *testing.T) {
		d := NewDeduper(true)
		d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 90}, 50)
		if a := d.MaybeSpeak(classifier.Result{Label: "Water", Confidence: 90}, 50); !a.Speak {
			t.Errorf("action = %+v", a)
		}
		if a := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 90}, 50); !a.Speak {
			t.Errorf("returning label suppressed: %+v", a)
		}
	})

	t.Run("low confidence does not clear last spoken", func(t *testing.T) {
		d := NewDeduper(true)
		d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 90}, 50)
		d.MaybeSpeak(classifier.Result{Label: "Water", Confidence: 20}, 50)
		if a := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 90}, 50); a.Speak {
			t.Errorf("repeat after low-confidence result spoken: %+v", a)
		}
	})

	t.Run("empty label is suppressed", func(t *testing.T) {
		d := NewDeduper(true)
		if a := d.MaybeSpeak(classifier.Result{Confidence: 99}, 50); a.Speak || a.Reason != ReasonEmptyLabel {
			t.Errorf("action = %+v", a)
		}
	})

	t.Run("reset allows repeat", func(t *testing.T) {
		d := NewDeduper(true)
		d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 90}, 50)
		d.Reset()
		if a := d.MaybeSpeak(classifier.Result{Label: "Hello", Confidence: 90}, 50); !a.Speak {
			t.Errorf("action after reset = %+v", a)
		}
	})
}

func TestController(t *testing.T) {
	ctx := context.Background()

	t.Run("speaks once for repeated label", func(t *testing.T) {
		sp := NewMockSpeaker()
		cfg := DefaultControllerConfig()
		cfg.Metrics = testMetrics(t)
		c := NewController(sp, cfg)

		c.Handle(ctx, classifier.Result{Label: "Hello", Confidence: 90}, 50)
		c.Handle(ctx, classifier.Result{Label: "Hello", Confidence: 90}, 50)

		if got := sp.Spoken(); !slices.Equal(got, []string{"Hello"}) {
			t.Errorf("spoken = %v", got)
		}
		if v := sp.Voices()[0]; v != DefaultVoice() {
			t.Errorf("voice = %+v", v)
		}
	})

	t.Run("interrupt cancels before speaking", func(t *testing.T) {
		sp := NewMockSpeaker()
		cfg := DefaultControllerConfig()
		cfg.Metrics = testMetrics(t)
		c := NewController(sp, cfg)

		c.Handle(ctx, classifier.Result{Label: "Hello", Confidence: 90}, 50)
		c.Handle(ctx, classifier.Result{Label: "Water", Confidence: 90}, 50)

		if sp.Cancels() != 2 {
			t.Errorf("cancels = %d, want 2", sp.Cancels())
		}
	})

	t.Run("queue mode does not cancel", func(t *testing.T) {
		sp := NewMockSpeaker()
		cfg := DefaultControllerConfig()
		cfg.Interrupt = false
		cfg.Metrics = testMetrics(t)
		c := NewController(sp, cfg)

		c.Handle(ctx, classifier.Result{Label: "Hello", Confidence: 90}, 50)
		c.Handle(ctx, classifier.Result{Label: "Water", Confidence: 90}, 50)

		if sp.Cancels() != 0 {
			t.Errorf("cancels = %d, want 0", sp.Cancels())
		}
		if len(sp.Spoken()) != 2 {
			t.Errorf("spoken = %v", sp.Spoken())
		}
	})

	t.Run("speak failure is swallowed", func(t *testing.T) {
		sp := NewMockSpeaker()
		sp.SetError(errors.New("device busy"))
		cfg := DefaultControllerConfig()
		cfg.Metrics = testMetrics(t)
		c := NewController(sp, cfg)

		a := c.Handle(ctx, classifier.Result{Label: "Hello", Confidence: 90}, 50)
		if !a.Speak || c.LastSpoken() != "Hello" {
			t.Errorf("action = %+v lastSpoken = %q", a, c.LastSpoken())
		}
	})

	t.Run("nil speaker warns once", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		cfg := DefaultControllerConfig()
		cfg.Metrics = testMetrics(t)
		cfg.Logger = logrus.NewEntry(logger)
		c := NewController(nil, cfg)

		c.Handle(ctx, classifier.Result{Label: "Hello", Confidence: 90}, 50)
		c.Handle(ctx, classifier.Result{Label: "Water", Confidence: 90}, 50)

		warns := 0
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel {
				warns++
			}
		}
		if warns != 1 {
			t.Errorf("warnings = %d, want 1", warns)
		}
		if c.Available() {
			t.Error("Available() = true with nil speaker")
		}
		if c.LastSpoken() != "Water" {
			t.Errorf("lastSpoken = %q", c.LastSpoken())
		}
	})

	t.Run("stop resets and cancels", func(t *testing.T) {
		sp := NewMockSpeaker()
		cfg := DefaultControllerConfig()
		cfg.Interrupt = false
		cfg.Metrics = testMetrics(t)
		c := NewController(sp, cfg)

		c.Handle(ctx, classifier.Result{Label: "Hello", Confidence: 90}, 50)
		c.Stop()

		if c.LastSpoken() != "" || sp.Cancels() != 1 {
			t.Errorf("lastSpoken = %q cancels = %d", c.LastSpoken(), sp.Cancels())
		}
	})
}

func TestArgs(t *testing.T) {
	v := DefaultVoice()

	tests := []struct {
		engine string
		want   []string
	}{
		{"espeak-ng", []string{"-v", "en-us", "-s", "140", "-p", "50", "-a", "100", "--", "Hello"}},
		{"spd-say", []string{"-l", "en", "-r", "-20", "-p", "0", "-i", "0", "-w", "--", "Hello"}},
		{"say", []string{"-r", "140", "--", "Hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			if got := Args(tt.engine, "Hello", v); !slices.Equal(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect_None(t *testing.T) {
	if _, err := Detect("none", nil); !errors.Is(err, ErrNoEngine) {
		t.Errorf("expected ErrNoEngine, got %v", err)
	}
	if _, err := Detect("definitely-not-a-tts-binary", nil); !errors.Is(err, ErrNoEngine) {
		t.Errorf("expected ErrNoEngine, got %v", err)
	}
}

func TestCommandSpeaker_CancelStopsUtterance(t *testing.T) {
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	// An unknown engine passes the text as the only argument: "sleep 30".
	s := NewCommandSpeaker("sleep", path, nil)

	if err := s.Speak(context.Background(), "30", DefaultVoice()); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Cancel()
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel did not stop the running utterance")
	}

	if err := s.Speak(context.Background(), "1", DefaultVoice()); !errors.Is(err, ErrClosed) {
		t.Errorf("Speak after Close = %v, want ErrClosed", err)
	}
}

func TestCommandSpeaker_CloseTwice(t *testing.T) {
	s := NewCommandSpeaker("true", "true", nil)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := s.Speak(context.Background(), "hi", DefaultVoice()); !errors.Is(err, ErrClosed) {
		t.Errorf("Speak after Close = %v, want ErrClosed", err)
	}
}
