package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/logging"
)

// Engines in auto-detection order.
var Engines = []string{"espeak-ng", "espeak", "spd-say", "say"}

// ErrQueueFull is returned by Speak when too many utterances are pending.
var ErrQueueFull = errors.New("speech queue full")

// ErrClosed is returned by Speak after Close.
var ErrClosed = errors.New("speaker closed")

const queueSize = 8

type utterance struct {
	text  string
	voice Voice
	gen   uint64
}

// CommandSpeaker speaks through a command-line TTS engine. Utterances run one
// at a time on a worker goroutine.
type CommandSpeaker struct {
	engine string
	path   string
	log    *logrus.Entry

	queue chan utterance
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	cancelCur context.CancelFunc
	gen       uint64
	closed    bool
}

// NewCommandSpeaker starts a speaker for the engine binary at path. engine is
// the binary name and selects the argument style.
func NewCommandSpeaker(engine, path string, log *logrus.Entry) *CommandSpeaker {
	if log == nil {
		log = logging.Discard()
	}
	s := &CommandSpeaker{
		engine: engine,
		path:   path,
		log:    log,
		queue:  make(chan utterance, queueSize),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Engine returns the engine name.
func (s *CommandSpeaker) Engine() string {
	return s.engine
}

// Speak enqueues text and returns immediately.
func (s *CommandSpeaker) Speak(ctx context.Context, text string, voice Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- utterance{text: text, voice: voice, gen: s.gen}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel drops queued utterances and stops the one being spoken.
func (s *CommandSpeaker) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
drain:
	for {
		select {
		case <-s.queue:
		default:
			break drain
		}
	}
	if s.cancelCur != nil {
		s.cancelCur()
		s.cancelCur = nil
	}
	return nil
}

// Close cancels pending speech and stops the worker.
func (s *CommandSpeaker) Close() error {
	s.Cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *CommandSpeaker) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case u := <-s.queue:
			s.say(u)
		}
	}
}

func (s *CommandSpeaker) say(u utterance) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.mu.Lock()
	if u.gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.cancelCur = cancel
	s.mu.Unlock()

	cmd := exec.CommandContext(ctx, s.path, Args(s.engine, u.text, u.voice)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && ctx.Err() == nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"engine": s.engine,
			"stderr": strings.TrimSpace(stderr.String()),
		}).Warn("speech engine failed")
	}

	s.mu.Lock()
	s.cancelCur = nil
	s.mu.Unlock()
}

// Args builds the command line for engine. Voice values are mapped onto each
// engine's own scale.
func Args(engine, text string, v Voice) []string {
	switch engine {
	case "espeak-ng", "espeak":
		return []string{
			"-v", strings.ToLower(v.Lang),
			"-s", strconv.Itoa(int(math.Round(175 * v.Rate))),
			"-p", strconv.Itoa(clamp(int(math.Round(50*v.Pitch)), 0, 99)),
			"-a", strconv.Itoa(clamp(int(math.Round(100*v.Volume)), 0, 200)),
			"--", text,
		}
	case "spd-say":
		return []string{
			"-l", strings.ToLower(strings.SplitN(v.Lang, "-", 2)[0]),
			"-r", strconv.Itoa(clamp(int(math.Round((v.Rate-1)*100)), -100, 100)),
			"-p", strconv.Itoa(clamp(int(math.Round((v.Pitch-1)*100)), -100, 100)),
			"-i", strconv.Itoa(clamp(int(math.Round((v.Volume-1)*100)), -100, 100)),
			"-w", "--", text,
		}
	case "say":
		return []string{"-r", strconv.Itoa(int(math.Round(175 * v.Rate))), "--", text}
	default:
		return []string{text}
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Detect finds a speech engine. engine is "auto", "none", or one of Engines.
// Returns ErrNoEngine when nothing usable is installed.
func Detect(engine string, log *logrus.Entry) (*CommandSpeaker, error) {
	candidates := Engines
	switch engine {
	case "", "auto":
	case "none":
		return nil, ErrNoEngine
	default:
		candidates = []string{engine}
	}

	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		return NewCommandSpeaker(name, path, log), nil
	}
	return nil, fmt.Errorf("%w: tried %s", ErrNoEngine, strings.Join(candidates, ", "))
}
