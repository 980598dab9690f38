package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/logging"
)

// codec is shared by the executor and manifest loading.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTimeout bounds a single plugin run.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when a plugin does not finish in time.
	ErrTimeout = errors.New("plugin execution timed out")
	// ErrUnsupportedAction is returned for actions missing from the manifest.
	ErrUnsupportedAction = errors.New("action not declared by plugin")
)

// Executor handles the execution of plugins with timeout support.
type Executor struct {
	timeout time.Duration
	log     *logrus.Entry
}

// NewExecutor creates a new Executor. A non-positive timeout selects
// DefaultTimeout and a nil logger discards output.
func NewExecutor(timeout time.Duration, log *logrus.Entry) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Executor{
		timeout: timeout,
		log:     log,
	}
}

// Timeout returns the per-run deadline.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs a plugin with the given request and returns its response.
// The request is written to stdin as JSON and stdout is parsed as a
// Response. The run is bounded by both ctx and the executor timeout.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	if !plugin.Manifest.Supports(req.Action) {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedAction, plugin.Manifest.Name, req.Action)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reqJSON, err := codec.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, plugin.Executable)
	cmd.Dir = plugin.Path
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	log := e.log.WithFields(logrus.Fields{
		"plugin":   plugin.Manifest.Name,
		"action":   req.Action,
		"label":    req.Label,
		"duration": time.Since(start),
	})

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("plugin timed out")
		return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}

	if err != nil {
		if s := stderr.String(); s != "" {
			log.WithError(err).WithField("stderr", s).Warn("plugin failed")
			return nil, fmt.Errorf("plugin execution failed: %w, stderr: %s", err, s)
		}
		log.WithError(err).Warn("plugin failed")
		return nil, fmt.Errorf("plugin execution failed: %w", err)
	}

	var response Response
	if err := codec.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse plugin response: %w, stdout: %s", err, stdout.String())
	}

	log.WithField("success", response.Success).Debug("plugin finished")
	return &response, nil
}
