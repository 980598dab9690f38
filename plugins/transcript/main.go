// Command transcript is a mudra plugin that appends every spoken label to
// a text file, one line per sign.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/mudra/internal/plugin"
)

// Config is the binding configuration.
type Config struct {
	// File is the transcript path. Default: ~/.mudra/transcript.txt.
	File string `json:"file"`
	// Timestamps prefixes each line with the local time.
	Timestamps bool `json:"timestamps"`
}

func main() {
	resp := handle(os.Stdin, time.Now)
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(r io.Reader, now func() time.Time) plugin.Response {
	var req plugin.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fail(fmt.Errorf("failed to decode request: %w", err))
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return fail(fmt.Errorf("invalid config: %w", err))
		}
	}

	switch req.Action {
	case "append":
		if err := appendLine(cfg, req.Label, now()); err != nil {
			return fail(fmt.Errorf("action %s failed: %w", req.Action, err))
		}
	case "clear":
		path, err := transcriptPath(cfg)
		if err != nil {
			return fail(err)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fail(err)
		}
	default:
		return fail(fmt.Errorf("unknown action: %s", req.Action))
	}

	return plugin.Response{Success: true}
}

func transcriptPath(cfg Config) (string, error) {
	if cfg.File != "" {
		return cfg.File, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mudra", "transcript.txt"), nil
}

func appendLine(cfg Config, label string, at time.Time) error {
	if label == "" {
		return errors.New("empty label")
	}
	path, err := transcriptPath(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := label
	if cfg.Timestamps {
		line = at.Format("15:04:05") + " " + label
	}
	_, err = fmt.Fprintln(f, line)
	return err
}

func fail(err error) plugin.Response {
	return plugin.Response{Success: false, Error: err.Error()}
}
