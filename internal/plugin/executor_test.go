package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// scriptPlugin writes a shell script plugin declaring a single action.
func scriptPlugin(t *testing.T, name, action, script string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Plugin{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Actions:    []string{action},
		},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, "test-plugin", "speak",
		`echo '{"success":true,"data":{"message":"hello world"}}'`+"\n")

	response, err := NewExecutor(5*time.Second, nil).Execute(context.Background(), plugin, &Request{
		Action: "speak",
		Label:  "hello",
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}
	if response.Error != "" {
		t.Errorf("expected empty error, got %q", response.Error)
	}

	var data map[string]any
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := scriptPlugin(t, "echo-plugin", "echo", `INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	request := &Request{
		Action:     "echo",
		Label:      "thanks",
		Confidence: 87.5,
		SessionID:  "s1",
		Config:     json.RawMessage(`{"setting":"enabled"}`),
		Params:     json.RawMessage(`{"count":42}`),
	}

	response, err := NewExecutor(5*time.Second, nil).Execute(context.Background(), plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received Request `json:"received"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	got := data.Received
	if got.Action != "echo" || got.Label != "thanks" || got.Confidence != 87.5 || got.SessionID != "s1" {
		t.Errorf("plugin received %+v", got)
	}
	if string(got.Config) != `{"setting":"enabled"}` {
		t.Errorf("config not forwarded: %s", got.Config)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := scriptPlugin(t, "slow-plugin", "slow", `sleep 10
echo '{"success":true}'
`)

	_, err := NewExecutor(100*time.Millisecond, nil).Execute(context.Background(), plugin, &Request{Action: "slow"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExecutor_ParentContextCanceled(t *testing.T) {
	plugin := scriptPlugin(t, "slow-plugin", "slow", `sleep 10
echo '{"success":true}'
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(5*time.Second, nil).Execute(ctx, plugin, &Request{Action: "slow"})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation should not be reported as a timeout")
	}
}

func TestExecutor_UnsupportedAction(t *testing.T) {
	plugin := scriptPlugin(t, "test-plugin", "speak", `echo '{"success":true}'
`)

	_, err := NewExecutor(time.Second, nil).Execute(context.Background(), plugin, &Request{Action: "dance"})
	if !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("expected ErrUnsupportedAction, got %v", err)
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	plugin := scriptPlugin(t, "error-plugin", "fail", `echo '{"success":false,"error":"something went wrong"}'
`)

	response, err := NewExecutor(5*time.Second, nil).Execute(context.Background(), plugin, &Request{Action: "fail"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if response.Success {
		t.Errorf("expected success=false, got true")
	}
	if response.Error != "something went wrong" {
		t.Errorf("expected error 'something went wrong', got %q", response.Error)
	}
}

func TestExecutor_Execute_InvalidJSON(t *testing.T) {
	plugin := scriptPlugin(t, "bad-plugin", "bad", `echo 'not valid json'
`)

	if _, err := NewExecutor(5*time.Second, nil).Execute(context.Background(), plugin, &Request{Action: "bad"}); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestExecutor_Execute_NonZeroExit(t *testing.T) {
	plugin := scriptPlugin(t, "exit-plugin", "exit", `echo "Error: something failed" >&2
exit 1
`)

	if _, err := NewExecutor(5*time.Second, nil).Execute(context.Background(), plugin, &Request{Action: "exit"}); err == nil {
		t.Fatal("expected error for non-zero exit, got nil")
	}
}

func TestNewExecutor(t *testing.T) {
	if got := NewExecutor(3*time.Second, nil).Timeout(); got != 3*time.Second {
		t.Errorf("Timeout() = %s, want 3s", got)
	}
	if got := NewExecutor(0, nil).Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() = %s, want default %s", got, DefaultTimeout)
	}
}
