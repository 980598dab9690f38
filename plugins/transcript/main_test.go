package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandle(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out", "transcript.txt")
	at := func() time.Time { return time.Date(2024, 1, 2, 9, 30, 5, 0, time.Local) }

	request := func(action, label string, timestamps bool) string {
		ts := "false"
		if timestamps {
			ts = "true"
		}
		return `{"action":"` + action + `","label":"` + label + `","confidence":90,` +
			`"config":{"file":"` + file + `","timestamps":` + ts + `}}`
	}

	if resp := handle(strings.NewReader(request("append", "Hello", false)), at); !resp.Success {
		t.Fatalf("append failed: %s", resp.Error)
	}
	if resp := handle(strings.NewReader(request("append", "Thank You", true)), at); !resp.Success {
		t.Fatalf("append failed: %s", resp.Error)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "Hello\n09:30:05 Thank You\n"; got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}

	if resp := handle(strings.NewReader(request("clear", "", false)), at); !resp.Success {
		t.Fatalf("clear failed: %s", resp.Error)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("transcript should be removed")
	}

	tests := []struct {
		name string
		body string
	}{
		{"bad json", "{"},
		{"unknown action", request("erase", "Hello", false)},
		{"empty label", request("append", "", false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := handle(strings.NewReader(tt.body), at); resp.Success || resp.Error == "" {
				t.Errorf("expected failure, got %+v", resp)
			}
		})
	}
}
