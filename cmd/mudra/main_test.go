package main

import (
	"testing"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/tray"
)

func TestSettingsURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080/"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000/"},
	}
	for _, tt := range tests {
		if got := settingsURL(tt.addr); got != tt.want {
			t.Errorf("settingsURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestTrayPublisher(t *testing.T) {
	tr := tray.New()
	p := trayPublisher{tr}

	p.Publish(app.EventSession, app.SessionEvent{Running: true, ID: "s1"})
	if !tr.Running() {
		t.Error("expected running tray after session start")
	}

	p.Publish(app.EventPrediction, session.Prediction{Label: "Yes", Spoken: false})
	if tr.LastSpoken() != "" {
		t.Errorf("unspoken label shown: %q", tr.LastSpoken())
	}
	p.Publish(app.EventPrediction, session.Prediction{Label: "Yes", Spoken: true})
	if tr.LastSpoken() != "Yes" {
		t.Errorf("LastSpoken() = %q, want Yes", tr.LastSpoken())
	}

	p.Publish(app.EventSession, app.SessionEvent{Running: false, ID: "s1"})
	if tr.Running() {
		t.Error("expected stopped tray after session stop")
	}
}
