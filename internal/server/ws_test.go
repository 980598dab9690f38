package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev map[string]any
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestHub_Publish(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h, "")
	waitClients(t, h, 1)

	h.Publish("display", map[string]string{"prediction": "Hello (90.0%)"})

	ev := readEvent(t, conn)
	if ev["type"] != "display" {
		t.Errorf("type = %v, want display", ev["type"])
	}
	data, _ := ev["data"].(map[string]any)
	if data["prediction"] != "Hello (90.0%)" {
		t.Errorf("unexpected data %v", ev["data"])
	}
}

func TestHub_EventFilter(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h, "?events=prediction")
	waitClients(t, h, 1)

	h.Publish("hands", []int{1})
	h.Publish("prediction", map[string]string{"label": "Hello"})

	if ev := readEvent(t, conn); ev["type"] != "prediction" {
		t.Errorf("type = %v, want prediction", ev["type"])
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h, "")
	waitClients(t, h, 1)

	h.Close()
	if h.Clients() != 0 {
		t.Errorf("clients = %d after Close", h.Clients())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}

	// Publishing after close is a no-op.
	h.Publish("display", nil)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h, "")
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}
