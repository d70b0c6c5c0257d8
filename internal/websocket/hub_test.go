package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())

	c := &Client{send: make(chan []byte, 16)}
	hub.Register(c)
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}

	hub.Unregister(c)
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}

	// Unregistering twice must not panic or double-close.
	hub.Unregister(c)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(testLogger())

	c1 := &Client{send: make(chan []byte, 16)}
	c2 := &Client{send: make(chan []byte, 16)}
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(NewMessage("template", "created", 42, nil))

	for i, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if msg.Type != "update" || msg.Entity != "template" || msg.Action != "created" || msg.ID != 42 {
				t.Errorf("client %d: got %+v", i, msg)
			}
		default:
			t.Errorf("client %d: no message received", i)
		}
	}
}

func TestHubBroadcastSkipsFullClient(t *testing.T) {
	hub := NewHub(testLogger())

	full := &Client{send: make(chan []byte)} // unbuffered, nothing draining
	ok := &Client{send: make(chan []byte, 16)}
	hub.Register(full)
	hub.Register(ok)

	// Must not block even though one client can't accept.
	hub.Broadcast(NewMessage("execution", "recorded", 1, nil))

	select {
	case <-ok.send:
	default:
		t.Error("healthy client should still receive the broadcast")
	}
}

func TestMessageExtra(t *testing.T) {
	msg := NewMessage("execution", "recorded", 7, map[string]any{"outcome": "success"})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Extra["outcome"] != "success" {
		t.Errorf("extra = %v", decoded.Extra)
	}
}
