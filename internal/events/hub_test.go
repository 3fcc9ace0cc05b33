package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/automend/automend/internal/database"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	mux := http.NewServeMux()
	hub.SetupRoutes(mux)
	server := httptest.NewServer(mux)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		server.Close()
		t.Fatalf("failed to dial hub: %v", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", want, hub.SubscriberCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_DeliversExecutionEvents(t *testing.T) {
	hub := NewHub()
	conn, cleanup := dialHub(t, hub)
	defer cleanup()
	waitForSubscribers(t, hub, 1)

	execution := &database.ActionExecution{
		UUID:   "exec-1",
		Status: database.ExecutionStatusCompleted,
	}
	hub.PublishExecution("completed", execution, "notify")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}

	var event ExecutionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Type != "completed" || event.ExecutionUUID != "exec-1" || event.ActionType != "notify" {
		t.Errorf("unexpected event %+v", event)
	}
	if event.Status != database.ExecutionStatusCompleted {
		t.Errorf("expected completed status, got %s", event.Status)
	}
}

func TestHub_DisconnectedClientIsDropped(t *testing.T) {
	hub := NewHub()
	conn, cleanup := dialHub(t, hub)
	defer cleanup()
	waitForSubscribers(t, hub, 1)

	conn.Close()
	waitForSubscribers(t, hub, 0)

	// Publishing to an empty hub does not block or panic
	hub.PublishExecution("created", &database.ActionExecution{UUID: "exec-2"}, "notify")
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.PublishExecution("created", &database.ActionExecution{UUID: "exec-1"}, "notify")
	if hub.SubscriberCount() != 0 {
		t.Errorf("expected no subscribers, got %d", hub.SubscriberCount())
	}
}
