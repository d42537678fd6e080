package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialEvents(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	events.Clear()
	for i := 0; i < 5; i++ {
		events.Emit("info", "trial.started", "", map[string]interface{}{"trial": i})
	}

	conn := dialEvents(t, "")
	for i := 0; i < 5; i++ {
		e := readEvent(t, conn)
		if e.Name != "trial.started" {
			t.Errorf("expected 'trial.started', got '%s'", e.Name)
		}
		if e.Fields["trial"] != float64(i) {
			t.Errorf("expected trial %d, got %v", i, e.Fields["trial"])
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	events.Clear()
	conn := dialEvents(t, "")

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "section.transition", "", map[string]interface{}{"to": "main"})
	}()

	e := readEvent(t, conn)
	if e.Name != "section.transition" {
		t.Errorf("expected 'section.transition', got '%s'", e.Name)
	}
	if e.Fields["to"] != "main" {
		t.Errorf("expected to 'main', got '%v'", e.Fields["to"])
	}
}

func TestWebSocketFilter(t *testing.T) {
	events.Clear()
	events.Emit("info", "checkpoint.fired", "", nil)
	events.Emit("info", "trial.completed", "", map[string]interface{}{"trial": 0})

	conn := dialEvents(t, "?filter=trial.,run.")
	if e := readEvent(t, conn); e.Name != "trial.completed" {
		t.Errorf("expected the recent trial.completed only, got '%s'", e.Name)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "checkpoint.fired", "", nil)
		events.Emit("info", "run.completed", "", nil)
	}()
	if e := readEvent(t, conn); e.Name != "run.completed" {
		t.Errorf("expected checkpoint.fired to be filtered, got '%s'", e.Name)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	events.Clear()
	events.CloseAllSubscribers()

	conn := dialEvents(t, "")
	go func() {
		time.Sleep(20 * time.Millisecond)
		events.Emit("info", "scene.started", "", nil)
	}()
	if e := readEvent(t, conn); e.Name != "scene.started" {
		t.Errorf("expected 'scene.started', got '%s'", e.Name)
	}

	conn.Close()
	for i := 0; i < 5; i++ {
		events.Emit("info", "scene.started", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return events.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	events.Clear()
	conn1 := dialEvents(t, "")
	conn2 := dialEvents(t, "")

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "scene.completed", "", map[string]interface{}{"scene": "ask"})
	}()

	if e := readEvent(t, conn1); e.Name != "scene.completed" {
		t.Errorf("client1: expected 'scene.completed', got '%s'", e.Name)
	}
	if e := readEvent(t, conn2); e.Name != "scene.completed" {
		t.Errorf("client2: expected 'scene.completed', got '%s'", e.Name)
	}
}

func TestWebSocketSectionScopeAndResume(t *testing.T) {
	events.Clear()
	events.Emit("info", "trial.completed", "", map[string]interface{}{"section": "practice", "trial": 0})
	events.Emit("info", "trial.completed", "", map[string]interface{}{"section": "main", "trial": 0})
	events.Emit("debug", "checkpoint.fired", "", map[string]interface{}{"section": "main", "action": "end_scene"})
	events.Emit("info", "trial.completed", "", map[string]interface{}{"section": "main", "trial": 1})

	conn := dialEvents(t, "?section=main&level=info&since=2")
	e := readEvent(t, conn)
	if e.Name != "trial.completed" || e.Fields["trial"] != float64(1) || e.Seq != 4 {
		t.Errorf("expected main trial 1 at seq 4, got %s %v seq %d", e.Name, e.Fields, e.Seq)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "scene.started", "", map[string]interface{}{"section": "practice", "scene": "show"})
		events.Emit("info", "section.transition", "", map[string]interface{}{"from": "main", "to": "practice"})
	}()
	if e := readEvent(t, conn); e.Name != "section.transition" || e.Seq != 6 {
		t.Errorf("expected the transition out of main at seq 6, got %s seq %d", e.Name, e.Seq)
	}
}

func TestWebSocketRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"?level=loud", "?since=yesterday"} {
		req := httptest.NewRequest("GET", "/ws/events"+query, nil)
		w := httptest.NewRecorder()
		wsEventsHandler(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", query, w.Code)
		}
	}
}
