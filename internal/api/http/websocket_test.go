package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/dashboard"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

func newTestClient(hub *Hub) *Client {
	return &Client{
		hub:           hub,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]bool),
		logger:        zap.NewNop(),
	}
}

func receive(t *testing.T, client *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		return wsMsg
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
		return WSMessage{}
	}
}

func TestHub_ClientRegistration(t *testing.T) {
	hub := NewHub(nil, nil, zap.NewNop())
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient(hub)
	hub.register <- client

	// Give it time to process
	time.Sleep(10 * time.Millisecond)
	if count := hub.GetClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("Expected 0 clients, got %d", count)
	}
}

func TestHub_BroadcastEvent(t *testing.T) {
	hub := NewHub(nil, nil, zap.NewNop())
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastEvent(EventTypePlaybackStarted, dashboard.TriggerPlaybackStarted, map[string]any{"day": 30})

	wsMsg := receive(t, client)
	if wsMsg.Type != EventTypePlaybackStarted {
		t.Errorf("Expected event type %s, got %s", EventTypePlaybackStarted, wsMsg.Type)
	}
	if wsMsg.Trigger != string(dashboard.TriggerPlaybackStarted) {
		t.Errorf("Expected trigger %s, got %s", dashboard.TriggerPlaybackStarted, wsMsg.Trigger)
	}
	data, ok := wsMsg.Data.(map[string]any)
	if !ok {
		t.Fatal("Data is not a map")
	}
	if data["day"] != float64(30) {
		t.Errorf("Expected day=30, got %v", data["day"])
	}
}

func TestHub_ListenSendsLifecycleThenState(t *testing.T) {
	hub := NewHub(nil, nil, zap.NewNop())
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	snap := dashboard.Snapshot{
		Version: 7,
		State:   domain.ViewState{SelectedZone: domain.ZoneStandard, SelectedDay: 20},
		Playback: dashboard.PlaybackStatus{
			State:    domain.PlaybackPlaying,
			Index:    1,
			Day:      20,
			Interval: time.Second,
		},
	}
	hub.Listen(dashboard.Update{Trigger: dashboard.TriggerTick, Snapshot: snap})

	first := receive(t, client)
	if first.Type != EventTypeDayChanged {
		t.Fatalf("Expected %s first, got %s", EventTypeDayChanged, first.Type)
	}
	second := receive(t, client)
	if second.Type != EventTypeViewUpdated {
		t.Fatalf("Expected %s second, got %s", EventTypeViewUpdated, second.Type)
	}
	state, _ := second.Data.(map[string]any)
	if state["version"] != float64(7) {
		t.Errorf("Expected version 7, got %v", state["version"])
	}

	// Triggers without a lifecycle event only push the state.
	hub.Listen(dashboard.Update{Trigger: dashboard.TriggerZone, Snapshot: snap})
	if msg := receive(t, client); msg.Type != EventTypeViewUpdated {
		t.Errorf("Expected %s, got %s", EventTypeViewUpdated, msg.Type)
	}
}

func TestClient_Subscriptions(t *testing.T) {
	hub := NewHub(nil, nil, zap.NewNop())
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient(hub)
	client.subscribe([]string{EventTypePlaybackStopped, EventTypePlaybackFinished})
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if !client.isSubscribed(EventTypePlaybackStopped) {
		t.Error("Client should be subscribed to playback.stopped")
	}
	if client.isSubscribed(EventTypeViewUpdated) {
		t.Error("Client should not be subscribed to view.updated")
	}

	hub.BroadcastEvent(EventTypeViewUpdated, dashboard.TriggerZone, map[string]string{})
	hub.BroadcastEvent(EventTypePlaybackStopped, dashboard.TriggerPlaybackStopped, map[string]string{})

	if msg := receive(t, client); msg.Type != EventTypePlaybackStopped {
		t.Errorf("Expected event type %s, got %s", EventTypePlaybackStopped, msg.Type)
	}

	client.unsubscribe([]string{EventTypePlaybackStopped, EventTypePlaybackFinished})
	if !client.isSubscribed(EventTypeViewUpdated) {
		t.Error("Client with no subscriptions should receive all events")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://evil.example.com", true},
		{"empty list", nil, "https://any.example.com", true},
		{"listed", []string{"https://dash.example.com"}, "https://dash.example.com", true},
		{"not listed", []string{"https://dash.example.com"}, "https://evil.example.com", false},
		{"no origin header", []string{"https://dash.example.com"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestServeWS_SendsInitialState(t *testing.T) {
	hub := NewHub(nil, nil, zap.NewNop())
	go hub.Run()
	defer hub.Shutdown()

	snap := dashboard.Snapshot{Version: 3, State: domain.ViewState{SelectedZone: domain.ZonePremium}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, snap)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if msg.Type != EventTypeViewUpdated {
		t.Errorf("Expected %s, got %s", EventTypeViewUpdated, msg.Type)
	}
	state, _ := msg.Data.(map[string]any)
	if state["version"] != float64(3) {
		t.Errorf("Expected version 3, got %v", state["version"])
	}
}
