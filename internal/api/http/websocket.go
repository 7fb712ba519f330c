package http

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/dashboard"
	"github.com/saltfish/seatscope/go-backend/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Size of the send buffer for each client.
	sendBufferSize = 256
)

// Event types pushed to websocket clients.
const (
	// Sent after every recompute with the full state.
	EventTypeViewUpdated = "view.updated"

	EventTypePlaybackStarted  = "playback.started"
	EventTypePlaybackStopped  = "playback.stopped"
	EventTypePlaybackFinished = "playback.finished"
	EventTypeDayChanged       = "playback.day_changed"
	EventTypeDataLoading      = "data.loading"
	EventTypeDataLoaded       = "data.loaded"
	EventTypeDataLoadFailed   = "data.load_failed"
)

// lifecycleEvents maps triggers to the lifecycle event sent alongside view.updated.
var lifecycleEvents = map[dashboard.Trigger]string{
	dashboard.TriggerPlaybackStarted:  EventTypePlaybackStarted,
	dashboard.TriggerPlaybackStopped:  EventTypePlaybackStopped,
	dashboard.TriggerPlaybackFinished: EventTypePlaybackFinished,
	dashboard.TriggerTick:             EventTypeDayChanged,
	dashboard.TriggerLoadStarted:      EventTypeDataLoading,
	dashboard.TriggerLoaded:           EventTypeDataLoaded,
	dashboard.TriggerLoadFailed:       EventTypeDataLoadFailed,
}

// WSMessage represents a WebSocket message sent to clients.
type WSMessage struct {
	Type      string    `json:"type"`
	Trigger   string    `json:"trigger,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// PlaybackEventData is the payload of playback and data lifecycle events.
type PlaybackEventData struct {
	Zone     string           `json:"zone"`
	Playback PlaybackResponse `json:"playback"`
	Error    string           `json:"error,omitempty"`
}

// SubscriptionMessage represents a subscription request from a client.
type SubscriptionMessage struct {
	Action     string   `json:"action"` // "subscribe" or "unsubscribe"
	EventTypes []string `json:"event_types"`
}

type broadcastMsg struct {
	eventType string
	payload   []byte
}

// Client represents a WebSocket client connection.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Subscribed event types (if empty, receives all events).
	subscriptions map[string]bool
	mu            sync.RWMutex

	logger *zap.Logger
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMsg
	register   chan *Client
	unregister chan *Client

	// Mutex to protect clients map.
	mu sync.RWMutex

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub. Upgrades are accepted from allowedOrigins; "*"
// or an empty list accepts any origin.
func NewHub(allowedOrigins []string, m *metrics.Metrics, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		metrics:    m,
		logger:     logger,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
			h.logger.Info("Client registered", zap.Int("total_clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
			h.logger.Info("Client unregistered", zap.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case <-h.done:
			h.shutdown()
			return
		}
	}
}

// broadcastMessage sends a message to all subscribed clients. Clients whose
// buffer is full are dropped.
func (h *Hub) broadcastMessage(msg broadcastMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.isSubscribed(msg.eventType) {
			continue
		}
		select {
		case client.send <- msg.payload:
		default:
			delete(h.clients, client)
			close(client.send)
			h.logger.Warn("Client too slow, disconnecting")
		}
	}
	h.metrics.SetWSClients(len(h.clients))
}

// BroadcastEvent broadcasts an event to all connected clients.
func (h *Hub) BroadcastEvent(eventType string, trigger dashboard.Trigger, data any) {
	msg := WSMessage{
		Type:      eventType,
		Trigger:   string(trigger),
		Data:      data,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err), zap.String("event_type", eventType))
		return
	}

	select {
	case h.broadcast <- broadcastMsg{eventType: eventType, payload: payload}:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", zap.String("event_type", eventType))
	}
}

// Listen is a dashboard.Listener. It pushes the new state after every
// recompute, preceded by the lifecycle event the trigger stands for.
func (h *Hub) Listen(u dashboard.Update) {
	state := NewStateResponse(u.Snapshot)
	if eventType, ok := lifecycleEvents[u.Trigger]; ok {
		h.BroadcastEvent(eventType, u.Trigger, PlaybackEventData{
			Zone:     u.Snapshot.State.SelectedZone.String(),
			Playback: state.Playback,
			Error:    u.Snapshot.Error,
		})
	}
	h.BroadcastEvent(EventTypeViewUpdated, u.Trigger, state)
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown gracefully shuts down the hub.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.done) })
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
	h.clients = make(map[*Client]bool)
	h.metrics.SetWSClients(0)
}

// isSubscribed checks if the client is subscribed to the given event type.
func (c *Client) isSubscribed(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If no specific subscriptions, receive all events
	if len(c.subscriptions) == 0 {
		return true
	}

	return c.subscriptions[eventType]
}

// subscribe adds event types to the client's subscriptions.
func (c *Client) subscribe(eventTypes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscriptions == nil {
		c.subscriptions = make(map[string]bool)
	}
	for _, eventType := range eventTypes {
		c.subscriptions[eventType] = true
	}

	c.logger.Debug("Client subscribed to events", zap.Strings("event_types", eventTypes))
}

// unsubscribe removes event types from the client's subscriptions.
func (c *Client) unsubscribe(eventTypes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, eventType := range eventTypes {
		delete(c.subscriptions, eventType)
	}

	c.logger.Debug("Client unsubscribed from events", zap.Strings("event_types", eventTypes))
}

// leave unregisters the client unless the hub has already shut down.
func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			return
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.Debug("Ignoring non-JSON message", zap.String("message", string(message)))
			continue
		}

		switch subMsg.Action {
		case "subscribe":
			c.subscribe(subMsg.EventTypes)
		case "unsubscribe":
			c.unsubscribe(subMsg.EventTypes)
		default:
			c.logger.Debug("Unknown subscription action", zap.String("action", subMsg.Action))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
// Every message is sent as its own frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and registers the client. The current state
// is sent first so a new client never waits for the next change.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial dashboard.Snapshot) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]bool),
		logger:        h.logger.With(zap.String("remote_addr", r.RemoteAddr)),
	}

	if payload, err := json.Marshal(WSMessage{
		Type:      EventTypeViewUpdated,
		Data:      NewStateResponse(initial),
		Timestamp: time.Now(),
	}); err == nil {
		client.send <- payload
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
