// Package ws relays frames published on the signal bus to WebSocket clients.
// Clients choose channels with subscribe/unsubscribe messages; a trailing
// "*" subscribes to every channel with that prefix.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// DefaultChannels are the bus patterns the hub relays.
var DefaultChannels = []string{
	domain.SnapshotChannel("*"),
	domain.ArbChannel("*"),
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change subscriptions,
// either {"action":"subscribe","channels":[...]} or
// {"subscribe":[...],"unsubscribe":[...]}.
type subscribeMsg struct {
	Action      string   `json:"action"`
	Channels    []string `json:"channels"`
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

// envelope wraps a relayed bus payload with its concrete channel.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages the connected clients and routes bus messages to those
// subscribed to the message's channel.
type Hub struct {
	clients   map[*client]bool
	closed    bool
	broadcast chan domain.Message
	bus       domain.SignalBus
	channels  []string
	upgrader  websocket.Upgrader
	mu        sync.RWMutex
	logger    *slog.Logger
	mode      string
	startedAt time.Time
}

// Config captures the runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// Channels overrides DefaultChannels.
	Channels []string
	// CheckOrigin validates the upgrade Origin; nil accepts every origin.
	CheckOrigin func(*http.Request) bool
}

// NewHub creates a hub relaying bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		clients:   make(map[*client]bool),
		broadcast: make(chan domain.Message, 256),
		bus:       bus,
		channels:  channels,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: startedAt,
	}
}

// Run subscribes to the bus and routes messages until ctx is cancelled, at
// which point every client is disconnected.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range h.channels {
		go h.subscribeToChannel(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.closed = true
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.StreamSessions.WithLabelValues("hub").Set(0)
			return nil

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// addClient registers c. It returns false once the hub has stopped.
func (h *Hub) addClient(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.StreamSessions.WithLabelValues("hub").Inc()
	h.logger.Info("client connected", slog.Int("total_clients", total))
	return true
}

// removeClient unregisters c and closes its send buffer. Safe to call after
// Run has already dropped c.
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.StreamSessions.WithLabelValues("hub").Dec()
		h.logger.Info("client disconnected", slog.Int("total_clients", total))
	}
}

// deliver sends msg to every client subscribed to its channel. Slow clients
// whose buffer is full miss the message.
func (h *Hub) deliver(msg domain.Message) {
	data, err := json.Marshal(envelope{Type: "message", Channel: msg.Channel, Payload: payloadJSON(msg.Payload)})
	if err != nil {
		h.logger.Warn("encode envelope failed", slog.String("channel", msg.Channel), slog.String("error", err.Error()))
		return
	}

	frames := metrics.StreamFrames.WithLabelValues("hub")
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(msg.Channel) {
			continue
		}
		select {
		case c.send <- data:
			frames.Inc()
		default:
			h.logger.Warn("dropping message for slow client", slog.String("channel", msg.Channel))
		}
	}
}

// payloadJSON embeds p verbatim when it is valid JSON and as a JSON string
// otherwise.
func payloadJSON(p []byte) json.RawMessage {
	if json.Valid(p) {
		return p
	}
	quoted, _ := json.Marshal(string(p))
	return quoted
}

// subscribeToChannel forwards one bus subscription into the hub.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				h.logger.Warn("channel subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. New clients start
// subscribed to every relayed channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, ch := range h.channels {
		c.subs[ch] = true
	}

	if !h.addClient(c) {
		_ = conn.Close()
		return
	}
	c.sendInitialStatus()

	go c.writePump()
	go c.readPump()
}

// readPump applies subscription changes sent by the client and keeps the
// read deadline alive on pongs.
func (c *client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) != nil {
			continue
		}
		if sub.Action != "" || len(sub.Channels) > 0 || len(sub.Subscribe) > 0 || len(sub.Unsubscribe) > 0 {
			c.handleSubscription(sub)
			c.sendSubscriptions()
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range msg.Subscribe {
		c.subs[ch] = true
	}
	for _, ch := range msg.Unsubscribe {
		delete(c.subs, ch)
	}

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendSubscriptions acknowledges a subscription change with the full list.
func (c *client) sendSubscriptions() {
	c.mu.RLock()
	subs := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.RUnlock()

	slices.Sort(subs)
	payload, _ := json.Marshal(map[string]any{"channels": subs})
	c.enqueue(envelope{Type: "subscriptions", Payload: payload})
}

// sendInitialStatus tells a new client the hub is live before any market
// frame flows.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	payload, _ := json.Marshal(map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
		"channels":       c.hub.channels,
	})
	c.enqueue(envelope{Type: "hub_status", Payload: payload})
}

// enqueue queues a control envelope, dropping it if the buffer is full.
// The send is done under the hub lock so it cannot race with Run closing
// the channel.
func (c *client) enqueue(e envelope) {
	msg, err := json.Marshal(e)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed checks whether the client is subscribed to the given channel.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return matchAny(c.subs, channel)
}

// matchAny reports whether channel equals a subscription or extends a
// subscription ending in "*".
func matchAny(subs map[string]bool, channel string) bool {
	if subs[channel] {
		return true
	}
	for sub := range subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames, with periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
