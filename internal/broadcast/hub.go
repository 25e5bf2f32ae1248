// Package broadcast fans domain events out to every connected client
// over WebSocket. Delivery is best-effort: a slow or broken connection
// never blocks the others and never fails the mutation that produced
// the event.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/metrics"
)

// Ensure Hub implements domain.Broadcaster
var _ domain.Broadcaster = (*Hub)(nil)

// Config contains broadcast configuration
type Config struct {
	// Maximum number of concurrent connections, 0 means unlimited
	MaxConnections int

	// Per-message write deadline
	WriteTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxConnections: 0,
		WriteTimeout:   5 * time.Second,
	}
}

// conn is the subset of the WebSocket connection the hub needs. Tests
// substitute fakes; production uses *websocket.Conn.
type conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one registered connection with its own write lock, so a
// broadcast and a pong never interleave on the wire.
type client struct {
	id      string
	conn    conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks connected clients and broadcasts events to all of them in
// registration order.
type Hub struct {
	config  Config
	mu      sync.RWMutex
	clients map[string]*client
	order   []string
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// eventFrame is the wire format for broadcast events.
type eventFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// controlFrame covers the ping/pong exchange.
type controlFrame struct {
	Type string `json:"type"`
}

// NewHub creates a broadcast hub.
func NewHub(config Config) *Hub {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Hub{
		config:  config,
		clients: make(map[string]*client),
		logger:  log.With().Str("component", "broadcast").Logger(),
		metrics: metrics.GetMetrics(),
	}
}

// RegisterHandler mounts the WebSocket endpoint on the Fiber app.
func (h *Hub) RegisterHandler(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		// The token is accepted for future per-user filtering but not
		// verified: every event goes to every connection.
		token := c.Query("token", "")
		h.logger.Debug().Bool("has_token", token != "").Msg("WebSocket client connecting")
		h.serve(c)
	}))
}

// serve registers a connection and runs its read loop until it breaks.
func (h *Hub) serve(c conn) {
	cl := h.add(c)
	if cl == nil {
		c.Close()
		return
	}
	defer h.remove(cl.id)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug().Err(err).Str("client_id", cl.id).Msg("WebSocket read error")
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleMessage(cl, message)
	}
}

// handleMessage answers pings and drops everything else.
func (h *Hub) handleMessage(cl *client, message []byte) {
	var frame controlFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		h.logger.Debug().Err(err).Str("client_id", cl.id).Msg("Malformed client message dropped")
		return
	}

	switch frame.Type {
	case "ping":
		if err := cl.write([]byte(`{"type":"pong"}`)); err != nil {
			h.logger.Debug().Err(err).Str("client_id", cl.id).Msg("Failed to answer ping")
		}
	default:
		h.logger.Debug().Str("client_id", cl.id).Str("type", frame.Type).Msg("Unknown client message")
	}
}

// add registers a connection, enforcing the connection limit.
func (h *Hub) add(c conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.MaxConnections > 0 && len(h.clients) >= h.config.MaxConnections {
		h.logger.Warn().Int("max", h.config.MaxConnections).Msg("Connection limit reached, rejecting client")
		return nil
	}

	cl := &client{id: uuid.NewString(), conn: c, timeout: h.config.WriteTimeout}
	h.clients[cl.id] = cl
	h.order = append(h.order, cl.id)
	h.metrics.BroadcastConnectionsActive.Inc()
	h.logger.Debug().Str("client_id", cl.id).Int("clients", len(h.clients)).Msg("Client connected")
	return cl
}

// remove unregisters a connection and closes it.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cl, exists := h.clients[id]
	if !exists {
		return
	}
	delete(h.clients, id)
	for i, cid := range h.order {
		if cid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	cl.conn.Close()
	h.metrics.BroadcastConnectionsActive.Dec()
	h.logger.Debug().Str("client_id", id).Int("clients", len(h.clients)).Msg("Client removed")
}

// Broadcast sends the event to every connected client in registration
// order. A failed write is logged and counted but does not stop the
// fan-out or remove the client, its own read loop will notice a truly
// dead connection.
func (h *Hub) Broadcast(topic string, payload any) {
	start := time.Now()

	data, err := json.Marshal(eventFrame{Event: topic, Data: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.order))
	for _, id := range h.order {
		if cl, ok := h.clients[id]; ok {
			targets = append(targets, cl)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, cl := range targets {
		if err := cl.write(data); err != nil {
			h.metrics.BroadcastSendErrorsTotal.Inc()
			h.logger.Debug().Err(err).Str("client_id", cl.id).Str("topic", topic).Msg("Broadcast write failed")
			continue
		}
		sent++
	}

	h.metrics.BroadcastEventsTotal.WithLabelValues(topicDomain(topic)).Inc()
	h.metrics.BroadcastFanoutDuration.Observe(time.Since(start).Seconds())
	h.logger.Debug().Str("topic", topic).Int("sent", sent).Int("clients", len(targets)).Msg("Event broadcast")
}

// topicDomain returns the record domain of a topic like "job:created".
func topicDomain(topic string) string {
	for i := 0; i < len(topic); i++ {
		if topic[i] == ':' {
			return topic[:i]
		}
	}
	return topic
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every client connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Info().Int("clients", len(h.clients)).Msg("Shutting down broadcast hub")
	for id, cl := range h.clients {
		cl.conn.Close()
		delete(h.clients, id)
		h.metrics.BroadcastConnectionsActive.Dec()
	}
	h.order = nil
	return nil
}
