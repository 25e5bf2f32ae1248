package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultPingInterval = 20 * time.Second
	maxReconnectDelay   = 30 * time.Second
	maxReconnectTries   = 10
)

// ReconnectDelay returns the backoff before reconnect attempt number
// attempt (zero-based): 1s, 2s, 4s, ... capped at 30s.
func ReconnectDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return maxReconnectDelay
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// wsConn is the subset of the WebSocket connection the subscriber
// needs, substituted by fakes in tests.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Subscriber maintains one live channel to the server, pings it while
// open, recovers from drops with exponential backoff, and feeds every
// inbound frame to the router.
type Subscriber struct {
	url          string
	router       *Router
	dial         func(url string) (wsConn, error)
	pingInterval time.Duration
	maxAttempts  int
	logger       zerolog.Logger

	mu        sync.Mutex
	mounted   bool
	dialing   bool
	conn      wsConn
	attempts  int
	reconnect *time.Timer
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithPingInterval overrides the liveness ping interval.
func WithPingInterval(interval time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.pingInterval = interval
	}
}

// NewSubscriber creates a subscriber for the given ws:// or wss:// URL.
func NewSubscriber(wsURL string, router *Router, options ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		url:          wsURL,
		router:       router,
		pingInterval: defaultPingInterval,
		maxAttempts:  maxReconnectTries,
		logger:       log.With().Str("component", "subscriber").Logger(),
		dial: func(u string) (wsConn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(u, nil)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Start opens the channel and keeps it alive until Close.
func (s *Subscriber) Start() {
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()
	go s.connect()
}

// Close tears the subscriber down: no further reconnects are scheduled,
// any pending reconnect timer is cancelled, and the open connection is
// closed so its read and ping loops exit.
func (s *Subscriber) Close() {
	s.mu.Lock()
	s.mounted = false
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Subscriber) connect() {
	s.mu.Lock()
	// A live or in-flight connection suppresses the duplicate connect.
	if !s.mounted || s.conn != nil || s.dialing {
		s.mu.Unlock()
		return
	}
	s.dialing = true
	s.mu.Unlock()

	conn, err := s.dial(s.url)
	if err != nil {
		s.mu.Lock()
		s.dialing = false
		s.mu.Unlock()
		s.logger.Debug().Err(err).Msg("Connect failed")
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	s.dialing = false
	if !s.mounted {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	// A successful open resets the backoff.
	s.attempts = 0
	s.mu.Unlock()

	s.logger.Debug().Str("url", s.url).Msg("Channel open")

	stop := make(chan struct{})
	go s.pingLoop(conn, stop)
	s.readLoop(conn, stop)
}

// readLoop dispatches inbound frames until the connection breaks, then
// hands off to the reconnect scheduler.
func (s *Subscriber) readLoop(conn wsConn, stop chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug().Err(err).Msg("Channel closed")
			break
		}
		s.router.HandleMessage(context.Background(), message)
	}

	close(stop)
	conn.Close()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()

	s.scheduleReconnect()
}

// pingLoop sends a liveness ping while the connection is open.
func (s *Subscriber) pingLoop(conn wsConn, stop chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (s *Subscriber) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return
	}
	if s.attempts >= s.maxAttempts {
		s.logger.Warn().Int("attempts", s.attempts).Msg("Giving up on reconnecting")
		return
	}

	delay := ReconnectDelay(s.attempts)
	s.attempts++
	s.logger.Debug().Dur("delay", delay).Int("attempt", s.attempts).Msg("Reconnect scheduled")
	s.reconnect = time.AfterFunc(delay, s.connect)
}
