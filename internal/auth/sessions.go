// Package auth holds the session store, password hashing and the
// one-time code helpers used by the account endpoints.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config contains auth configuration
type Config struct {
	// Name of the session cookie
	SessionCookie string

	// Session lifetime
	SessionTTL time.Duration

	// One-time code lifetime
	OTPExpiry time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		SessionCookie: "dailytrack_session",
		SessionTTL:    72 * time.Hour,
		OTPExpiry:     5 * time.Minute,
	}
}

type session struct {
	userID    string
	expiresAt time.Time
}

// Sessions is an in-memory session store mapping opaque tokens to user
// IDs. Sessions expire after the configured TTL.
type Sessions struct {
	config   Config
	mu       sync.RWMutex
	sessions map[string]session
	logger   zerolog.Logger
}

// NewSessions creates a session store.
func NewSessions(config Config) *Sessions {
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultConfig().SessionTTL
	}
	if config.SessionCookie == "" {
		config.SessionCookie = DefaultConfig().SessionCookie
	}
	if config.OTPExpiry <= 0 {
		config.OTPExpiry = DefaultConfig().OTPExpiry
	}
	return &Sessions{
		config:   config,
		sessions: make(map[string]session),
		logger:   log.With().Str("component", "auth").Logger(),
	}
}

// Config returns the active configuration.
func (s *Sessions) Config() Config {
	return s.config
}

// Create issues a new session token for the user.
func (s *Sessions) Create(userID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = session{
		userID:    userID,
		expiresAt: time.Now().Add(s.config.SessionTTL),
	}
	s.mu.Unlock()
	return token
}

// Resolve returns the user ID for a token, or false if the token is
// unknown or expired.
func (s *Sessions) Resolve(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(sess.expiresAt) {
		s.Destroy(token)
		return "", false
	}
	return sess.userID, true
}

// Destroy removes a session token.
func (s *Sessions) Destroy(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// DestroyUser removes every session belonging to the user, used when
// the account is deleted or the password changes.
func (s *Sessions) DestroyUser(userID string) {
	s.mu.Lock()
	for token, sess := range s.sessions {
		if sess.userID == userID {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()
}

// Start runs the expired session sweep until the context is cancelled.
func (s *Sessions) Start(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Sessions) sweep() {
	now := time.Now()
	s.mu.Lock()
	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Expired sessions swept")
	}
}
