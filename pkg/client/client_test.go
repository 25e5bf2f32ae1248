package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectDelaySchedule(t *testing.T) {
	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, ReconnectDelay(attempt), "attempt %d", attempt)
	}
}

// countingCache wraps a QueryCache with fetchers that count invocations.
func newCountingCache(t *testing.T) (*QueryCache, map[string]*int) {
	t.Helper()

	cache, err := NewQueryCache(16)
	require.NoError(t, err)

	counts := make(map[string]*int)
	for _, key := range []string{CacheKeyJobs, CacheKeyTasks, CacheKeyNotes, CacheKeyMe} {
		key := key
		n := new(int)
		counts[key] = n
		cache.Register(key, func(ctx context.Context) (any, error) {
			*n++
			return key, nil
		})
	}
	return cache, counts
}

func TestQueryCacheGetFetchesOnMiss(t *testing.T) {
	cache, counts := newCountingCache(t)
	ctx := context.Background()

	value, err := cache.Get(ctx, CacheKeyJobs)
	require.NoError(t, err)
	assert.Equal(t, CacheKeyJobs, value)
	assert.Equal(t, 1, *counts[CacheKeyJobs])

	// Second read is served from cache.
	_, err = cache.Get(ctx, CacheKeyJobs)
	require.NoError(t, err)
	assert.Equal(t, 1, *counts[CacheKeyJobs])

	cache.Invalidate(CacheKeyJobs)
	_, err = cache.Get(ctx, CacheKeyJobs)
	require.NoError(t, err)
	assert.Equal(t, 2, *counts[CacheKeyJobs])
}

func TestQueryCacheRefetchWithoutFetcher(t *testing.T) {
	cache, err := NewQueryCache(16)
	require.NoError(t, err)

	_, err = cache.Refetch(context.Background(), "/api/unknown")
	assert.Error(t, err)
}

func TestRouterInvalidatesByTopicPrefix(t *testing.T) {
	tests := []struct {
		event string
		key   string
	}{
		{"job:created", CacheKeyJobs},
		{"job:updated", CacheKeyJobs},
		{"job:deleted", CacheKeyJobs},
		{"task:created", CacheKeyTasks},
		{"note:deleted", CacheKeyNotes},
		{"user:updated", CacheKeyMe},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			cache, counts := newCountingCache(t)
			router := NewRouter(cache)

			router.HandleMessage(context.Background(), []byte(`{"event":"`+tt.event+`","data":{}}`))

			assert.Equal(t, 1, *counts[tt.key])
			for key, n := range counts {
				if key != tt.key {
					assert.Zero(t, *n, "unexpected refetch of %s", key)
				}
			}
		})
	}
}

func TestRouterDiscardsNonEvents(t *testing.T) {
	cache, counts := newCountingCache(t)
	router := NewRouter(cache)
	ctx := context.Background()

	router.HandleMessage(ctx, []byte(`{"type":"pong"}`))
	router.HandleMessage(ctx, []byte(`{"data":{"id":"x"}}`))
	router.HandleMessage(ctx, []byte(`{"event":"mystery:created"}`))
	router.HandleMessage(ctx, []byte(`not json`))

	for key, n := range counts {
		assert.Zero(t, *n, "unexpected refetch of %s", key)
	}
}

// fakeWSConn is a scriptable connection for subscriber tests.
type fakeWSConn struct {
	mu     sync.Mutex
	writes [][]byte
	inbox  chan []byte
	closed bool
}

func newFakeWSConn() *fakeWSConn {
	return &fakeWSConn{inbox: make(chan []byte)}
}

func (c *fakeWSConn) ReadMessage() (int, []byte, error) {
	message, ok := <-c.inbox
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, message, nil
}

func (c *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeWSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbox)
	}
	return nil
}

func (c *fakeWSConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestSubscriber(t *testing.T, dial func(url string) (wsConn, error), options ...SubscriberOption) *Subscriber {
	t.Helper()
	cache, _ := newCountingCache(t)
	s := NewSubscriber("ws://localhost/ws", NewRouter(cache), options...)
	s.dial = dial
	return s
}

func TestSubscriberResetsBackoffOnOpen(t *testing.T) {
	conn := newFakeWSConn()
	s := newTestSubscriber(t, func(url string) (wsConn, error) {
		return conn, nil
	})
	s.attempts = 7

	s.Start()
	defer s.Close()

	waitUntil(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil && s.attempts == 0
	})
}

func TestSubscriberSuppressesDuplicateConnects(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conn := newFakeWSConn()
	s := newTestSubscriber(t, func(url string) (wsConn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return conn, nil
	})

	s.Start()
	defer s.Close()

	waitUntil(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	})

	// A second Start while the channel is open must not dial again.
	s.Start()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, dials)
	mu.Unlock()
}

func TestSubscriberRoutesInboundFrames(t *testing.T) {
	conn := newFakeWSConn()
	cache, counts := newCountingCache(t)
	s := NewSubscriber("ws://localhost/ws", NewRouter(cache))
	s.dial = func(url string) (wsConn, error) { return conn, nil }

	s.Start()
	defer s.Close()

	waitUntil(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	})

	conn.inbox <- []byte(`{"event":"job:created","data":{"id":"j1"}}`)

	waitUntil(t, func() bool { return *counts[CacheKeyJobs] == 1 })
}

func TestSubscriberPingsWhileOpen(t *testing.T) {
	conn := newFakeWSConn()
	s := newTestSubscriber(t, func(url string) (wsConn, error) {
		return conn, nil
	}, WithPingInterval(10*time.Millisecond))

	s.Start()
	defer s.Close()

	waitUntil(t, func() bool { return conn.writeCount() >= 2 })

	conn.mu.Lock()
	assert.JSONEq(t, `{"type":"ping"}`, string(conn.writes[0]))
	conn.mu.Unlock()
}

func TestSubscriberGivesUpAfterMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	s := newTestSubscriber(t, func(url string) (wsConn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("refused")
	})
	s.maxAttempts = 0

	s.Start()
	defer s.Close()

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 1
	})

	// Past the attempt budget no reconnect is scheduled.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, dials)
	mu.Unlock()

	s.mu.Lock()
	assert.Nil(t, s.reconnect)
	s.mu.Unlock()
}

func TestSubscriberCloseCancelsReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	s := newTestSubscriber(t, func(url string) (wsConn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("refused")
	})

	s.Start()
	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 1
	})

	s.Close()

	// The pending reconnect timer fires after 1s at the earliest, so a
	// short wait proves nothing redials after Close.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, dials)
	mu.Unlock()

	s.mu.Lock()
	assert.False(t, s.mounted)
	assert.Nil(t, s.reconnect)
	s.mu.Unlock()
}

func TestSubscriberCloseClosesConnection(t *testing.T) {
	conn := newFakeWSConn()
	s := newTestSubscriber(t, func(url string) (wsConn, error) {
		return conn, nil
	})

	s.Start()
	waitUntil(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	})

	s.Close()

	waitUntil(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	})
}
