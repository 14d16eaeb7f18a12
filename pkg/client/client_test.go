package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-notifier/internal/domain"
)

func TestDedupCacheSeen(t *testing.T) {
	d := newDedupCache(3)

	assert.False(t, d.Seen("a"))
	assert.True(t, d.Seen("a"))
	assert.False(t, d.Seen("b"))
	assert.False(t, d.Seen("c"))
	assert.True(t, d.Seen("b"))
}

func TestDedupCacheEvictsOldest(t *testing.T) {
	d := newDedupCache(2)

	d.Seen("a")
	d.Seen("b")
	d.Seen("c") // evicts a
	assert.False(t, d.Seen("a"), "oldest entry evicted")
	assert.True(t, d.Seen("c"))
}

func TestClientDefaults(t *testing.T) {
	c := New(Config{URL: "ws://localhost/ws", AuthToken: "alice", DeviceID: "phone"})
	assert.Equal(t, 10, c.cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, c.cfg.ReconnectDelay)
	assert.Equal(t, 30*time.Second, c.cfg.MaxDelay)
	assert.Equal(t, 1024, c.cfg.DedupSize)
}

func TestClientSuppressesReplays(t *testing.T) {
	c := New(Config{URL: "ws://localhost/ws", AuthToken: "alice", DeviceID: "phone"})

	assert.False(t, c.dedup.Seen("n1"), "first sighting surfaces")
	assert.True(t, c.dedup.Seen("n1"), "replay suppressed")
}

// A client that keeps losing established sessions must reconnect
// indefinitely: the dial budget counts consecutive failed dials, not
// disconnects over the process lifetime.
func TestRunReconnectsAfterLostSessions(t *testing.T) {
	upgrader := websocket.Upgrader{}
	sessions := make(chan struct{}, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var msg domain.ClientMessage
		if err := conn.ReadJSON(&msg); err == nil && msg.Type == domain.MsgConnect {
			sessions <- struct{}{}
		}
		conn.Close()
	}))
	defer srv.Close()

	c := New(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		AuthToken:      "alice",
		DeviceID:       "phone",
		MaxAttempts:    3,
		ReconnectDelay: 5 * time.Millisecond,
		MaxDelay:       20 * time.Millisecond,
		MaxJitter:      time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-sessions:
		case <-time.After(5 * time.Second):
			t.Fatalf("session %d never established", i+1)
		}
	}
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrGaveUp, "successful sessions must reset the dial budget")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunGivesUpWhenNothingListens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := New(Config{
		URL:            "ws://" + addr + "/ws",
		AuthToken:      "alice",
		DeviceID:       "phone",
		MaxAttempts:    2,
		ReconnectDelay: time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		MaxJitter:      time.Millisecond,
	})

	err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrGaveUp)
}
