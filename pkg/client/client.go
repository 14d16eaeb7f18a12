// Package client is a reconnecting websocket consumer for the notification
// stream: it dials, replays the connect handshake, deduplicates by
// notification id and acks everything it surfaces. Intended for Go-side
// consumers and as the reference client behavior.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/gorilla/websocket"
	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/domain"
)

// ErrGaveUp is surfaced once a reconnect cycle exhausts its dial attempts;
// the caller owns showing a persistent-error state.
var ErrGaveUp = errors.New("reconnect attempts exhausted")

type Config struct {
	URL       string
	AuthToken string
	DeviceID  string
	// MaxAttempts bounds consecutive failed dials within one reconnect
	// cycle. Every established session starts a fresh cycle, so a
	// long-lived client is never penalized for ordinary disconnects.
	MaxAttempts    int
	ReconnectDelay time.Duration
	MaxDelay       time.Duration
	MaxJitter      time.Duration
	DedupSize      int
}

type Client struct {
	cfg Config

	mu     sync.Mutex
	conn   *websocket.Conn
	dedup  *dedupCache
	notifs chan *domain.Notification
	unread chan int
}

func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxJitter <= 0 {
		cfg.MaxJitter = 2 * time.Second
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 1024
	}
	return &Client{
		cfg:    cfg,
		dedup:  newDedupCache(cfg.DedupSize),
		notifs: make(chan *domain.Notification, 64),
		unread: make(chan int, 8),
	}
}

// Notifications is the deduplicated stream. Closed when Run returns.
func (c *Client) Notifications() <-chan *domain.Notification {
	return c.notifs
}

// UnreadCounts streams server-pushed unread counters.
func (c *Client) UnreadCounts() <-chan int {
	return c.unread
}

// Run connects and keeps the session alive until ctx ends or one reconnect
// cycle exhausts its dial budget.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.notifs)
	defer close(c.unread)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zlog.Logger.Error().Err(err).Int("attempts", c.cfg.MaxAttempts).Msg("Giving up on reconnect")
			return ErrGaveUp
		}

		err = c.consume(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zlog.Logger.Warn().Err(err).Msg("Connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// dial establishes a connection and replays the connect handshake, retrying
// failed attempts with capped backoff and jitter.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.Do(
		func() error {
			dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
			var err error
			conn, _, err = dialer.DialContext(ctx, c.cfg.URL, nil)
			if err != nil {
				return err
			}
			connect := &domain.ClientMessage{
				Type:      domain.MsgConnect,
				AuthToken: c.cfg.AuthToken,
				DeviceID:  c.cfg.DeviceID,
			}
			if err := conn.WriteJSON(connect); err != nil {
				conn.Close()
				return err
			}
			return nil
		},
		retry.Attempts(uint(c.cfg.MaxAttempts)),
		retry.Delay(c.cfg.ReconnectDelay),
		retry.MaxDelay(c.cfg.MaxDelay),
		retry.MaxJitter(c.cfg.MaxJitter),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			zlog.Logger.Warn().Err(err).Uint("attempt", n).Msg("Dial failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg domain.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			zlog.Logger.Warn().Err(err).Msg("Skipping malformed server message")
			continue
		}
		c.handle(&msg)
	}
}

func (c *Client) handle(msg *domain.ServerMessage) {
	switch msg.Type {
	case domain.MsgConnected:
		// the backlog closes the offline gap; the live stream may replay
		// some of it, which the dedup cache absorbs
		for _, n := range msg.Backlog {
			c.surface(n)
		}
	case domain.MsgNotification:
		if msg.Notification != nil {
			c.surface(msg.Notification)
		}
	case domain.MsgUnreadCount:
		if msg.UnreadCount != nil {
			select {
			case c.unread <- *msg.UnreadCount:
			default:
			}
		}
	case domain.MsgError:
		zlog.Logger.Warn().Str("error", msg.Error).Msg("Server reported error")
	}
}

func (c *Client) surface(n *domain.Notification) {
	// ack regardless of dedup: duplicates mean the server still thinks
	// this delivery is owed
	c.sendAck(n.ID)
	if c.dedup.Seen(n.ID) {
		return
	}
	select {
	case c.notifs <- n:
	default:
		zlog.Logger.Warn().Str("id", n.ID).Msg("Notification buffer full, dropping")
	}
}

func (c *Client) sendAck(notificationID string) {
	c.send(&domain.ClientMessage{Type: domain.MsgAck, NotificationID: notificationID})
}

// MarkRead reports a read to the server; safe to repeat.
func (c *Client) MarkRead(notificationID string) {
	c.send(&domain.ClientMessage{Type: domain.MsgMarkRead, NotificationID: notificationID})
}

func (c *Client) MarkAllRead() {
	c.send(&domain.ClientMessage{Type: domain.MsgMarkAllRead})
}

func (c *Client) Delete(notificationID string) {
	c.send(&domain.ClientMessage{Type: domain.MsgDelete, NotificationID: notificationID})
}

func (c *Client) ClearAll() {
	c.send(&domain.ClientMessage{Type: domain.MsgClearAll})
}

func (c *Client) send(msg *domain.ClientMessage) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(msg); err != nil {
		// connection is going down; the server redelivers unacked items
		zlog.Logger.Warn().Err(err).Str("type", msg.Type).Msg("Client send failed")
	}
}
