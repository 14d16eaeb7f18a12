package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/domain"
	"realtime-notifier/internal/registry"
)

type State string

const (
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateLive          State = "live"
	StateDisconnected  State = "disconnected"
)

const (
	writeWait      = 10 * time.Second
	readLimit      = 4096
	sendBufferSize = 64
)

// Session is the per-connection state machine: Connecting -> Authenticated
// -> Live -> Disconnected. One session per physical websocket.
type Session struct {
	conn    *websocket.Conn
	hub     *Hub
	service NotificationService
	reg     registry.Registry

	instanceID  string
	recipientID string
	deviceID    string
	state       State

	heartbeatInterval time.Duration
	pongWait          time.Duration

	send chan []byte
	done chan struct{}
}

func newSession(conn *websocket.Conn, hub *Hub, service NotificationService, reg registry.Registry, instanceID string, heartbeatInterval time.Duration) *Session {
	return &Session{
		conn:              conn,
		hub:               hub,
		service:           service,
		reg:               reg,
		instanceID:        instanceID,
		state:             StateConnecting,
		heartbeatInterval: heartbeatInterval,
		pongWait:          2 * heartbeatInterval,
		send:              make(chan []byte, sendBufferSize),
		done:              make(chan struct{}),
	}
}

// run owns the connection from after the upgrade until close.
func (s *Session) run(ctx context.Context, auth AuthFunc) {
	defer s.close(ctx)

	if err := s.handshake(ctx, auth); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Session handshake failed")
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteJSON(&domain.ServerMessage{Type: domain.MsgError, Error: err.Error()})
		return
	}

	go s.writePump(ctx)
	s.readPump(ctx)
}

// handshake performs the Connecting -> Authenticated -> Live transitions:
// verify the token, queue the backlog, join the hub, then register so the
// worker starts addressing this instance.
func (s *Session) handshake(ctx context.Context, auth AuthFunc) error {
	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(s.pongWait))

	var connectMsg domain.ClientMessage
	if err := s.conn.ReadJSON(&connectMsg); err != nil {
		return err
	}
	if connectMsg.Type != domain.MsgConnect || connectMsg.DeviceID == "" {
		return domain.ErrMalformed
	}
	recipientID, err := auth(ctx, connectMsg.AuthToken)
	if err != nil {
		return domain.ErrUnauthorized
	}
	s.recipientID = recipientID
	s.deviceID = connectMsg.DeviceID
	s.state = StateAuthenticated

	// backlog first: it must be on the wire before anything the live
	// stream produces for this connection
	backlog, err := s.service.Backlog(ctx, s.recipientID)
	if err != nil {
		return err
	}
	connected := &domain.ServerMessage{Type: domain.MsgConnected, Backlog: backlog}
	payload, err := connected.Encode()
	if err != nil {
		return err
	}
	s.enqueue(payload)

	count, err := s.service.UnreadCount(ctx, s.recipientID)
	if err == nil {
		countMsg := &domain.ServerMessage{Type: domain.MsgUnreadCount, UnreadCount: &count}
		if p, err := countMsg.Encode(); err == nil {
			s.enqueue(p)
		}
	}

	s.hub.add(s)
	if err := s.reg.Register(ctx, s.recipientID, s.deviceID, s.instanceID); err != nil {
		s.hub.remove(s)
		return err
	}
	s.state = StateLive
	zlog.Logger.Info().
		Str("recipient", s.recipientID).
		Str("device", s.deviceID).
		Int("backlog", len(backlog)).
		Msg("Session live")
	return nil
}

// readPump handles everything the client sends while Live. The loop is the
// per-connection serialization point; cross-device ordering comes from the
// usecase's per-recipient locks.
func (s *Session) readPump(ctx context.Context) {
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Logger.Warn().Err(err).Str("recipient", s.recipientID).Msg("Session read error")
			}
			return
		}
		var msg domain.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.writeError("malformed message")
			continue
		}
		if err := s.dispatch(ctx, &msg); err != nil {
			zlog.Logger.Warn().Err(err).
				Str("recipient", s.recipientID).
				Str("type", msg.Type).
				Msg("Client message failed")
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msg *domain.ClientMessage) error {
	switch msg.Type {
	case domain.MsgAck:
		return s.service.Ack(ctx, s.recipientID, msg.NotificationID)
	case domain.MsgMarkRead:
		return s.service.MarkRead(ctx, s.recipientID, msg.NotificationID)
	case domain.MsgMarkAllRead:
		return s.service.MarkAllRead(ctx, s.recipientID)
	case domain.MsgDelete:
		return s.service.Delete(ctx, s.recipientID, msg.NotificationID)
	case domain.MsgClearAll:
		return s.service.ClearAll(ctx, s.recipientID)
	default:
		s.writeError("unknown message type")
		return nil
	}
}

// writePump serializes outbound writes and doubles as the heartbeat: every
// ping also refreshes the registry TTL so the entry tracks socket liveness.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if err := s.reg.Heartbeat(ctx, s.recipientID, s.deviceID); err != nil {
				if err == domain.ErrNotFound {
					// entry expired under us; re-register
					s.reg.Register(ctx, s.recipientID, s.deviceID, s.instanceID)
				} else {
					zlog.Logger.Warn().Err(err).Str("recipient", s.recipientID).Msg("Registry heartbeat failed")
				}
			}
		}
	}
}

func (s *Session) enqueue(payload []byte) {
	select {
	case s.send <- payload:
	default:
		// slow consumer: drop and let the redelivery sweep recover
		zlog.Logger.Warn().Str("recipient", s.recipientID).Msg("Session send buffer full, dropping message")
	}
}

func (s *Session) writeError(text string) {
	msg := &domain.ServerMessage{Type: domain.MsgError, Error: text}
	if payload, err := msg.Encode(); err == nil {
		s.enqueue(payload)
	}
}

func (s *Session) close(ctx context.Context) {
	if s.state == StateDisconnected {
		return
	}
	prev := s.state
	s.state = StateDisconnected
	close(s.done)
	s.hub.remove(s)
	if prev == StateLive {
		if err := s.reg.Unregister(ctx, s.recipientID, s.deviceID); err != nil {
			zlog.Logger.Warn().Err(err).Str("recipient", s.recipientID).Msg("Registry unregister failed")
		}
	}
	s.conn.Close()
	zlog.Logger.Info().Str("recipient", s.recipientID).Str("device", s.deviceID).Msg("Session closed")
}
