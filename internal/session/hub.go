package session

import (
	"context"
	"sync"

	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/domain"
	"realtime-notifier/internal/fanout"
)

// Hub routes fanout envelopes addressed to this server instance to the
// local sessions that want them. One hub per process.
type Hub struct {
	instanceID string
	fanout     fanout.Broadcaster

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{} // recipientID -> sessions
}

func NewHub(instanceID string, fan fanout.Broadcaster) *Hub {
	return &Hub{
		instanceID: instanceID,
		fanout:     fan,
		sessions:   make(map[string]map[*Session]struct{}),
	}
}

// Run consumes this instance's fanout channel until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	envelopes, err := h.fanout.Subscribe(ctx, h.instanceID)
	if err != nil {
		return err
	}
	zlog.Logger.Info().Str("instance", h.instanceID).Msg("Hub subscribed to fanout")
	for env := range envelopes {
		h.route(env)
	}
	return nil
}

func (h *Hub) route(env *domain.Envelope) {
	var msg *domain.ServerMessage
	switch {
	case env.Notification != nil:
		msg = &domain.ServerMessage{Type: domain.MsgNotification, Notification: env.Notification}
	case env.UnreadCount != nil:
		msg = &domain.ServerMessage{Type: domain.MsgUnreadCount, UnreadCount: env.UnreadCount}
	default:
		return
	}
	payload, err := msg.Encode()
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to encode fanout message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[env.RecipientID] {
		s.enqueue(payload)
	}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.recipientID]; !ok {
		h.sessions[s.recipientID] = make(map[*Session]struct{})
	}
	h.sessions[s.recipientID][s] = struct{}{}
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.sessions[s.recipientID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.recipientID)
		}
	}
}
