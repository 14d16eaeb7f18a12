package session

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wb-go/wbf/zlog"

	"realtime-notifier/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests and hands the socket to a session.
type Handler struct {
	hub               *Hub
	service           NotificationService
	reg               registry.Registry
	auth              AuthFunc
	instanceID        string
	heartbeatInterval time.Duration
}

func NewHandler(hub *Hub, service NotificationService, reg registry.Registry, auth AuthFunc, instanceID string, heartbeatInterval time.Duration) *Handler {
	return &Handler{
		hub:               hub,
		service:           service,
		reg:               reg,
		auth:              auth,
		instanceID:        instanceID,
		heartbeatInterval: heartbeatInterval,
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	s := newSession(conn, h.hub, h.service, h.reg, h.instanceID, h.heartbeatInterval)
	s.run(r.Context(), h.auth)
}
