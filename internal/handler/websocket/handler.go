// Package websocket upgrades feed connections and hands them to the hub.
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/hub"
)

// Handler upgrades /ws requests onto the event feed. The feed carries only
// already-public event data, so connections are unauthenticated.
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

func NewHandler(h *hub.Hub) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		hub: h,
	}
}

// HandleConnection upgrades the request and starts the client pumps.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	client := hub.NewClient(h.hub, conn)
	client.Run()
}
