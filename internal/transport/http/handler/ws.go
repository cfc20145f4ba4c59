package handler

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/set-night/mindchat/internal/service"
	"github.com/set-night/mindchat/internal/transport/http/middleware"
	"github.com/set-night/mindchat/internal/transport/http/response"
)

type EventsHandler struct {
	hub      *service.EventHub
	upgrader websocket.Upgrader
}

// NewEventsHandler accepts upgrades from native clients (no Origin header)
// and from the listed browser origins. "*" allows any origin.
func NewEventsHandler(hub *service.EventHub, allowedOrigins []string) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *EventsHandler) ServeWS(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := h.hub.Register(userID, conn)
	defer h.hub.Unregister(client)

	go client.WritePump()
	client.ReadPump()
}
