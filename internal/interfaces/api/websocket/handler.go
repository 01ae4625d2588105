package websocket

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"driveingest/internal/pkg/logger"
)

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve registers the connection under the room named by its "folderId"
// query param (empty for the unscoped feed) and blocks reading frames until
// the client disconnects, per the teacher's read-loop-until-error shape.
func (h *Handler) Serve(c *websocket.Conn) {
	room := c.Query("folderId", "")
	id := h.hub.Register(c, room)
	defer h.hub.Unregister(id)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			logger.API("websocket_disconnected", "client disconnected", map[string]interface{}{
				"clientId": id.String(),
			})
			break
		}
	}
}
