package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/presence-deck/server/internal/service/presence"
)

// PresenceHandler exposes an admin-only snapshot of the live presence set.
// The push channel is the websocket; this is the pull equivalent for the
// admin dashboard's initial render.
type PresenceHandler struct {
	Registry *presence.Registry
}

func NewPresenceHandler(registry *presence.Registry) *PresenceHandler {
	return &PresenceHandler{Registry: registry}
}

func (h *PresenceHandler) GetActiveUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"count": h.Registry.Count(),
		"users": h.Registry.UserList(),
	})
}
