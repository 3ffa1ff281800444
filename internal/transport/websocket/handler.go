package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/presence-deck/server/internal/domain"
	authservice "github.com/presence-deck/server/internal/service/auth"
	"github.com/presence-deck/server/internal/service/presence"
	"github.com/presence-deck/server/pkg/httputil"
	"github.com/presence-deck/server/pkg/uid"
)

// Handler manages WebSocket dependencies
type Handler struct {
	Registry    *presence.Registry
	AuthService *authservice.Service
	Upgrader    websocket.Upgrader
}

func NewHandler(registry *presence.Registry, authService *authservice.Service, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		Registry:    registry,
		AuthService: authService,
		Upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWebSocket upgrades the connection and registers it with presence.
// Identity comes exclusively from the server-side session resolved via the
// cookie carried on the handshake; a peer without a valid session is
// disconnected immediately, and client payloads are never trusted for
// identity or role.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID, err := httputil.GetSessionID(c.Request)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	sess, err := h.AuthService.CheckSession(c.Request.Context(), sessionID)
	if err != nil {
		log.Printf("[WS] Session lookup failed during handshake: %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if sess == nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	h.handleConnection(conn, sess.Identity())
}

// handleConnection manages the lifecycle of a single WebSocket connection
func (h *Handler) handleConnection(conn *websocket.Conn, identity domain.Identity) {
	connID, err := uid.GenerateConnectionID()
	if err != nil {
		log.Printf("[WS] Failed to generate connection id: %v", err)
		conn.Close()
		return
	}

	// Set read deadline to detect stale connections
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Keep-alive pinger
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	h.Registry.Join(connID, conn, identity)

	defer func() {
		close(done)
		h.Registry.Leave(connID)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[WS] User %s disconnected unexpectedly: %v", identity.Username, err)
			}
			return
		}

		var msg domain.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WS] Invalid message format from %s: %v", identity.Username, err)
			continue
		}

		switch msg.Type {
		case domain.EventUserLogout:
			// Explicit leave, ahead of transport-level disconnect detection.
			h.Registry.Leave(connID)
		}
	}
}
