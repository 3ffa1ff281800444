package presence

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/presence-deck/server/internal/domain"
)

// Registry tracks currently connected, authenticated identities. All mutations
// go through the registry mutex so connect/disconnect events from many
// connections serialize. In-memory only: nothing here survives a restart, and
// a multi-process deployment would need an external pub/sub bus.
type Registry struct {
	clients map[string]*client // keyed by connection id

	mu sync.RWMutex // Protects the map itself
}

type client struct {
	conn *websocket.Conn
	user domain.ConnectedUser

	// writeMu ensures only one goroutine writes to a specific socket at a
	// time. conn.WriteJSON is not safe for concurrent use.
	writeMu sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*client),
	}
}

// Join registers an authenticated connection and pushes the updated list to
// admin observers. Callers must resolve the identity from the server-side
// session before calling; the registry never sees client-asserted identity.
func (r *Registry) Join(connID string, conn *websocket.Conn, identity domain.Identity) {
	r.mu.Lock()
	r.clients[connID] = &client{
		conn: conn,
		user: domain.ConnectedUser{
			ConnectionID: connID,
			UserID:       identity.UserID,
			Username:     identity.Username,
			Role:         identity.Role,
			ConnectedAt:  time.Now(),
		},
	}
	r.mu.Unlock()

	log.Printf("[PRESENCE] User connected: %s (ID: %d)", identity.Username, identity.UserID)
	r.broadcastUserList()
}

// Leave removes a connection. Idempotent: leaving twice, or leaving a
// connection that was never registered, is a no-op with no broadcast.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	c, exists := r.clients[connID]
	if exists {
		delete(r.clients, connID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	log.Printf("[PRESENCE] User disconnected: %s", c.user.Username)
	r.broadcastUserList()
}

// UserList returns a snapshot of all connected users.
func (r *Registry) UserList() []domain.ConnectedUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]domain.ConnectedUser, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c.user)
	}
	return list
}

// Count returns the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// broadcastUserList pushes the full presence list to the admin partition.
// Whole-list-per-change is O(n) per event, fine at presence-list scale.
func (r *Registry) broadcastUserList() {
	users := r.UserList()

	r.mu.RLock()
	admins := make([]*client, 0)
	for _, c := range r.clients {
		if c.user.Role == domain.RoleAdmin {
			admins = append(admins, c)
		}
	}
	r.mu.RUnlock()

	msg := domain.ServerMessage{Type: domain.EventUpdateUserList, Users: users}
	for _, admin := range admins {
		// One slow admin socket must not stall the others.
		go func(c *client) {
			if err := r.send(c, msg); err != nil {
				log.Printf("[PRESENCE] Failed to push user list to %s: %v", c.user.Username, err)
			}
		}(admin)
	}
}

// send writes a message under the per-connection write lock. Push failures
// are non-fatal: the triggering event's own bookkeeping already happened.
func (r *Registry) send(c *client, msg domain.ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

// DisconnectUser force-closes every connection belonging to a user, used when
// a forced login evicts their session. Best effort on the notify, then close.
func (r *Registry) DisconnectUser(userID int64, reason string) {
	r.mu.Lock()
	var victims []*client
	for connID, c := range r.clients {
		if c.user.UserID == userID {
			victims = append(victims, c)
			delete(r.clients, connID)
		}
	}
	r.mu.Unlock()

	if len(victims) == 0 {
		return
	}

	msg := domain.ServerMessage{Type: domain.EventForceDisconnect, Message: reason}
	for _, c := range victims {
		_ = r.send(c, msg)
		c.conn.Close()
	}

	log.Printf("[PRESENCE] Force-disconnected user %d: %s", userID, reason)
	r.broadcastUserList()
}
