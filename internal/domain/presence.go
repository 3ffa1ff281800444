package domain

import "time"

// ConnectedUser is one entry in the transient presence registry. Keyed by
// connection id; never persisted, never survives a restart.
type ConnectedUser struct {
	ConnectionID string    `json:"connection_id"`
	UserID       int64     `json:"userId"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// ClientMessage is what a connected websocket client may send.
type ClientMessage struct {
	Type string `json:"type"`
}

// Client-originated event types.
const (
	EventUserLogout = "user-logout"
)

// ServerMessage is pushed to websocket clients.
type ServerMessage struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Users   []ConnectedUser `json:"users,omitempty"`
}

// Server-originated event types.
const (
	EventUpdateUserList  = "update-user-list"
	EventForceDisconnect = "force_disconnect"
	EventError           = "error"
)
