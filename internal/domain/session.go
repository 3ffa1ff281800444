package domain

import "time"

// Session is the server-side record behind the opaque session id cookie.
// The identity snapshot is embedded so authenticated reads never need a
// second lookup against the users table.
type Session struct {
	SessionID  string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Role       Role      `json:"role"`
	DeviceInfo string    `json:"device_info"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session has lapsed by TTL.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Identity returns the embedded identity snapshot.
func (s *Session) Identity() Identity {
	return Identity{UserID: s.UserID, Username: s.Username, Role: s.Role}
}

// ActiveSession is the per-user pointer enforcing one live session per user.
// user_id and session_id are both unique at the storage layer; that constraint,
// not application-level reads, is what decides racing logins.
type ActiveSession struct {
	UserID    int64     `json:"user_id"`
	SessionID string    `json:"session_id"`
	LoginTime time.Time `json:"login_time"`
}
