package domain

import (
	"database/sql"
	"time"
)

// User is an identity record owned by the credential store. Created at
// registration, immutable afterwards.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	Email        sql.NullString
	GoogleID     sql.NullString
	CreatedAt    time.Time
}

// Identity returns the snapshot stored into sessions at login.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}
