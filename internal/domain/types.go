package domain

// Role of a registered user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ValidRole reports whether r is one of the enumerated roles.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is the server-verified user snapshot embedded in sessions and
// attached to presence connections. It never comes from client payloads.
type Identity struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the identity belongs to the admin partition.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// basic error that can occur
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInvalidCredentials Error = "invalid credentials"
	ErrSessionConflict    Error = "a session is already active for this user"
	ErrUserExists         Error = "user already exists"
	ErrSessionNotFound    Error = "session not found"
	ErrForbidden          Error = "access denied"
)
