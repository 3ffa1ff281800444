package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/presence-deck/server/internal/domain"
)

type SessionRepo struct {
	DB *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db}
}

const sessionSelectFields = `session_id, user_id, username, role, COALESCE(device_info, ''), COALESCE(ip_address, ''), created_at, expires_at`

// Get retrieves a session by id. Expired sessions are treated as absent;
// their rows are reclaimed by the cleanup worker.
func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
	SELECT ` + sessionSelectFields + `
	FROM sessions
	WHERE session_id = $1 AND expires_at > NOW();
	`
	var s domain.Session
	err := r.DB.QueryRowContext(ctx, query, sessionID).Scan(
		&s.SessionID,
		&s.UserID,
		&s.Username,
		&s.Role,
		&s.DeviceInfo,
		&s.IPAddress,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %v", err)
	}
	return &s, nil
}

// Delete removes a session by id. Idempotent: deleting an absent session is
// not an error.
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM sessions WHERE session_id = $1;`
	_, err := r.DB.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %v", err)
	}
	return nil
}

// DeleteExpired reclaims sessions that lapsed by TTL.
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= NOW();`
	result, err := r.DB.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return rowsAffected, nil
}
