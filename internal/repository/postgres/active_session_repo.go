package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/presence-deck/server/internal/domain"
)

// ActiveSessionRepo owns the one-row-per-user pointer that enforces a single
// live session. Install runs the whole evict-then-claim sequence inside one
// transaction so two racing logins are decided by the unique(user_id)
// constraint, never by a read followed by a write.
type ActiveSessionRepo struct {
	DB *sql.DB
}

func NewActiveSessionRepo(db *sql.DB) *ActiveSessionRepo {
	return &ActiveSessionRepo{DB: db}
}

// Install atomically creates the session row and claims the user's active
// session slot. Returns the evicted session id when force displaced a live
// session, empty otherwise.
//
// A record pointing at an expired or missing session does not count as a
// conflict: it is reclaimed in place, so a lapsed session never blocks a
// fresh login between cleanup sweeps.
func (r *ActiveSessionRepo) Install(ctx context.Context, sess *domain.Session, force bool) (string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	// Lock the user's slot if it exists; join against sessions to learn
	// whether the recorded session is still live.
	var oldSessionID string
	var live bool
	err = tx.QueryRowContext(ctx, `
	SELECT a.session_id, COALESCE(s.expires_at > NOW(), FALSE)
	FROM active_sessions a
	LEFT JOIN sessions s ON s.session_id = a.session_id
	WHERE a.user_id = $1
	FOR UPDATE OF a;
	`, sess.UserID).Scan(&oldSessionID, &live)

	switch {
	case err == sql.ErrNoRows:
		// NoActiveSession: fall through to the claim.
	case err != nil:
		return "", fmt.Errorf("failed to look up active session: %v", err)
	case live && !force:
		return "", domain.ErrSessionConflict
	default:
		// Evict the prior session (or reclaim a stale record). If the
		// destruction fails, the whole login fails with it: a second
		// session is never silently installed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1;`, oldSessionID); err != nil {
			return "", fmt.Errorf("failed to destroy prior session: %v", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM active_sessions WHERE user_id = $1;`, sess.UserID); err != nil {
			return "", fmt.Errorf("failed to delete active session record: %v", err)
		}
		if !live {
			oldSessionID = ""
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (session_id, user_id, username, role, device_info, ip_address, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, sess.SessionID, sess.UserID, sess.Username, sess.Role, sess.DeviceInfo, sess.IPAddress, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO active_sessions (user_id, session_id, login_time)
	VALUES ($1, $2, NOW());
	`, sess.UserID, sess.SessionID)
	if err != nil {
		// A concurrent login claimed the slot first.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", domain.ErrSessionConflict
		}
		return "", fmt.Errorf("failed to record active session: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit login transaction: %v", err)
	}
	return oldSessionID, nil
}

// GetByUserID retrieves the active session record for a user, if any.
func (r *ActiveSessionRepo) GetByUserID(ctx context.Context, userID int64) (*domain.ActiveSession, error) {
	query := `SELECT user_id, session_id, login_time FROM active_sessions WHERE user_id = $1;`
	var rec domain.ActiveSession
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&rec.UserID, &rec.SessionID, &rec.LoginTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session record: %v", err)
	}
	return &rec, nil
}

// DeleteBySessionID removes the tracking record for a session. Idempotent.
func (r *ActiveSessionRepo) DeleteBySessionID(ctx context.Context, sessionID string) error {
	query := `DELETE FROM active_sessions WHERE session_id = $1;`
	_, err := r.DB.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete active session record: %v", err)
	}
	return nil
}

// DeleteOrphaned removes records whose session row no longer exists, which
// happens when a session lapses by TTL and is reclaimed by the sweep.
func (r *ActiveSessionRepo) DeleteOrphaned(ctx context.Context) (int64, error) {
	query := `
	DELETE FROM active_sessions a
	WHERE NOT EXISTS (SELECT 1 FROM sessions s WHERE s.session_id = a.session_id);
	`
	result, err := r.DB.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned records: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return rowsAffected, nil
}
