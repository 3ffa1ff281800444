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

type UserRepo struct {
	DB *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userSelectFields = `id, username, password_hash, role, email, google_id, created_at`

// scanUser is a helper that scans a row into a User struct
func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Email,
		&user.GoogleID,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user. A duplicate username surfaces as ErrUserExists,
// relying on the unique constraint rather than a pre-read.
func (r *UserRepo) Create(ctx context.Context, username, passwordHash string, role domain.Role, email, googleID string) (int64, error) {
	var emailParam, googleIDParam interface{}
	if email != "" {
		emailParam = email
	}
	if googleID != "" {
		googleIDParam = googleID
	}

	query := `
	INSERT INTO users (username, password_hash, role, email, google_id)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id;
	`
	var userID int64
	err := r.DB.QueryRowContext(ctx, query, username, passwordHash, role, emailParam, googleIDParam).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, domain.ErrUserExists
		}
		return 0, fmt.Errorf("failed to create user: %v", err)
	}
	return userID, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE username = $1;`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepo) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE id = $1;`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE email = $1;`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}
	return user, nil
}

// GetByGoogleID retrieves a user by Google ID
func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE google_id = $1;`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, googleID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}
	return user, nil
}

// LinkGoogleID attaches a Google ID to an existing account by email.
func (r *UserRepo) LinkGoogleID(ctx context.Context, email, googleID string) error {
	query := `UPDATE users SET google_id = $2 WHERE email = $1;`
	_, err := r.DB.ExecContext(ctx, query, email, googleID)
	if err != nil {
		return fmt.Errorf("failed to link google id: %v", err)
	}
	return nil
}
