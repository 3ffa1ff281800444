package auth

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/presence-deck/server/internal/domain"
	"github.com/presence-deck/server/pkg/auth"
	"github.com/presence-deck/server/pkg/uid"
)

const sessionKeyPrefix = "session:"

type UserRepository interface {
	Create(ctx context.Context, username, passwordHash string, role domain.Role, email, googleID string) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, userID int64) (*domain.User, error)
}

type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// ActiveSessionRepository is the enforcer's storage primitive. Install must be
// atomic: either the new session and its tracking record both exist afterwards,
// or neither does.
type ActiveSessionRepository interface {
	Install(ctx context.Context, sess *domain.Session, force bool) (evictedSessionID string, err error)
	DeleteBySessionID(ctx context.Context, sessionID string) error
}

type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Disconnector force-closes a user's live websocket connections, used when a
// forced login evicts their previous session.
type Disconnector interface {
	DisconnectUser(userID int64, reason string)
}

// Service orchestrates login, logout and session checks.
type Service struct {
	users        UserRepository
	sessions     SessionRepository
	active       ActiveSessionRepository
	cache        CacheRepository // Optional, can be nil
	disconnector Disconnector    // Optional, can be nil
	sessionTTL   time.Duration
}

func NewService(users UserRepository, sessions SessionRepository, active ActiveSessionRepository, cache CacheRepository, ttl time.Duration) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		active:     active,
		cache:      cache,
		sessionTTL: ttl,
	}
}

// SetDisconnector wires the presence layer in after construction; the two
// services depend on each other so one link has to be late-bound.
func (s *Service) SetDisconnector(d Disconnector) {
	s.disconnector = d
}

// Register creates a new user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	userID, err := s.users.Create(ctx, username, hashed, role, "", "")
	if err != nil {
		return nil, err
	}

	return &domain.User{ID: userID, Username: username, Role: role}, nil
}

// Verify checks a username/password pair. Unknown user and wrong password are
// indistinguishable to the caller.
func (s *Service) Verify(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// Login runs the single-session state machine:
//
//	no active session        -> create session + record, success
//	active session, !force   -> ErrSessionConflict, no side effects
//	active session, force    -> evict old session, then create; most recent
//	                            login wins only when explicitly forced
func (s *Service) Login(ctx context.Context, username, password string, force bool, deviceInfo, ipAddress string) (*domain.Session, error) {
	user, err := s.Verify(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.establishSession(ctx, user, force, deviceInfo, ipAddress)
}

// LoginVerified establishes a session for an already-verified identity
// (the OAuth callback path, where Google did the credential check).
func (s *Service) LoginVerified(ctx context.Context, user *domain.User, force bool, deviceInfo, ipAddress string) (*domain.Session, error) {
	return s.establishSession(ctx, user, force, deviceInfo, ipAddress)
}

func (s *Service) establishSession(ctx context.Context, user *domain.User, force bool, deviceInfo, ipAddress string) (*domain.Session, error) {
	sessionID, err := uid.GenerateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &domain.Session{
		SessionID:  sessionID,
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}

	evicted, err := s.active.Install(ctx, sess, force)
	if err != nil {
		// ErrSessionConflict propagates untouched so the caller can decide
		// whether to retry with force.
		return nil, err
	}

	if evicted != "" {
		log.Printf("[AUTH] Forced login for user %d evicted previous session", user.ID)
		s.cacheDel(ctx, evicted)
		if s.disconnector != nil {
			s.disconnector.DisconnectUser(user.ID, "Logged in from another device")
		}
	}

	s.cacheSet(ctx, sess)
	return sess, nil
}

// CheckSession resolves a session id to its session, or nil when the id is
// unknown or expired. Pure read: never mutates the tracking record.
func (s *Service) CheckSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sess := s.cacheGet(ctx, sessionID); sess != nil {
		if sess.Expired() {
			return nil, nil
		}
		return sess, nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		s.cacheSet(ctx, sess)
	}
	return sess, nil
}

// Logout destroys the session and clears its tracking record. Idempotent, and
// it reports success even when cleanup of the tracking record fails: once the
// primary session is destroyed the client is logged out.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.cacheDel(ctx, sessionID)

	if err := s.active.DeleteBySessionID(ctx, sessionID); err != nil {
		log.Printf("[AUTH] Warning: active session record cleanup failed: %v", err)
	}
	return nil
}

// Cache helpers. The cache is best-effort: every failure is logged and the
// durable store remains authoritative.

func (s *Service) cacheSet(ctx context.Context, sess *domain.Session) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, sessionKeyPrefix+sess.SessionID, data, ttl); err != nil {
		log.Printf("[AUTH] Warning: failed to cache session: %v", err)
	}
}

func (s *Service) cacheGet(ctx context.Context, sessionID string) *domain.Session {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil || data == "" {
		return nil
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil
	}
	return &sess
}

func (s *Service) cacheDel(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, sessionKeyPrefix+sessionID); err != nil {
		log.Printf("[AUTH] Warning: failed to drop cached session: %v", err)
	}
}
