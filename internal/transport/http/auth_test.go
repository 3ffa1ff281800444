package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presence-deck/server/internal/config"
	"github.com/presence-deck/server/internal/domain"
	authservice "github.com/presence-deck/server/internal/service/auth"
	"github.com/presence-deck/server/internal/service/presence"
	"github.com/presence-deck/server/internal/transport/http/middleware"
	"github.com/presence-deck/server/pkg/httputil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.LoadConfig()
	m.Run()
}

// In-memory repos mirroring the postgres implementations' contracts.

type memStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]domain.Session
	active   map[int64]domain.ActiveSession
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]domain.Session),
		active:   make(map[int64]domain.ActiveSession),
		nextID:   1,
	}
}

func (s *memStore) Create(_ context.Context, username, passwordHash string, role domain.Role, _, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return 0, domain.ErrUserExists
	}
	id := s.nextID
	s.nextID++
	s.users[username] = &domain.User{ID: id, Username: username, PasswordHash: passwordHash, Role: role}
	return id, nil
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (s *memStore) GetByID(_ context.Context, userID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return nil, nil
	}
	out := sess
	return &out, nil
}

func (s *memStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *memStore) Install(_ context.Context, sess *domain.Session, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := ""
	if rec, ok := s.active[sess.UserID]; ok {
		old, haveOld := s.sessions[rec.SessionID]
		live := haveOld && time.Now().Before(old.ExpiresAt)
		if live && !force {
			return "", domain.ErrSessionConflict
		}
		delete(s.sessions, rec.SessionID)
		delete(s.active, sess.UserID)
		if live {
			evicted = rec.SessionID
		}
	}
	s.sessions[sess.SessionID] = *sess
	s.active[sess.UserID] = domain.ActiveSession{UserID: sess.UserID, SessionID: sess.SessionID, LoginTime: time.Now()}
	return evicted, nil
}

func (s *memStore) DeleteBySessionID(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, rec := range s.active {
		if rec.SessionID == sessionID {
			delete(s.active, userID)
		}
	}
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()

	store := newMemStore()
	svc := authservice.NewService(store, store, store, nil, time.Hour)
	authHandler := NewAuthHandler(svc)
	presenceHandler := NewPresenceHandler(presence.NewRegistry())

	router := gin.New()
	router.POST("/api/auth/register", authHandler.Register)
	router.POST("/api/auth/login", authHandler.Login)
	router.POST("/api/auth/logout", authHandler.Logout)

	authMW := middleware.SessionAuth(svc)
	protected := router.Group("/")
	protected.Use(authMW)
	protected.GET("/api/auth/me", authHandler.Me)
	protected.GET("/api/admin/active-users", middleware.RequireAdmin(), presenceHandler.GetActiveUsers)

	return router, store
}

func doJSON(router *gin.Engine, method, path string, body map[string]interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == httputil.SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func register(t *testing.T, router *gin.Engine, username string, role domain.Role) {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/auth/register", map[string]interface{}{
		"username": username, "password": "hunter22", "role": role,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func login(t *testing.T, router *gin.Engine, username string, force bool) *http.Cookie {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/auth/login", map[string]interface{}{
		"username": username, "password": "hunter22", "force": force,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return sessionCookie(t, w)
}

func TestRegisterEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("creates user", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/register", map[string]interface{}{
			"username": "alice", "password": "hunter22",
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			User struct {
				Username string `json:"username"`
				Role     string `json:"role"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.User.Username)
		assert.Equal(t, "user", resp.User.Role)
	})

	t.Run("duplicate username", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/register", map[string]interface{}{
			"username": "alice", "password": "hunter22",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects bad role", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/register", map[string]interface{}{
			"username": "mallory", "password": "hunter22", "role": "superuser",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects short password", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/register", map[string]interface{}{
			"username": "shorty", "password": "abc",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	register(t, router, "alice", domain.RoleUser)

	t.Run("success sets HttpOnly cookie", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/login", map[string]interface{}{
			"username": "alice", "password": "hunter22",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		cookie := sessionCookie(t, w)
		assert.True(t, cookie.HttpOnly)
		assert.NotEmpty(t, cookie.Value)

		var resp struct {
			User domain.Identity `json:"user"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "alice", resp.User.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/login", map[string]interface{}{
			"username": "alice", "password": "wrong",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("conflict without force", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/login", map[string]interface{}{
			"username": "alice", "password": "hunter22",
		}, nil)
		require.Equal(t, http.StatusConflict, w.Code)

		var resp struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SESSION_CONFLICT", resp.Code)
	})

	t.Run("forced login succeeds", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/api/auth/login", map[string]interface{}{
			"username": "alice", "password": "hunter22", "force": true,
		}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestMeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	register(t, router, "alice", domain.RoleUser)

	t.Run("without cookie", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/auth/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("with valid session", func(t *testing.T) {
		cookie := login(t, router, "alice", false)
		w := doJSON(router, http.MethodGet, "/api/auth/me", nil, cookie)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			IsAuthenticated bool            `json:"isAuthenticated"`
			User            domain.Identity `json:"user"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.IsAuthenticated)
		assert.Equal(t, "alice", resp.User.Username)
	})

	t.Run("with destroyed session", func(t *testing.T) {
		cookie := login(t, router, "alice", true)
		w := doJSON(router, http.MethodPost, "/api/auth/logout", nil, cookie)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(router, http.MethodGet, "/api/auth/me", nil, cookie)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var resp struct {
			IsAuthenticated bool `json:"isAuthenticated"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.IsAuthenticated)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	register(t, router, "alice", domain.RoleUser)
	cookie := login(t, router, "alice", false)

	w := doJSON(router, http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.sessions)
	assert.Empty(t, store.active)

	cleared := sessionCookie(t, w)
	assert.Less(t, cleared.MaxAge, 0, "logout must clear the cookie")

	// Idempotent: logging out again, and without any cookie at all, still 200.
	w = doJSON(router, http.MethodPost, "/api/auth/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminActiveUsersEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	register(t, router, "alice", domain.RoleUser)
	register(t, router, "root", domain.RoleAdmin)

	t.Run("forbidden for regular user", func(t *testing.T) {
		cookie := login(t, router, "alice", false)
		w := doJSON(router, http.MethodGet, "/api/admin/active-users", nil, cookie)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("allowed for admin", func(t *testing.T) {
		cookie := login(t, router, "root", false)
		w := doJSON(router, http.MethodGet, "/api/admin/active-users", nil, cookie)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Count int                    `json:"count"`
			Users []domain.ConnectedUser `json:"users"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
	})
}
