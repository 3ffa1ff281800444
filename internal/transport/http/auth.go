package http

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/presence-deck/server/internal/domain"
	authservice "github.com/presence-deck/server/internal/service/auth"
	"github.com/presence-deck/server/internal/transport/http/middleware"
	"github.com/presence-deck/server/pkg/httputil"
	"github.com/presence-deck/server/pkg/useragent"
)

type AuthHandler struct {
	AuthService *authservice.Service
}

func NewAuthHandler(authService *authservice.Service) *AuthHandler {
	return &AuthHandler{AuthService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string      `json:"username"`
		Password string      `json:"password"`
		Role     domain.Role `json:"role"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 || len(req.Username) > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username must be between 3 and 50 characters"})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Password must be at least 6 characters"})
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	if !domain.ValidRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid role"})
		return
	}

	user, err := h.AuthService.Register(c.Request.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
			return
		}
		log.Printf("[AUTH] Register failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"user":    gin.H{"username": user.Username, "role": user.Role},
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Force    bool   `json:"force"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input"})
		return
	}

	deviceInfo := useragent.ExtractDeviceInfo(c.Request)
	ipAddress := useragent.ExtractIPAddress(c.Request)

	sess, err := h.AuthService.Login(c.Request.Context(), req.Username, req.Password, req.Force, deviceInfo, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			// Never hint at which factor failed.
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		case errors.Is(err, domain.ErrSessionConflict):
			c.JSON(http.StatusConflict, gin.H{
				"message": "A session is already active. Want forced login?",
				"code":    "SESSION_CONFLICT",
			})
		default:
			log.Printf("[AUTH] Login failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		}
		return
	}

	httputil.SetSessionCookie(c.Writer, sess.SessionID)
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    sess.Identity(),
	})
}

// Logout always reports success and always clears the cookie, even when the
// session was already gone.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID, err := httputil.GetSessionID(c.Request)
	if err != nil {
		httputil.ClearSessionCookie(c.Writer)
		c.JSON(http.StatusOK, gin.H{"message": "Already logged out."})
		return
	}

	if err := h.AuthService.Logout(c.Request.Context(), sessionID); err != nil {
		log.Printf("[AUTH] Logout error: %v", err)
	}

	httputil.ClearSessionCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"isAuthenticated": false, "message": "Not authorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"isAuthenticated": true,
		"user":            sess.Identity(),
	})
}
