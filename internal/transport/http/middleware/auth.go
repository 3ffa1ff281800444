package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/presence-deck/server/internal/domain"
	authservice "github.com/presence-deck/server/internal/service/auth"
	"github.com/presence-deck/server/pkg/httputil"
)

const sessionContextKey = "session"

// SessionAuth resolves the session cookie to a server-side session and puts
// it on the request context. No cookie, unknown id or expired session all
// fail the same way.
func SessionAuth(authService *authservice.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := httputil.GetSessionID(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"isAuthenticated": false, "message": "Not authorized. Please log in."})
			return
		}

		sess, err := authService.CheckSession(c.Request.Context(), sessionID)
		if err != nil {
			log.Printf("[AUTH] Session lookup failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
		if sess == nil {
			httputil.ClearSessionCookie(c.Writer)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"isAuthenticated": false, "message": "Not authorized. Please log in."})
			return
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// RequireAdmin guards admin-only routes. Must run after SessionAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized. Please log in."})
			return
		}
		if sess.Role != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Access denied. Admins only."})
			return
		}
		c.Next()
	}
}

// SessionFromContext returns the session attached by SessionAuth.
func SessionFromContext(c *gin.Context) (*domain.Session, bool) {
	v, exists := c.Get(sessionContextKey)
	if !exists {
		return nil, false
	}
	sess, ok := v.(*domain.Session)
	return sess, ok
}
