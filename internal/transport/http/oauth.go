package http

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/presence-deck/server/internal/config"
	"github.com/presence-deck/server/internal/domain"
	"github.com/presence-deck/server/internal/repository/postgres"
	authservice "github.com/presence-deck/server/internal/service/auth"
	pkgauth "github.com/presence-deck/server/pkg/auth"
	"github.com/presence-deck/server/pkg/httputil"
	"github.com/presence-deck/server/pkg/useragent"
)

type OAuthHandler struct {
	UserRepo    *postgres.UserRepo
	AuthService *authservice.Service
	Config      *config.OAuthConfig
}

func NewOAuthHandler(userRepo *postgres.UserRepo, authService *authservice.Service, cfg *config.OAuthConfig) *OAuthHandler {
	return &OAuthHandler{
		UserRepo:    userRepo,
		AuthService: authService,
		Config:      cfg,
	}
}

// GoogleLogin redirects the user to Google
func (h *OAuthHandler) GoogleLogin(c *gin.Context) {
	url := h.Config.GoogleLoginConfig.AuthCodeURL("state")
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// GoogleCallback handles the response from Google. Existing users go through
// the same single-session login flow as the password form; the redirect flow
// cannot carry a 409 body, so a conflict comes back as a query param and the
// user resolves it through the normal login form's force path.
func (h *OAuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	token, err := h.Config.GoogleLoginConfig.Exchange(c.Request.Context(), code)
	if err != nil {
		log.Printf("[OAUTH] Failed to exchange token: %v", err)
		c.Redirect(http.StatusTemporaryRedirect, config.AppConfig.FrontendURL+"/login?error=auth_failed")
		return
	}

	userInfo, err := config.GetGoogleUserInfo(token.AccessToken)
	if err != nil {
		log.Printf("[OAUTH] Failed to get user info: %v", err)
		c.Redirect(http.StatusTemporaryRedirect, config.AppConfig.FrontendURL+"/login?error=user_info_failed")
		return
	}

	user, err := h.UserRepo.GetByEmail(c.Request.Context(), userInfo.Email)
	if err != nil {
		log.Printf("[OAUTH] User lookup failed: %v", err)
		c.Redirect(http.StatusTemporaryRedirect, config.AppConfig.FrontendURL+"/login?error=server_error")
		return
	}

	if user == nil {
		// New user: do NOT create an account yet. Hand the verified profile
		// to the signup completion step via a signed setup token.
		setupToken, err := pkgauth.GenerateSetupToken(userInfo.Email, userInfo.ID, userInfo.Name)
		if err != nil {
			log.Printf("[OAUTH] Failed to generate setup token: %v", err)
			c.Redirect(http.StatusTemporaryRedirect, config.AppConfig.FrontendURL+"/login?error=setup_failed")
			return
		}

		redirectURL := fmt.Sprintf("%s/complete-signup?token=%s&email=%s",
			config.AppConfig.FrontendURL, setupToken, userInfo.Email)
		c.Redirect(http.StatusTemporaryRedirect, redirectURL)
		return
	}

	// Auto-link Google ID if missing
	if !user.GoogleID.Valid {
		if err := h.UserRepo.LinkGoogleID(c.Request.Context(), userInfo.Email, userInfo.ID); err != nil {
			log.Printf("[OAUTH] Failed to link Google ID: %v", err)
		}
	}

	deviceInfo := useragent.ExtractDeviceInfo(c.Request)
	ipAddress := useragent.ExtractIPAddress(c.Request)

	sess, err := h.AuthService.LoginVerified(c.Request.Context(), user, false, deviceInfo, ipAddress)
	if err != nil {
		if errors.Is(err, domain.ErrSessionConflict) {
			c.Redirect(http.StatusTemporaryRedirect, config.AppConfig.FrontendURL+"/login?error=session_conflict")
			return
		}
		log.Printf("[OAUTH] Failed to create session: %v", err)
		c.Redirect(http.StatusTemporaryRedirect, config.AppConfig.FrontendURL+"/login?error=server_error")
		return
	}

	httputil.SetSessionCookie(c.Writer, sess.SessionID)
	c.Redirect(http.StatusTemporaryRedirect, config.AppConfig.FrontendURL+"/dashboard")
}

// CompleteGoogleSignup processes the final step of Google registration
func (h *OAuthHandler) CompleteGoogleSignup(c *gin.Context) {
	var req struct {
		SetupToken string `json:"token"`
		Username   string `json:"username"`
		Password   string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	claims, err := pkgauth.ValidateSetupToken(req.SetupToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired signup token"})
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

	hashed, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	userID, err := h.UserRepo.Create(c.Request.Context(), req.Username, hashed, domain.RoleUser, claims.Email, claims.GoogleID)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"message": "Username or email already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create account"})
		return
	}

	user := &domain.User{ID: userID, Username: req.Username, Role: domain.RoleUser}
	deviceInfo := useragent.ExtractDeviceInfo(c.Request)
	ipAddress := useragent.ExtractIPAddress(c.Request)

	sess, err := h.AuthService.LoginVerified(c.Request.Context(), user, false, deviceInfo, ipAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create session"})
		return
	}

	httputil.SetSessionCookie(c.Writer, sess.SessionID)
	c.JSON(http.StatusOK, gin.H{
		"message": "Signup complete",
		"user":    user.Identity(),
	})
}
