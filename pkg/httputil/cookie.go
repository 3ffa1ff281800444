package httputil

import (
	"errors"
	"net/http"

	"github.com/presence-deck/server/internal/config"
)

// SessionCookieName is the cookie holding the opaque session id. The session
// contents live server-side only; the client never sees more than this id.
const SessionCookieName = "sid"

func SetSessionCookie(w http.ResponseWriter, sessionID string) {
	maxAge := int(config.AppConfig.SessionTTL.Seconds())
	isProduction := config.AppConfig.IsProduction()

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isProduction,
	}

	// SameSite=None requires Secure=true, so use Lax for development
	if isProduction {
		cookie.SameSite = http.SameSiteNoneMode
		cookie.Secure = true
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}

	http.SetCookie(w, cookie)
}

func ClearSessionCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}

	http.SetCookie(w, cookie)
}

// GetSessionID extracts the opaque session id from the request cookie.
func GetSessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", errors.New("session cookie not found")
	}

	if cookie.Value == "" {
		return "", errors.New("session cookie is empty")
	}

	return cookie.Value, nil
}
