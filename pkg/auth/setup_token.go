package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/presence-deck/server/internal/config"
)

// SetupClaims carries the verified Google profile between the OAuth callback
// and signup completion. This is the only signed token in the system; requests
// are authenticated by the session cookie, never by a token.
type SetupClaims struct {
	Email    string `json:"email"`
	GoogleID string `json:"google_id"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateSetupToken issues a short-lived token for completing Google signup.
func GenerateSetupToken(email, googleID, name string) (string, error) {
	claims := SetupClaims{
		Email:    email,
		GoogleID: googleID,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.SetupTokenSecret))
}

// ValidateSetupToken parses and verifies a setup token.
func ValidateSetupToken(tokenString string) (*SetupClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SetupClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.SetupTokenSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SetupClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid setup token")
	}
	return claims, nil
}
