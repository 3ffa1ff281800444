package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                 string
	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetimeMin int
	SessionTTL           time.Duration
	FrontendURL          string
	AllowedOrigins       []string
	Environment          string
	OAuthConfig          OAuthConfig
	SetupTokenSecret     string
}

var AppConfig *Config

func LoadConfig() *Config {
	port := GetEnv("PORT", "8080")
	environment := GetEnv("ENVIRONMENT", "development")

	// Frontend & CORS
	frontendURL := GetEnv("FRONTEND_URL", "http://localhost:5173")
	allowedOriginsStr := GetEnv("ALLOWED_ORIGINS", "")

	// Build allowed origins list (Frontend URL + Localhost + CSV values)
	allowedOrigins := []string{
		frontendURL,
		"http://localhost:5173", // Local development
	}
	if allowedOriginsStr != "" {
		extras := strings.Split(allowedOriginsStr, ",")
		for _, origin := range extras {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	dbURL := GetEnv("DATABASE_URL", GetEnv("DATABASE_URI", ""))
	dbMaxOpenConns := GetEnvAsInt("DB_MAX_OPEN_CONNS", 25)
	dbMaxIdleConns := GetEnvAsInt("DB_MAX_IDLE_CONNS", 25)
	dbConnMaxLifetimeMin := GetEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	// Sessions expire after an hour by default; clients re-login.
	sessionTTLMin := GetEnvAsInt("SESSION_TTL_MINUTES", 60)

	setupTokenSecret := GetEnv("SETUP_TOKEN_SECRET", "change-this-in-production")

	oauthConfig := LoadOAuthConfig()

	AppConfig = &Config{
		Port:                 port,
		DatabaseURL:          dbURL,
		DBMaxOpenConns:       dbMaxOpenConns,
		DBMaxIdleConns:       dbMaxIdleConns,
		DBConnMaxLifetimeMin: dbConnMaxLifetimeMin,
		SessionTTL:           time.Duration(sessionTTLMin) * time.Minute,
		FrontendURL:          frontendURL,
		AllowedOrigins:       allowedOrigins,
		Environment:          environment,
		OAuthConfig:          *oauthConfig,
		SetupTokenSecret:     setupTokenSecret,
	}

	return AppConfig
}

// IsProduction reports whether the server runs with production settings
// (secure cookies, SameSite=None).
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
