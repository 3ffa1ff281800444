package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/presence-deck/server/internal/config"
	"github.com/presence-deck/server/internal/repository/postgres"
	"github.com/presence-deck/server/internal/repository/redis"
	authservice "github.com/presence-deck/server/internal/service/auth"
	"github.com/presence-deck/server/internal/service/cleanup"
	"github.com/presence-deck/server/internal/service/presence"
	transportHttp "github.com/presence-deck/server/internal/transport/http"
	"github.com/presence-deck/server/internal/transport/http/middleware"
	"github.com/presence-deck/server/internal/transport/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.LoadConfig()

	db, err := postgres.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetimeMin)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	log.Println("Running database migrations...")
	if err := postgres.RunMigrations(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Repositories (Persistence Layer)
	userRepo := postgres.NewUserRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	activeSessionRepo := postgres.NewActiveSessionRepo(db)

	if err := redis.InitRedis(); err != nil {
		log.Printf("Failed to initialize Redis: %v", err)
	}
	defer redis.CloseRedis()

	var cache authservice.CacheRepository
	if redis.IsRedisEnabled() && redis.RedisClient != nil {
		cache = redis.NewRedisCache(redis.RedisClient)
	}

	// Services (Business Logic Layer)
	authService := authservice.NewService(userRepo, sessionRepo, activeSessionRepo, cache, cfg.SessionTTL)
	registry := presence.NewRegistry()
	// Forced logins evict the old session's live connection too.
	authService.SetDisconnector(registry)

	// Background workers
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	cleanupWorker := cleanup.NewWorker(sessionRepo, activeSessionRepo)
	go cleanupWorker.Start(workerCtx)

	// HTTP Handlers (API Layer)
	authHandler := transportHttp.NewAuthHandler(authService)
	oauthHandler := transportHttp.NewOAuthHandler(userRepo, authService, &cfg.OAuthConfig)
	presenceHandler := transportHttp.NewPresenceHandler(registry)
	wsHandler := websocket.NewHandler(registry, authService, func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range cfg.AllowedOrigins {
			if o == origin {
				return true
			}
		}
		return false
	})

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware())

	authMW := middleware.SessionAuth(authService)

	// Public Auth Routes
	router.POST("/api/auth/register", authHandler.Register)
	router.POST("/api/auth/login", authHandler.Login)
	router.POST("/api/auth/logout", authHandler.Logout)

	// OAuth Routes (public)
	router.GET("/api/auth/google/login", oauthHandler.GoogleLogin)
	router.GET("/api/auth/google/callback", oauthHandler.GoogleCallback)
	router.POST("/api/auth/google/complete", oauthHandler.CompleteGoogleSignup)

	// Protected Routes
	protected := router.Group("/")
	protected.Use(authMW)
	{
		protected.GET("/api/auth/me", authHandler.Me)
		protected.GET("/api/admin/active-users", middleware.RequireAdmin(), presenceHandler.GetActiveUsers)
	}

	// WebSocket Route (handshake auth handled inside the handler)
	router.GET("/ws", wsHandler.HandleWebSocket)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
