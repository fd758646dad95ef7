package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/riskguard/server/internal/auth"
	"github.com/riskguard/server/internal/config"
	"github.com/riskguard/server/internal/db"
	"github.com/riskguard/server/internal/geo"
	httphandler "github.com/riskguard/server/internal/http"
	"github.com/riskguard/server/internal/http/handlers"
	"github.com/riskguard/server/internal/repo"
	"github.com/riskguard/server/internal/risk"
	"github.com/riskguard/server/internal/session"
)

func main() {
	// Load .env from CWD so it works in local dev (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	userRepo := repo.NewUserRepo(database)
	locationRepo := repo.NewLocationRepo(database)
	attemptRepo := repo.NewAttemptRepo(database)
	auditRepo := repo.NewAuditRepo(database)

	// Session store: Redis when configured, in-memory otherwise
	sessionStore, err := newSessionStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}

	// Geo resolver
	var resolver geo.Resolver
	if cfg.GeoDevMode {
		resolver = geo.NewStatic(nil)
		log.Println("GEO_DEV_MODE enabled; geolocation lookups return empty results")
	} else {
		resolver = geo.NewClient(cfg.GeoAPIBaseURL)
	}

	// Core services
	engine := risk.NewEngine(resolver, cfg.SuspiciousIPs, nil)
	lifecycle := session.NewLifecycle(sessionStore, resolver, locationRepo, cfg.IsAdmin, nil)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	thresholds := risk.Thresholds{Block: cfg.BlockThreshold, Approval: cfg.ApprovalThreshold}
	loginService := auth.NewLoginService(
		userRepo, locationRepo, attemptRepo, auditRepo,
		engine, lifecycle, jwtService, thresholds, cfg.SessionTTLSeconds,
	)

	go lifecycle.RunSweeper(ctx, cfg.SweepInterval)

	authHandler := handlers.NewAuthHandler(loginService, auditRepo, cfg.IsAdmin)
	router := httphandler.NewRouter(authHandler, jwtService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// newSessionStore picks the Redis-backed store when REDIS_URL is set and the
// in-memory store otherwise.
func newSessionStore(ctx context.Context, redisURL string) (session.Store, error) {
	if redisURL == "" {
		log.Println("REDIS_URL not set; using in-memory session store")
		return session.NewMemoryStore(nil), nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Printf("Using Redis session store at %s", opt.Addr)
	return session.NewRedisStore(client), nil
}

// runMigrations runs database migrations using goose.
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
