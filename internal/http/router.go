package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/riskguard/server/internal/auth"
	"github.com/riskguard/server/internal/http/handlers"
	"github.com/riskguard/server/internal/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(authHandler *handlers.AuthHandler, jwtService *auth.JWTService) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Post("/signup", authHandler.HandleSignUp)
	r.Post("/login", authHandler.HandleLogin)
	r.Get("/check_status/{token}", authHandler.HandleCheckStatus)
	r.Post("/approve/{token}", authHandler.HandleApprove)

	// Protected routes (require a verified-session access token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))
		r.Get("/dashboard", authHandler.HandleDashboard)
		r.Get("/audit", authHandler.HandleAudit)
	})

	return r
}
