package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cliniq-dev/cliniq/backend/internal/setup"
	mw "github.com/cliniq-dev/cliniq/shared/middleware"
	"github.com/cliniq-dev/cliniq/shared/middleware/metrics"
	rl "github.com/cliniq-dev/cliniq/shared/middleware/ratelimiter"
)

// New creates and configures the router with all routes.
// IMPORTANT! ratelimiters set with .Use limit requests for all endpoints in that group combined
func New(deps *setup.Dependencies) *chi.Mux {
	r := chi.NewRouter()
	cfg := deps.Config

	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(metrics.Middleware)

	// setup CORS for frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Public.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// Backend CSP: strict policy (JSON API only, no scripts/styles needed)
	backendCSP := "default-src 'none'; frame-ancestors 'none'"
	r.Use(mw.SecurityHeaders(cfg.Public.SecureCookies, backendCSP))

	h := deps.Handler
	authMw := deps.AuthMiddleware

	// Probes and metrics sit outside /v1 so infra never depends on API versioning
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/auth", func(auth chi.Router) {
			// Email sending endpoints: tight per-email and per-IP limits
			auth.Group(func(sending chi.Router) {
				sending.Use(mw.RateLimit(rl.New(1.0/10, 1, 1*time.Hour), mw.GetEmailFromBody)) // 1 per 10 sec by email
				sending.Use(mw.RateLimit(rl.OnceInSecond(), mw.GetIP))
				sending.Use(mw.GlobalRateLimit(rl.Rps100()))
				sending.Post("/register", h.Register)
				sending.Post("/forgot-password", h.ForgotPassword)
			})

			// Login carries the OTP round-trip, so limits stay per-IP only
			auth.Group(func(login chi.Router) {
				login.Use(mw.RateLimit(rl.OnceInSecond(), mw.GetIP))
				login.Use(mw.GlobalRateLimit(rl.Rps1000()))
				login.Post("/login", h.Login)
			})

			// Token endpoints (stricter limits to prevent brute force)
			auth.Group(func(tokens chi.Router) {
				tokens.Use(mw.RateLimit(rl.OnceInSecond(), mw.GetIP))
				tokens.Use(mw.GlobalRateLimit(rl.Rps100()))
				tokens.Post("/refresh", h.Refresh)
				tokens.Post("/verify-email", h.VerifyEmail)
				tokens.Post("/reset-password", h.ResetPassword)
			})

			auth.With(authMw.NeedAuth()).Post("/logout", h.Logout)
			auth.With(authMw.NeedAuth(), mw.RateLimit(rl.Rps10(), mw.GetUserIDFromContext)).Get("/me", h.Me)
		})

		// Admin routes
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(authMw.AdminOnly())
			admin.Post("/users", h.AdminCreateUser)
		})
	})

	// Avoid 404s for CORS preflight requests
	r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
