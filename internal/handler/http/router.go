package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthlinkhq/healthlink-auth/internal/auth"
	"github.com/healthlinkhq/healthlink-auth/internal/service"
	"github.com/healthlinkhq/healthlink-auth/pkg/health"
	"github.com/healthlinkhq/healthlink-auth/pkg/middleware"
	"github.com/healthlinkhq/healthlink-auth/pkg/ratelimit"
)

// RouterDeps bundles the dependencies the router wires together.
type RouterDeps struct {
	Service       *service.AuthService
	JWTManager    *auth.JWTManager
	HealthHandler *health.Handler
	Limiter       *ratelimit.Limiter
	OAuth         OAuthConfig
	CORS          CORSConfig
	Logger        *slog.Logger
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(deps.CORS))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", deps.HealthHandler.LivenessHandler())
	r.Get("/health/ready", deps.HealthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(deps.Service, deps.Logger)
	oauthHandler := NewOAuthHandler(deps.OAuth, deps.Service, deps.Logger)

	// Token validator that bridges to the internal JWTManager.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := deps.JWTManager.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			AccountID: claims.AccountID,
			Role:      claims.Role,
		}, nil
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Public endpoints
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(RateLimit(deps.Limiter, deps.Logger))

			r.Post("/register", authHandler.Register)
			r.Post("/verify-otp", authHandler.VerifyOTP)
			r.Post("/resend-otp", authHandler.ResendOTP)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password/{token}", authHandler.ResetPassword)
		})

		// Browser redirect flow, no JSON body
		r.Get("/google", oauthHandler.GoogleLogin)
		r.Get("/google/callback", oauthHandler.GoogleCallback)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))

			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	})

	return r
}
