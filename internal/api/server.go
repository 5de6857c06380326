package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/share4life/blood-core/internal/api/handler"
	"github.com/share4life/blood-core/internal/config"
	"github.com/share4life/blood-core/internal/fulfill"
	"github.com/share4life/blood-core/internal/match"
	"github.com/share4life/blood-core/internal/notify"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, matcher *match.Matcher, fulfillSvc *fulfill.Service, realtime *notify.Realtime) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "Link"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(pool, cfg, matcher, fulfillSvc, realtime)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/redis", h.HealthCheckRedis)
	})

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Requests
		r.Route("/requests/{requestID}", func(r chi.Router) {
			r.Get("/", h.GetRequest)
			r.Get("/matches", h.GetRequestMatches)
			r.Post("/respond", h.RespondToRequest)
			r.Post("/donations", h.ReportDonation)
		})

		// Donations
		r.Post("/donations/{donationID}/verify", h.VerifyDonation)

		// Donors
		r.Get("/donors/{donorID}/eligibility", h.GetDonorEligibility)
	})

	return r
}
