// Package handler provides HTTP handlers for the escalation core's JSON API:
// request detail, match diagnostics, donor responses, donation reporting and
// verification, and donor eligibility.
package handler

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/share4life/blood-core/internal/api/respond"
	"github.com/share4life/blood-core/internal/config"
	"github.com/share4life/blood-core/internal/eligibility"
	"github.com/share4life/blood-core/internal/fulfill"
	"github.com/share4life/blood-core/internal/match"
	"github.com/share4life/blood-core/internal/notify"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool     *pgxpool.Pool
	cfg      *config.Config
	matcher  *match.Matcher
	calc     eligibility.Calculator
	fulfill  *fulfill.Service
	realtime *notify.Realtime
}

// New creates a Handler with shared dependencies.
func New(pool *pgxpool.Pool, cfg *config.Config, matcher *match.Matcher, fulfillSvc *fulfill.Service, realtime *notify.Realtime) *Handler {
	return &Handler{
		pool:     pool,
		cfg:      cfg,
		matcher:  matcher,
		calc:     eligibility.Calculator{Cooldown: cfg.EligibilityCooldown},
		fulfill:  fulfillSvc,
		realtime: realtime,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Share4Life Blood Escalation API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n)
	if err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckRedis verifies the realtime broker connection.
// @Summary Redis health check
// @Description Verifies the realtime pub/sub broker connection.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/redis [get]
func (h *Handler) HealthCheckRedis(w http.ResponseWriter, r *http.Request) {
	if err := h.realtime.Ping(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"redis":     "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"redis":     "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
