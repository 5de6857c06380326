package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("S4L_DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/share4life")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.APIPort)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 180*time.Second, cfg.PingCooldown)
	require.Equal(t, 3, cfg.MaxRepings)
	require.Equal(t, time.Minute, cfg.StageInterval)
	require.Equal(t, time.Minute, cfg.LoopInterval)
	require.Equal(t, 60*time.Minute, cfg.MaxEscalationWindow)
	require.Equal(t, 30*time.Second, cfg.TickInterval)
	require.Equal(t, 4, cfg.TickWorkers)
	require.Equal(t, 5.0, cfg.RadiusSmallKm)
	require.Equal(t, 10.0, cfg.RadiusLargeKm)
	require.Equal(t, 90*24*time.Hour, cfg.EligibilityCooldown)
	require.True(t, cfg.RateLimitEnabled)
	require.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("S4L_DATABASE_URL", "postgres://db/s4l")
	t.Setenv("S4L_PING_COOLDOWN_SECONDS", "300")
	t.Setenv("S4L_MAX_REPINGS", "5")
	t.Setenv("S4L_EMERGENCY_ESCALATION_MAX_MINUTES", "120")
	t.Setenv("S4L_RADIUS_SMALL_KM", "7.5")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("API_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "postgres://db/s4l", cfg.DatabaseURL)
	require.Equal(t, 300*time.Second, cfg.PingCooldown)
	require.Equal(t, 5, cfg.MaxRepings)
	require.Equal(t, 120*time.Minute, cfg.MaxEscalationWindow)
	require.Equal(t, 7.5, cfg.RadiusSmallKm)
	require.Equal(t, 9000, cfg.APIPort)
	require.True(t, cfg.IsProduction())
}

func TestEnvList(t *testing.T) {
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DATABASE_URL", "postgres://localhost/share4life")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
}

func TestEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/share4life")
	t.Setenv("S4L_MAX_REPINGS", "not-a-number")
	t.Setenv("RATE_LIMIT_ENABLED", "not-a-bool")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxRepings)
	require.True(t, cfg.RateLimitEnabled)
}
