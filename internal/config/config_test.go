package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-fulfillment/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":         "postgres://localhost/toko",
		"REDIS_URL":            "redis://localhost:6379/0",
		"PORT":                 "9090",
		"CORS_ALLOWED_ORIGINS": "https://admin.toko.test, ,https://ops.toko.test",
		"ALLOCATION_LOCK_TTL":  "",
		"ALLOCATION_LOCK_WAIT": "",
		"RATE_LIMIT_MAX":       "oops",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, []string{"https://admin.toko.test", "https://ops.toko.test"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 15*time.Second, cfg.AllocationLockTTL)
	require.Equal(t, 5*time.Second, cfg.AllocationLockWait)
	require.Equal(t, 120, cfg.RateLimitMax)
	require.True(t, cfg.MetricsEnabled)
}

func TestLoadRequiresDatabase(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379/0",
	})
	require.Error(t, err)
}

func TestLoadRejectsLockTTLShorterThanWait(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":         "postgres://localhost/toko",
		"REDIS_URL":            "redis://localhost:6379/0",
		"ALLOCATION_LOCK_TTL":  "1s",
		"ALLOCATION_LOCK_WAIT": "10s",
	})
	require.Error(t, err)
}
