package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AUTO_CANCEL_PENDING_HOURS", "")
	t.Setenv("RETURN_WINDOW_DAYS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24, cfg.Business.AutoCancelPendingHours)
	assert.Equal(t, 15*time.Minute, cfg.Business.AutoCancelInterval)
	assert.Equal(t, 0, cfg.Business.ReturnWindowDays)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example.com,https://admin.example.com")
	t.Setenv("AUTO_CANCEL_PENDING_HOURS", "48")
	t.Setenv("AUTO_CANCEL_INTERVAL_MINUTES", "5")
	t.Setenv("RETURN_WINDOW_DAYS", "7")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 48, cfg.Business.AutoCancelPendingHours)
	assert.Equal(t, 5*time.Minute, cfg.Business.AutoCancelInterval)
	assert.Equal(t, 7, cfg.Business.ReturnWindowDays)
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	assert.Equal(t, 3, getEnvInt("REDIS_DB", 3))
}

func TestLoadRejectsNonPositiveSweepSettings(t *testing.T) {
	t.Setenv("AUTO_CANCEL_PENDING_HOURS", "-1")
	t.Setenv("AUTO_CANCEL_INTERVAL_MINUTES", "0")
	t.Setenv("SWEEP_LOCK_TTL_SECONDS", "-30")

	cfg := Load()

	assert.Equal(t, 24, cfg.Business.AutoCancelPendingHours)
	assert.Equal(t, 15*time.Minute, cfg.Business.AutoCancelInterval)
	assert.Equal(t, 300*time.Second, cfg.Business.SweepLockTTL)
}
