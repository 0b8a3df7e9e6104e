package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg := LoadServer()

	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, "deepshield.db", cfg.DatabasePath)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, int64(52428800), cfg.MaxUploadBytes)
	assert.Equal(t, 5, cfg.OTPRateLimit)
	assert.Equal(t, 10, cfg.DetectRateLimit)
	assert.Equal(t, 5, cfg.ComplaintRateLimit)
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("TOKEN_TTL_MINUTES", "5")
	t.Setenv("OTP_RATE_LIMIT", "2")

	cfg := LoadServer()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 2, cfg.OTPRateLimit)
}

func TestLoadClientDefaults(t *testing.T) {
	cfg := LoadClient()

	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.NotEmpty(t, cfg.StatePath)
}

func TestLoadClientStatePathHonorsXDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	cfg := LoadClient()
	assert.Equal(t, "/tmp/xdg-state/shieldctl/state.db", cfg.StatePath)
}
