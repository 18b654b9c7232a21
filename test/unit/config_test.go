package unit

import (
	"testing"
	"time"

	"github.com/agare87900/aganor/internal/server"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := server.NewConfig()

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 3000, cfg.Port)
	assert.Empty(t, cfg.Password, "server is open by default")
	assert.Equal(t, ".", cfg.StaticDir)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, 120, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestConfigAddr(t *testing.T) {
	cfg := server.NewConfig()
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())

	cfg.Host = "127.0.0.1"
	cfg.Port = 8080
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PASSWORD", "hunter2")
	t.Setenv("STATIC_DIR", "/srv/game")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com, http://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "4096")
	t.Setenv("RATE_LIMIT_BURST", "60")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")

	cfg := server.NewConfigFromEnv()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, "/srv/game", cfg.StaticDir)
	assert.Equal(t, []string{"http://a.example.com", "http://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 60, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("RATE_LIMIT_BURST", "0")

	cfg := server.NewConfigFromEnv()

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, 120, cfg.RateLimit.Burst)
}
