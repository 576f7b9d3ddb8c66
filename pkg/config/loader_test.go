package config_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25kamalesh/YapOps/pkg/config"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := config.Load(newTestLogger(), "no-such-config")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "jwt", cfg.Server.Auth.CookieName)
	assert.Equal(t, 5, cfg.Server.ConnectionLimit.MaxPerUser)
	assert.Equal(t, "reject", cfg.Server.ConnectionLimit.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Transport.ReadTimeout)
	assert.Equal(t, 54*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 256, cfg.Transport.SendBuffer)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 200, cfg.Store.HistoryLimit)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("YAPOPS_SERVER_ADDRESS", ":9999")
	t.Setenv("YAPOPS_STORE_BACKEND", "redis")

	cfg, err := config.Load(newTestLogger(), "no-such-config")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "redis", cfg.Store.Backend)
}
