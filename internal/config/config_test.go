package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HUB_JWT_SECRET", "test-secret")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	require.Equal(t, ":3002", cfg.Addr)
	require.Equal(t, 1000, cfg.MaxConnections)
	require.Equal(t, 5, cfg.MaxConnectionsPerAddr)
	require.Equal(t, 100, cfg.MessagePoints)
	require.Equal(t, time.Minute, cfg.MessageWindow)
	require.Equal(t, time.Minute, cfg.MessageBlock)
	require.Equal(t, 10, cfg.ConnPoints)
	require.Equal(t, 5*time.Minute, cfg.ConnBlock)
	require.Equal(t, int64(1<<20), cfg.MaxFrameBytes)
	require.Equal(t, 10, cfg.MaxTopics)
	require.Equal(t, 100, cfg.MaxTopicLen)
	require.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, uint64(500*1024*1024), cfg.MemoryThreshold)
	require.Equal(t, "events.>", cfg.NatsSubject)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Empty(t, cfg.NatsURL)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	// caarlos0/env enforces the required tag.
	_, err := LoadConfig(nil)
	require.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HUB_JWT_SECRET", "test-secret")
	t.Setenv("HUB_ADDR", ":9000")
	t.Setenv("HUB_MAX_CONNECTIONS", "50")
	t.Setenv("HUB_MAX_CONNECTIONS_PER_ADDR", "2")
	t.Setenv("HUB_MESSAGE_WINDOW", "30s")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Addr)
	require.Equal(t, 50, cfg.MaxConnections)
	require.Equal(t, 2, cfg.MaxConnectionsPerAddr)
	require.Equal(t, 30*time.Second, cfg.MessageWindow)
	require.Equal(t, "nats://localhost:4222", cfg.NatsURL)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Addr:                  ":3002",
			JWTSecret:             "s",
			MaxConnections:        1000,
			MaxConnectionsPerAddr: 5,
			MessagePoints:         100,
			MessageWindow:         time.Minute,
			ConnPoints:            10,
			MaxFrameBytes:         1 << 20,
			MaxTopics:             10,
			HeartbeatInterval:     30 * time.Second,
			LogLevel:              "info",
			LogFormat:             "json",
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"empty secret", func(c *Config) { c.JWTSecret = "" }},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero per-addr cap", func(c *Config) { c.MaxConnectionsPerAddr = 0 }},
		{"per-addr cap above global", func(c *Config) { c.MaxConnectionsPerAddr = 2000 }},
		{"zero message points", func(c *Config) { c.MessagePoints = 0 }},
		{"zero message window", func(c *Config) { c.MessageWindow = 0 }},
		{"zero conn points", func(c *Config) { c.ConnPoints = 0 }},
		{"zero frame bytes", func(c *Config) { c.MaxFrameBytes = 0 }},
		{"zero topics", func(c *Config) { c.MaxTopics = 0 }},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
