// Package config loads server configuration from the environment, with an
// optional .env file for development convenience.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
//	required: Must be provided (no default)
type Config struct {
	// Server basics
	Addr string `env:"HUB_ADDR" envDefault:":3002"`

	// Auth
	JWTSecret string `env:"HUB_JWT_SECRET,required"`

	// Capacity
	MaxConnections        int `env:"HUB_MAX_CONNECTIONS" envDefault:"1000"`
	MaxConnectionsPerAddr int `env:"HUB_MAX_CONNECTIONS_PER_ADDR" envDefault:"5"`

	// Per-connection message rate limit
	MessagePoints int           `env:"HUB_MESSAGE_POINTS" envDefault:"100"`
	MessageWindow time.Duration `env:"HUB_MESSAGE_WINDOW" envDefault:"60s"`
	MessageBlock  time.Duration `env:"HUB_MESSAGE_BLOCK" envDefault:"60s"`

	// Per-IP connection rate limit
	ConnPoints int           `env:"HUB_CONN_POINTS" envDefault:"10"`
	ConnWindow time.Duration `env:"HUB_CONN_WINDOW" envDefault:"60s"`
	ConnBlock  time.Duration `env:"HUB_CONN_BLOCK" envDefault:"300s"`

	// Global connection admission bucket
	ConnGlobalRate  int `env:"HUB_CONN_GLOBAL_RATE" envDefault:"50"`
	ConnGlobalBurst int `env:"HUB_CONN_GLOBAL_BURST" envDefault:"300"`

	// Message constraints
	MaxFrameBytes int64 `env:"HUB_MAX_FRAME_BYTES" envDefault:"1048576"` // 1MB
	MaxTopics     int   `env:"HUB_MAX_TOPICS" envDefault:"10"`
	MaxTopicLen   int   `env:"HUB_MAX_TOPIC_LEN" envDefault:"100"`

	// Liveness
	HeartbeatInterval time.Duration `env:"HUB_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// Memory monitoring
	MemoryThreshold     uint64        `env:"HUB_MEMORY_THRESHOLD" envDefault:"524288000"` // 500MB
	MemoryCheckInterval time.Duration `env:"HUB_MEMORY_CHECK_INTERVAL" envDefault:"60s"`

	// Upstream event feed (optional; the hub runs standalone without it)
	NatsURL     string `env:"NATS_URL"`
	NatsSubject string `env:"NATS_SUBJECT" envDefault:"events.>"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// LoadConfig reads configuration from .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; in production the environment is
	// set directly and the file is absent.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("HUB_ADDR is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("HUB_JWT_SECRET is required")
	}

	if c.MaxConnections < 1 {
		return fmt.Errorf("HUB_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.MaxConnectionsPerAddr < 1 {
		return fmt.Errorf("HUB_MAX_CONNECTIONS_PER_ADDR must be > 0, got %d", c.MaxConnectionsPerAddr)
	}
	if c.MaxConnectionsPerAddr > c.MaxConnections {
		return fmt.Errorf("HUB_MAX_CONNECTIONS_PER_ADDR (%d) must be <= HUB_MAX_CONNECTIONS (%d)",
			c.MaxConnectionsPerAddr, c.MaxConnections)
	}

	if c.MessagePoints < 1 {
		return fmt.Errorf("HUB_MESSAGE_POINTS must be > 0, got %d", c.MessagePoints)
	}
	if c.MessageWindow <= 0 {
		return fmt.Errorf("HUB_MESSAGE_WINDOW must be positive, got %s", c.MessageWindow)
	}
	if c.ConnPoints < 1 {
		return fmt.Errorf("HUB_CONN_POINTS must be > 0, got %d", c.ConnPoints)
	}

	if c.MaxFrameBytes < 1 {
		return fmt.Errorf("HUB_MAX_FRAME_BYTES must be > 0, got %d", c.MaxFrameBytes)
	}
	if c.MaxTopics < 1 {
		return fmt.Errorf("HUB_MAX_TOPICS must be > 0, got %d", c.MaxTopics)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HUB_HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs the loaded configuration with structured fields. The JWT
// secret is never logged.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Int("max_connections", c.MaxConnections).
		Int("max_connections_per_addr", c.MaxConnectionsPerAddr).
		Int("message_points", c.MessagePoints).
		Dur("message_window", c.MessageWindow).
		Dur("message_block", c.MessageBlock).
		Int("conn_points", c.ConnPoints).
		Dur("conn_window", c.ConnWindow).
		Dur("conn_block", c.ConnBlock).
		Int("conn_global_rate", c.ConnGlobalRate).
		Int("conn_global_burst", c.ConnGlobalBurst).
		Int64("max_frame_bytes", c.MaxFrameBytes).
		Int("max_topics", c.MaxTopics).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Uint64("memory_threshold_mb", c.MemoryThreshold/(1024*1024)).
		Str("nats_url", c.NatsURL).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
