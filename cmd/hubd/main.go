package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/MevGhost/sofi-launch-sub003/internal/auth"
	"github.com/MevGhost/sofi-launch-sub003/internal/config"
	"github.com/MevGhost/sofi-launch-sub003/internal/feed"
	"github.com/MevGhost/sofi-launch-sub003/internal/hub"
	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

const tokenDuration = 24 * time.Hour

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		bootstrap := monitoring.NewLogger(monitoring.LoggerConfig{Level: "info", Format: "json"})
		bootstrap.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// automaxprocs sets GOMAXPROCS from the container CPU limit at import
	// time, before any of our goroutines start.
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("Runtime configured")
	cfg.LogConfig(logger)

	verifier := auth.NewManager(cfg.JWTSecret, tokenDuration)

	h := hub.New(hub.Options{
		Addr:                cfg.Addr,
		MaxPerAddress:       cfg.MaxConnectionsPerAddr,
		MaxTotal:            cfg.MaxConnections,
		MessagePoints:       cfg.MessagePoints,
		MessageWindow:       cfg.MessageWindow,
		MessageBlock:        cfg.MessageBlock,
		MaxFrameBytes:       int(cfg.MaxFrameBytes),
		MaxTopics:           cfg.MaxTopics,
		MaxTopicLen:         cfg.MaxTopicLen,
		ConnPoints:          cfg.ConnPoints,
		ConnWindow:          cfg.ConnWindow,
		ConnBlock:           cfg.ConnBlock,
		ConnGlobalRate:      float64(cfg.ConnGlobalRate),
		ConnGlobalBurst:     cfg.ConnGlobalBurst,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		MemoryThreshold:     int64(cfg.MemoryThreshold),
		MemoryCheckInterval: cfg.MemoryCheckInterval,
	}, verifier, logger)

	if err := h.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}

	var consumer *feed.Consumer
	if cfg.NatsURL != "" {
		consumer, err = feed.NewConsumer(feed.Config{
			URL:     cfg.NatsURL,
			Subject: cfg.NatsSubject,
		}, h, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect event feed")
		}
	} else {
		logger.Warn().Msg("NATS_URL not set, running without an upstream event feed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down server...")
	if consumer != nil {
		consumer.Stop()
	}
	if err := h.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}
