// Package hub implements the real-time broadcast hub: it admits
// authenticated WebSocket connections under quota, governs their inbound
// traffic, tracks liveness, and fans out domain events to subscribers under
// ownership-based authorization.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/MevGhost/sofi-launch-sub003/internal/auth"
	"github.com/MevGhost/sofi-launch-sub003/internal/limits"
	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

const (
	// Time allowed to complete one write to a peer.
	writeWait = 5 * time.Second

	// Per-connection outbound buffer. Full buffer = dropped delivery, the
	// slow client problem stays local to that client.
	sendBufferSize = 256
)

// Options configures the hub. Zero fields take the documented defaults.
type Options struct {
	Addr string

	MaxPerAddress int // Connections per address before FIFO eviction (default 5)
	MaxTotal      int // Global connection cap, rejects outright (default 1000)

	// Inbound message governor
	MessagePoints int           // Frames per window per address (default 100)
	MessageWindow time.Duration // default 60s
	MessageBlock  time.Duration // default 60s
	MaxFrameBytes int           // default 1 MiB
	MaxTopics     int           // Subscription cap per connection (default 10)
	MaxTopicLen   int           // Topics at or over this length are ignored (default 100)

	// Connection admission gate
	ConnPoints      int           // Upgrade attempts per window per IP (default 10)
	ConnWindow      time.Duration // default 60s
	ConnBlock       time.Duration // default 300s
	ConnGlobalRate  float64       // default 50/s
	ConnGlobalBurst int           // default 300

	HeartbeatInterval time.Duration // Liveness sweep period (default 30s)

	MemoryThreshold     int64         // Heap warning threshold (default 500MB)
	MemoryCheckInterval time.Duration // default 60s
}

func (o *Options) applyDefaults() {
	if o.MaxPerAddress <= 0 {
		o.MaxPerAddress = 5
	}
	if o.MaxTotal <= 0 {
		o.MaxTotal = 1000
	}
	if o.MessagePoints <= 0 {
		o.MessagePoints = 100
	}
	if o.MessageWindow <= 0 {
		o.MessageWindow = time.Minute
	}
	if o.MessageBlock <= 0 {
		o.MessageBlock = time.Minute
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 1 << 20
	}
	if o.MaxTopics <= 0 {
		o.MaxTopics = 10
	}
	if o.MaxTopicLen <= 0 {
		o.MaxTopicLen = 100
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.MemoryCheckInterval <= 0 {
		o.MemoryCheckInterval = time.Minute
	}
}

// Hub owns the registry, the limiters, and the background monitors. It is
// created by the process startup routine and injected into everything that
// publishes; there is no package-level state.
type Hub struct {
	opts   Options
	logger zerolog.Logger
	clock  clock.Clock

	registry   *Registry
	gate       *limits.ConnectionGate
	msgLimiter *limits.KeyedLimiter
	verifier   *auth.Manager
	resMon     *monitoring.ResourceMonitor

	listener net.Listener
	connSeq  atomic.Int64

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
	startTime    time.Time
}

// New creates a hub. The verifier is required: the primary policy admits no
// anonymous connections.
func New(opts Options, verifier *auth.Manager, logger zerolog.Logger) *Hub {
	return newHub(opts, verifier, logger, clock.New())
}

func newHub(opts Options, verifier *auth.Manager, logger zerolog.Logger, clk clock.Clock) *Hub {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		opts:      opts,
		logger:    logger.With().Str("component", "hub").Logger(),
		clock:     clk,
		registry:  NewRegistry(opts.MaxPerAddress, opts.MaxTotal),
		verifier:  verifier,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	h.gate = limits.NewConnectionGate(limits.ConnectionGateConfig{
		Points:      opts.ConnPoints,
		Window:      opts.ConnWindow,
		Block:       opts.ConnBlock,
		GlobalRate:  opts.ConnGlobalRate,
		GlobalBurst: opts.ConnGlobalBurst,
		Clock:       clk,
		Logger:      logger,
	})

	h.msgLimiter = limits.NewKeyedLimiter(limits.KeyedLimiterConfig{
		Name:   "message_governor",
		Points: opts.MessagePoints,
		Window: opts.MessageWindow,
		Block:  opts.MessageBlock,
		Clock:  clk,
		Logger: logger,
	})

	h.resMon = monitoring.NewResourceMonitor(monitoring.ResourceMonitorConfig{
		Threshold: opts.MemoryThreshold,
		Interval:  opts.MemoryCheckInterval,
		Clock:     clk,
		ConnCount: h.registry.Len,
		Logger:    logger,
	})

	return h
}

// Start binds the listener and launches the HTTP server, the liveness
// sweep, and the resource monitor.
func (h *Hub) Start() error {
	listener, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	h.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleSocket)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics", monitoring.Handler())

	server := &http.Server{
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error().Err(err).Msg("Server accept loop error")
		}
	}()

	h.wg.Add(1)
	go h.runLivenessSweep()

	h.resMon.Start(h.ctx)

	h.logger.Info().
		Str("addr", h.opts.Addr).
		Int("max_per_address", h.opts.MaxPerAddress).
		Int("max_total", h.opts.MaxTotal).
		Dur("heartbeat_interval", h.opts.HeartbeatInterval).
		Msg("Hub listening")

	return nil
}

// Shutdown stops accepting connections, closes every live session, and
// waits for background goroutines to exit.
func (h *Hub) Shutdown() error {
	h.logger.Info().Msg("Initiating shutdown")
	h.shuttingDown.Store(true)

	if h.listener != nil {
		h.listener.Close()
	}

	for _, c := range h.registry.Snapshot() {
		c.closeWithStatus(ws.StatusGoingAway, "server shutting down")
	}

	h.cancel()
	h.gate.Stop()
	h.msgLimiter.Stop()

	h.wg.Wait()
	h.resMon.Wait()

	h.logger.Info().Msg("Shutdown complete")
	return nil
}

// GetStats returns a point-in-time occupancy snapshot.
func (h *Hub) GetStats() Stats {
	return h.registry.Stats()
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	body := map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"stats":          stats,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write health response")
	}
}

// disconnect removes a connection from the registry and closes it. Safe to
// call from any goroutine and for connections already removed.
func (h *Hub) disconnect(c *Conn, reason string) {
	if h.registry.Remove(c) {
		monitoring.ConnectionsActive.Dec()
	}
	c.closeWithStatus(ws.StatusNormalClosure, reason)

	h.logger.Debug().
		Int64("client_id", c.id).
		Str("address", c.identity.Address).
		Str("reason", reason).
		Int64("inbound_messages", c.inbound.Load()).
		Dur("connected", time.Since(c.connectedAt)).
		Msg("Client disconnected")
}
