package limits

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ConnectionGate is the two-level admission limiter checked before a
// connection is authenticated. The global token bucket protects the process
// from distributed floods; the per-address limiter blocks individual peers
// that hammer the upgrade endpoint.
type ConnectionGate struct {
	global *rate.Limiter
	perIP  *KeyedLimiter
	logger zerolog.Logger
}

// ConnectionGateConfig holds gate configuration.
type ConnectionGateConfig struct {
	// Per network address limits
	Points int           // Attempts per window (default 10)
	Window time.Duration // Window length (default 60s)
	Block  time.Duration // Block after a violation (default 300s)

	// Global limits
	GlobalRate  float64 // Sustained upgrades/sec system-wide (default 50)
	GlobalBurst int     // Burst upgrades system-wide (default 300)

	Clock  clock.Clock
	Logger zerolog.Logger
}

// NewConnectionGate creates the admission gate.
func NewConnectionGate(config ConnectionGateConfig) *ConnectionGate {
	if config.Points <= 0 {
		config.Points = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Block <= 0 {
		config.Block = 5 * time.Minute
	}
	if config.GlobalRate <= 0 {
		config.GlobalRate = 50.0
	}
	if config.GlobalBurst <= 0 {
		config.GlobalBurst = 300
	}

	return &ConnectionGate{
		global: rate.NewLimiter(rate.Limit(config.GlobalRate), config.GlobalBurst),
		perIP: NewKeyedLimiter(KeyedLimiterConfig{
			Name:   "connection_gate",
			Points: config.Points,
			Window: config.Window,
			Block:  config.Block,
			Clock:  config.Clock,
			Logger: config.Logger,
		}),
		logger: config.Logger.With().Str("component", "connection_gate").Logger(),
	}
}

// Allow reports whether an upgrade attempt from the given network address
// may proceed. The global check runs first so a distributed flood is cut off
// before the per-address map is touched.
func (g *ConnectionGate) Allow(addr string) bool {
	if !g.global.Allow() {
		g.logger.Warn().
			Str("remote", addr).
			Msg("Connection rejected: global admission rate exceeded")
		return false
	}
	return g.perIP.Allow(addr)
}

// RetryAfter reports how long the given network address remains blocked.
func (g *ConnectionGate) RetryAfter(addr string) time.Duration {
	return g.perIP.RetryAfter(addr)
}

// Stop releases the gate's cleanup goroutine.
func (g *ConnectionGate) Stop() {
	g.perIP.Stop()
}
