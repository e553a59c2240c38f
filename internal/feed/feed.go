// Package feed consumes platform events from NATS and hands them to the
// hub for fan-out. The hub stays usable without it: when no NATS URL is
// configured the process simply runs without an upstream feed.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/MevGhost/sofi-launch-sub003/internal/hub"
	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

// Publisher is the slice of the hub the feed needs.
type Publisher interface {
	Publish(evt hub.Event) int
}

type Config struct {
	URL           string
	Subject       string // defaults to "events.>"
	MaxReconnects int    // defaults to -1 (retry forever)
	ReconnectWait time.Duration
}

// Consumer bridges a NATS subject hierarchy into the hub. Wire messages
// carry {"type": "...", "data": {...}}; the type selects the payload
// shape and unknown types are counted and dropped.
type Consumer struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	target Publisher
	logger zerolog.Logger
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewConsumer(cfg Config, target Publisher, logger zerolog.Logger) (*Consumer, error) {
	if cfg.Subject == "" {
		cfg.Subject = "events.>"
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	c := &Consumer{
		target: target,
		logger: logger.With().Str("component", "feed").Logger(),
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitoring.FeedConnected.Set(0)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			monitoring.FeedConnected.Set(1)
			c.logger.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Error().Err(err).Msg("NATS error")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.conn = conn
	monitoring.FeedConnected.Set(1)

	sub, err := conn.Subscribe(cfg.Subject, c.handleMessage)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Subject, err)
	}
	c.sub = sub

	c.logger.Info().
		Str("url", cfg.URL).
		Str("subject", cfg.Subject).
		Msg("Event feed connected")

	return c, nil
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	monitoring.FeedEventsReceived.Inc()

	var raw wireEvent
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		monitoring.FeedEventsRejected.Inc()
		c.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Malformed feed event")
		return
	}

	evt, err := hub.DecodeEvent(raw.Type, raw.Data)
	if err != nil {
		monitoring.FeedEventsRejected.Inc()
		c.logger.Warn().
			Err(err).
			Str("subject", msg.Subject).
			Str("event_type", raw.Type).
			Msg("Rejected feed event")
		return
	}

	c.target.Publish(evt)
}

func (c *Consumer) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Stop drains the subscription so in-flight handlers finish, then closes
// the connection.
func (c *Consumer) Stop() {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to drain NATS subscription")
		}
	}
	if c.conn != nil {
		c.conn.Close()
	}
	monitoring.FeedConnected.Set(0)
	c.logger.Info().Msg("Event feed stopped")
}
