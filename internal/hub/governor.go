package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

// inboundMessage is the only client→server frame shape the hub recognizes.
type inboundMessage struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

// handleFrame governs one inbound frame: rate limit by identity address,
// size check, structural check, then command dispatch. Every rejection
// replies with an error envelope and leaves the connection open;
// protocol mistakes are not close-worthy.
func (h *Hub) handleFrame(c *Conn, msg []byte, size int64) {
	addr := c.identity.Address

	if !h.msgLimiter.Allow(addr) {
		monitoring.RateLimitedMessages.Inc()
		retry := h.msgLimiter.RetryAfter(addr)
		h.logger.Warn().
			Int64("client_id", c.id).
			Str("address", addr).
			Dur("retry_after", retry).
			Msg("Client rate limited")

		env := NewEnvelope(msgTypeError, errorData{
			Code:       errCodeRateLimited,
			Message:    "too many messages, slow down",
			RetryAfter: retry.Milliseconds(),
		})
		c.sendEnvelope(env)
		return
	}

	if size > int64(h.opts.MaxFrameBytes) {
		c.sendEnvelope(errorEnvelope(errCodeMessageTooLarge, "message too large"))
		return
	}

	var req inboundMessage
	if err := json.Unmarshal(msg, &req); err != nil || req.Type == "" {
		c.sendEnvelope(errorEnvelope(errCodeInvalidMessage, "invalid message format"))
		return
	}

	switch req.Type {
	case "subscribe":
		h.handleSubscribe(c, req.Events)
	case "unsubscribe":
		h.handleUnsubscribe(c, req.Events)
	case "ping":
		c.sendEnvelope(NewEnvelope(msgTypePong, map[string]any{
			"time": time.Now().UnixMilli(),
		}))
	default:
		c.sendEnvelope(errorEnvelope(errCodeUnknownType,
			fmt.Sprintf("unknown message type %q", req.Type)))
	}
}

// handleSubscribe filters out oversized topic names, then admits topics up
// to the remaining budget toward the per-connection cap. The reply names
// exactly the accepted subset so the client can reconcile.
func (h *Hub) handleSubscribe(c *Conn, topics []string) {
	valid := make([]string, 0, len(topics))
	for _, topic := range topics {
		if topic != "" && len(topic) < h.opts.MaxTopicLen {
			valid = append(valid, topic)
		}
	}

	accepted := c.subs.AddUpTo(valid, h.opts.MaxTopics)

	h.logger.Debug().
		Int64("client_id", c.id).
		Strs("accepted", accepted).
		Int("held", c.subs.Count()).
		Msg("Client subscribed")

	c.sendEnvelope(NewEnvelope(msgTypeSubscribed, map[string]any{
		"events": accepted,
		"count":  c.subs.Count(),
	}))
}

func (h *Hub) handleUnsubscribe(c *Conn, topics []string) {
	c.subs.Remove(topics)

	h.logger.Debug().
		Int64("client_id", c.id).
		Strs("events", topics).
		Int("held", c.subs.Count()).
		Msg("Client unsubscribed")

	c.sendEnvelope(NewEnvelope(msgTypeUnsubscribed, map[string]any{
		"events": topics,
		"count":  c.subs.Count(),
	}))
}
