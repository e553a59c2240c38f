package hub

import (
	"strings"

	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

// Publish fans out one domain event. A connection receives the envelope iff
// it is open, subscribed to the event type (or the wildcard), and the
// authorization filter approves its identity. Returns the number of
// deliveries handed to write pumps; publication is otherwise
// fire-and-forget.
//
// Failed or dropped deliveries are logged per recipient, so one bad socket
// never blocks the rest of the fan-out.
func (h *Hub) Publish(evt Event) int {
	env := NewEnvelope(string(evt.Type), evt.Payload)
	frame, err := env.encode()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event_type", string(evt.Type)).
			Msg("Failed to encode event envelope")
		return 0
	}

	monitoring.EventsPublished.WithLabelValues(string(evt.Type)).Inc()

	delivered := 0
	for _, c := range h.registry.Snapshot() {
		if !c.IsOpen() {
			continue
		}
		if !c.subs.Has(string(evt.Type)) && !c.subs.Has(TopicWildcard) {
			continue
		}
		if !authorized(c.identity, evt) {
			continue
		}

		if c.enqueue(frame) {
			delivered++
			monitoring.EventsDelivered.WithLabelValues(string(evt.Type)).Inc()
		} else {
			monitoring.DroppedDeliveries.Inc()
			h.logger.Warn().
				Int64("client_id", c.id).
				Str("address", c.identity.Address).
				Str("event_type", string(evt.Type)).
				Msg("Dropped delivery: send buffer full")
		}
	}

	return delivered
}

// SendToAddress delivers an envelope to every open connection under the
// given address. The caller is trusted: the authorization filter is
// bypassed. Returns the delivery count.
func (h *Hub) SendToAddress(address string, env Envelope) int {
	frame, err := env.encode()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode envelope")
		return 0
	}

	delivered := 0
	for _, c := range h.registry.ForAddress(strings.ToLower(address)) {
		if c.IsOpen() && c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// SendToUser delivers to every connection bound to the given user and
// reports whether at least one delivery succeeded.
func (h *Hub) SendToUser(userID string, env Envelope) bool {
	frame, err := env.encode()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode envelope")
		return false
	}

	delivered := false
	for _, c := range h.registry.Snapshot() {
		if c.identity.UserID != userID {
			continue
		}
		if c.IsOpen() && c.enqueue(frame) {
			delivered = true
		}
	}
	return delivered
}

// SendToRole delivers to every open connection whose identity holds the
// given role. Returns the delivery count.
func (h *Hub) SendToRole(role string, env Envelope) int {
	frame, err := env.encode()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode envelope")
		return 0
	}

	delivered := 0
	for _, c := range h.registry.Snapshot() {
		if c.identity.Role != role {
			continue
		}
		if c.IsOpen() && c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// BroadcastAll delivers to every open connection unconditionally, with no
// subscription or authorization filtering, unlike Publish. Returns the
// delivery count.
func (h *Hub) BroadcastAll(env Envelope) int {
	frame, err := env.encode()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode envelope")
		return 0
	}

	delivered := 0
	for _, c := range h.registry.Snapshot() {
		if c.IsOpen() && c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}
