package hub

import (
	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

// runLivenessSweep is the hub's failure detector. Every heartbeat interval
// it walks the registry: a connection that has not answered a ping since
// the previous sweep is removed and hard-terminated; everyone else has the
// alive flag cleared and gets a fresh ping. A silent peer therefore lasts
// at most two sweep cycles. The same tick also clears out connections whose
// sockets closed without running the disconnect path.
func (h *Hub) runLivenessSweep() {
	defer h.wg.Done()

	ticker := h.clock.Ticker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweepOnce()
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) sweepOnce() {
	stale := h.registry.SweepClosed()
	for range stale {
		monitoring.ConnectionsActive.Dec()
		monitoring.DeadConnectionsSwept.Inc()
	}
	if len(stale) > 0 {
		h.logger.Info().
			Int("removed", len(stale)).
			Msg("Swept closed connections from registry")
	}

	for _, c := range h.registry.Snapshot() {
		if !c.alive.Load() {
			if h.registry.Remove(c) {
				monitoring.ConnectionsActive.Dec()
			}
			monitoring.DeadConnectionsSwept.Inc()
			c.terminate()
			h.logger.Info().
				Int64("client_id", c.id).
				Str("address", c.identity.Address).
				Msg("Terminated unresponsive connection")
			continue
		}

		c.alive.Store(false)
		c.requestPing()
	}
}
