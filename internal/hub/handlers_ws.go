package hub

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

// handleSocket runs the full admission sequence: connection-rate gate,
// transport upgrade, credential verification, then registry admission under
// the quotas. Every rejection after the upgrade sends an error envelope
// before the close frame so the client learns why.
func (h *Hub) handleSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := clientIP(r)

	if h.shuttingDown.Load() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	// Connection admission limiter runs before any credential work so a
	// flood cannot burn CPU on signature verification.
	if !h.gate.Allow(clientIP) {
		h.logger.Warn().
			Str("client_ip", clientIP).
			Dur("retry_after", h.gate.RetryAfter(clientIP)).
			Msg("Connection rejected: too many connections")
		monitoring.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	sock, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("client_ip", clientIP).
			Msg("WebSocket upgrade failed")
		monitoring.ConnectionsRejected.WithLabelValues("upgrade_failed").Inc()
		return
	}

	claims, err := h.verifier.VerifyRequest(r)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("client_ip", clientIP).
			Msg("Connection rejected: authentication failed")
		monitoring.ConnectionsRejected.WithLabelValues("auth_failed").Inc()
		rejectSocket(sock, errCodeAuthFailed, "authentication required")
		return
	}

	identity := Identity{
		UserID:  claims.UserID,
		Address: strings.ToLower(claims.Address),
		Role:    claims.Role,
	}

	c := newConn(h.connSeq.Add(1), sock, identity, sendBufferSize)

	evicted, err := h.registry.Add(c)
	if err != nil {
		h.logger.Warn().
			Str("address", identity.Address).
			Int("total", h.registry.Len()).
			Msg("Connection rejected: server full")
		monitoring.ConnectionsRejected.WithLabelValues("server_full").Inc()
		rejectSocket(sock, errCodeServerFull, "server at capacity")
		return
	}
	if evicted != nil {
		h.logger.Info().
			Str("address", identity.Address).
			Int64("evicted_id", evicted.id).
			Msg("Evicted oldest connection for address")
		monitoring.ConnectionsEvicted.Inc()
		monitoring.ConnectionsActive.Dec()
		evicted.closeWithStatus(ws.StatusPolicyViolation, "connection limit exceeded")
	}

	monitoring.ConnectionsTotal.Inc()
	monitoring.ConnectionsActive.Inc()

	c.sendEnvelope(NewEnvelope(msgTypeConnection, map[string]any{
		"status":  "authenticated",
		"address": identity.Address,
	}))

	h.logger.Info().
		Int64("client_id", c.id).
		Str("address", identity.Address).
		Str("role", identity.Role).
		Str("client_ip", clientIP).
		Int("total_connections", h.registry.Len()).
		Msg("Client connected")

	h.wg.Add(2)
	go h.writePump(c)
	go h.readPump(c)
}

// rejectSocket sends an error envelope followed by a policy-violation close
// on a socket that never reached the registry. Best effort: the peer may
// already be gone.
func rejectSocket(sock net.Conn, code, message string) {
	defer sock.Close()

	sock.SetWriteDeadline(time.Now().Add(writeWait))
	if frame, err := errorEnvelope(code, message).encode(); err == nil {
		wsutil.WriteServerMessage(sock, ws.OpText, frame)
	}
	body := ws.NewCloseFrameBody(ws.StatusPolicyViolation, message)
	wsutil.WriteServerMessage(sock, ws.OpClose, body)
}

// clientIP extracts the peer address, honoring X-Forwarded-For when the hub
// sits behind a load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
