package hub

import (
	"io"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

// readPump consumes frames from one connection in receipt order and feeds
// the inbound governor. Control frames are handled here so pongs can flip
// the liveness flag; replies go through the write pump, which stays the
// socket's only writer. No read deadline is set: silent peers are the
// sweep's job, and its terminate unblocks the read.
func (h *Hub) readPump(c *Conn) {
	defer h.wg.Done()
	defer monitoring.RecoverPanic(h.logger, "readPump", map[string]any{
		"client_id": c.id,
	})
	defer h.disconnect(c, "read closed")

	rd := wsutil.Reader{
		Source: c.sock,
		State:  ws.StateServerSide,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}

		switch hdr.OpCode {
		case ws.OpClose:
			return

		case ws.OpPong:
			c.alive.Store(true)
			if err := rd.Discard(); err != nil {
				return
			}

		case ws.OpPing:
			payload, err := io.ReadAll(&rd)
			if err != nil {
				return
			}
			c.requestPong(payload)

		case ws.OpText, ws.OpBinary:
			monitoring.MessagesReceived.Inc()
			c.inbound.Add(1)

			// Oversized frames are discarded off the stream without
			// buffering; the governor still charges and rejects them.
			if hdr.Length > int64(h.opts.MaxFrameBytes) {
				if err := rd.Discard(); err != nil {
					return
				}
				h.handleFrame(c, nil, hdr.Length)
				continue
			}

			// The header length only covers the first fragment. Cap the
			// read so a message streamed in small fragments cannot buffer
			// past the limit; one extra byte distinguishes at-limit from
			// over-limit.
			limit := int64(h.opts.MaxFrameBytes)
			msg, err := io.ReadAll(io.LimitReader(&rd, limit+1))
			if err != nil {
				return
			}
			if int64(len(msg)) > limit {
				if err := rd.Discard(); err != nil {
					return
				}
				h.handleFrame(c, nil, int64(len(msg)))
				continue
			}
			h.handleFrame(c, msg, int64(len(msg)))

		default:
			if err := rd.Discard(); err != nil {
				return
			}
		}
	}
}
