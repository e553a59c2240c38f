package hub

import (
	"bufio"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/MevGhost/sofi-launch-sub003/internal/monitoring"
)

// writePump is the sole writer to a connection's socket, so outbound frames
// reach the peer in call order. It batches queued frames through a buffered
// writer to cut syscalls, and emits the liveness pings requested by the
// sweep.
func (h *Hub) writePump(c *Conn) {
	defer h.wg.Done()
	defer monitoring.RecoverPanic(h.logger, "writePump", map[string]any{
		"client_id": c.id,
	})

	writer := bufio.NewWriter(c.sock)

	defer func() {
		c.closed.Store(true)
		c.sock.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))

			if err := wsutil.WriteServerMessage(writer, ws.OpText, frame); err != nil {
				h.logger.Debug().Err(err).Int64("client_id", c.id).Msg("Failed to write message")
				return
			}
			monitoring.MessagesSent.Inc()

			// Drain whatever queued up behind the first frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				frame = <-c.send
				if err := wsutil.WriteServerMessage(writer, ws.OpText, frame); err != nil {
					h.logger.Debug().Err(err).Int64("client_id", c.id).Msg("Failed to write message")
					return
				}
				monitoring.MessagesSent.Inc()
			}

			if err := writer.Flush(); err != nil {
				h.logger.Debug().Err(err).Int64("client_id", c.id).Msg("Failed to flush writer")
				return
			}

		case <-c.pingCh:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.sock, ws.OpPing, nil); err != nil {
				h.logger.Debug().Err(err).Int64("client_id", c.id).Msg("Failed to send ping")
				return
			}

		case payload := <-c.pongCh:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.sock, ws.OpPong, payload); err != nil {
				h.logger.Debug().Err(err).Int64("client_id", c.id).Msg("Failed to send pong")
				return
			}

		case <-c.done:
			if c.hard.Load() {
				// Socket already torn down by terminate.
				return
			}
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			body := ws.NewCloseFrameBody(c.closeCode, c.closeReason)
			wsutil.WriteServerMessage(c.sock, ws.OpClose, body)
			return
		}
	}
}
