package hub

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/require"
)

// startReadPump wires a connection pair to a running read pump and returns
// the client end of the pipe.
func startReadPump(t *testing.T, h *Hub, c *Conn) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	c.sock = server
	t.Cleanup(func() {
		client.Close()
		server.Close()
		h.wg.Wait()
	})

	h.wg.Add(1)
	go h.readPump(c)
	return client
}

// writeFragmented sends one message split into chunk-sized masked fragments.
func writeFragmented(t *testing.T, w io.Writer, payload []byte, chunk int) {
	t.Helper()
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		if end > len(payload) {
			end = len(payload)
		}
		op := ws.OpContinuation
		if off == 0 {
			op = ws.OpText
		}
		f := ws.NewFrame(op, end == len(payload), payload[off:end])
		f = ws.MaskFrame(f)
		require.NoError(t, ws.WriteFrame(w, f))
	}
}

func awaitEnvelope(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an envelope")
		return Envelope{}
	}
}

func TestReadPumpRejectsOversizedFragmentedMessage(t *testing.T) {
	h, _ := newTestHub(t, Options{MaxFrameBytes: 1024})
	c := testConn(1, "0xabc", RoleUser)
	addConn(t, h, c)
	client := startReadPump(t, h, c)

	// Each fragment's header passes the per-frame check; the cumulative
	// read must still stop at the limit and reject.
	payload := make([]byte, 8*1024)
	for i := range payload {
		payload[i] = 'x'
	}
	writeFragmented(t, client, payload, 512)

	env := awaitEnvelope(t, c)
	require.Equal(t, errCodeMessageTooLarge, errField(t, env, "code"))
	require.True(t, c.IsOpen())

	// The stream stays usable after the oversized message is discarded.
	ping := ws.MaskFrame(ws.NewFrame(ws.OpText, true, []byte(`{"type":"ping"}`)))
	require.NoError(t, ws.WriteFrame(client, ping))
	require.Equal(t, msgTypePong, awaitEnvelope(t, c).Type)
}

func TestReadPumpAcceptsFragmentedMessageWithinLimit(t *testing.T) {
	h, _ := newTestHub(t, Options{MaxFrameBytes: 1024})
	c := testConn(1, "0xabc", RoleUser)
	addConn(t, h, c)
	client := startReadPump(t, h, c)

	writeFragmented(t, client, []byte(`{"type":"subscribe","events":["token:trade"]}`), 8)

	env := awaitEnvelope(t, c)
	require.Equal(t, msgTypeSubscribed, env.Type)
	require.True(t, c.subs.Has("token:trade"))
}
