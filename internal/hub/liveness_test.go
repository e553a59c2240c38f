package hub

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T, id int64, address string) *Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return newConn(id, server, Identity{UserID: "u", Address: address, Role: RoleUser}, 8)
}

func TestSweepPingsResponsiveConnections(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	c := pipeConn(t, 1, "0xabc")
	addConn(t, h, c)

	// First sweep clears the alive flag and requests a ping.
	h.sweepOnce()
	require.False(t, c.alive.Load())
	select {
	case <-c.pingCh:
	default:
		t.Fatal("expected a ping request")
	}
	require.Equal(t, 1, h.registry.Len())

	// A pong arriving before the next sweep keeps the connection.
	c.alive.Store(true)
	h.sweepOnce()
	require.Equal(t, 1, h.registry.Len())
	require.True(t, c.IsOpen())
}

func TestSweepTerminatesSilentConnectionsAfterTwoCycles(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	c := pipeConn(t, 1, "0xabc")
	addConn(t, h, c)

	h.sweepOnce()
	require.Equal(t, 1, h.registry.Len(), "one silent cycle is not yet fatal")

	// Still no pong by the second sweep: removed and hard-terminated.
	h.sweepOnce()
	require.Equal(t, 0, h.registry.Len())
	require.False(t, c.IsOpen())
	require.True(t, c.hard.Load())
}

func TestSweepRemovesAlreadyClosedConnections(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	dead := pipeConn(t, 1, "0xabc")
	live := pipeConn(t, 2, "0xdef")
	addConn(t, h, dead)
	addConn(t, h, live)

	// Socket closed without running the disconnect path.
	dead.closed.Store(true)

	h.sweepOnce()
	require.Equal(t, 1, h.registry.Len())
	require.Equal(t, 0, h.registry.CountForAddress("0xabc"))
	require.Equal(t, 1, h.registry.CountForAddress("0xdef"))
}
