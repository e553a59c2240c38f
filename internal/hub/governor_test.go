package hub

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, opts Options) (*Hub, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	h := newHub(opts, nil, zerolog.Nop(), mock)
	t.Cleanup(func() {
		h.gate.Stop()
		h.msgLimiter.Stop()
	})
	return h, mock
}

// recvEnvelope pops the next queued outbound frame. Fails the test when the
// write queue is empty.
func recvEnvelope(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	default:
		t.Fatal("no envelope queued")
		return Envelope{}
	}
}

func requireNoEnvelope(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected envelope queued: %s", frame)
	default:
	}
}

func errField(t *testing.T, env Envelope, field string) any {
	t.Helper()
	require.Equal(t, msgTypeError, env.Type)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok, "error envelope data should be an object")
	return data[field]
}

func frame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestGovernorSubscribeCapsAtBudget(t *testing.T) {
	h, _ := newTestHub(t, Options{MaxTopics: 10})
	c := testConn(1, "0xabc", RoleUser)

	topics := make([]string, 15)
	for i := range topics {
		topics[i] = fmt.Sprintf("topic:%d", i)
	}
	h.handleFrame(c, frame(t, map[string]any{"type": "subscribe", "events": topics}), 0)

	env := recvEnvelope(t, c)
	require.Equal(t, msgTypeSubscribed, env.Type)
	data := env.Data.(map[string]any)
	require.Len(t, data["events"], 10)
	require.EqualValues(t, 10, data["count"])
	require.Equal(t, 10, c.subs.Count())
	require.True(t, c.subs.Has("topic:0"))
	require.False(t, c.subs.Has("topic:10"))
}

func TestGovernorSubscribeIgnoresInvalidTopics(t *testing.T) {
	h, _ := newTestHub(t, Options{MaxTopics: 10, MaxTopicLen: 100})
	c := testConn(1, "0xabc", RoleUser)

	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	h.handleFrame(c, frame(t, map[string]any{
		"type":   "subscribe",
		"events": []string{"", string(long), "token:trade"},
	}), 0)

	env := recvEnvelope(t, c)
	require.Equal(t, msgTypeSubscribed, env.Type)
	data := env.Data.(map[string]any)
	require.Len(t, data["events"], 1)
	require.True(t, c.subs.Has("token:trade"))
	require.Equal(t, 1, c.subs.Count())
}

func TestGovernorResubscribeConsumesNoBudget(t *testing.T) {
	h, _ := newTestHub(t, Options{MaxTopics: 2})
	c := testConn(1, "0xabc", RoleUser)

	h.handleFrame(c, frame(t, map[string]any{"type": "subscribe", "events": []string{"a", "b"}}), 0)
	recvEnvelope(t, c)

	// Re-subscribing a held topic is accepted without displacing anything.
	h.handleFrame(c, frame(t, map[string]any{"type": "subscribe", "events": []string{"a"}}), 0)
	env := recvEnvelope(t, c)
	data := env.Data.(map[string]any)
	require.Len(t, data["events"], 1)
	require.Equal(t, 2, c.subs.Count())
}

func TestGovernorUnsubscribe(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	c := testConn(1, "0xabc", RoleUser)

	h.handleFrame(c, frame(t, map[string]any{"type": "subscribe", "events": []string{"a", "b"}}), 0)
	recvEnvelope(t, c)

	h.handleFrame(c, frame(t, map[string]any{"type": "unsubscribe", "events": []string{"a", "never-held"}}), 0)
	env := recvEnvelope(t, c)
	require.Equal(t, msgTypeUnsubscribed, env.Type)
	require.EqualValues(t, 1, env.Data.(map[string]any)["count"])
	require.False(t, c.subs.Has("a"))
	require.True(t, c.subs.Has("b"))
}

func TestGovernorPing(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	c := testConn(1, "0xabc", RoleUser)

	h.handleFrame(c, frame(t, map[string]any{"type": "ping"}), 0)
	env := recvEnvelope(t, c)
	require.Equal(t, msgTypePong, env.Type)
	require.Contains(t, env.Data.(map[string]any), "time")
}

func TestGovernorRejectsMalformedFrames(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	c := testConn(1, "0xabc", RoleUser)

	h.handleFrame(c, []byte("not json"), 8)
	require.Equal(t, errCodeInvalidMessage, errField(t, recvEnvelope(t, c), "code"))

	h.handleFrame(c, frame(t, map[string]any{"events": []string{"a"}}), 0)
	require.Equal(t, errCodeInvalidMessage, errField(t, recvEnvelope(t, c), "code"))

	h.handleFrame(c, frame(t, map[string]any{"type": "shout"}), 0)
	require.Equal(t, errCodeUnknownType, errField(t, recvEnvelope(t, c), "code"))
}

func TestGovernorRejectsOversizedFrames(t *testing.T) {
	h, _ := newTestHub(t, Options{MaxFrameBytes: 1024})
	c := testConn(1, "0xabc", RoleUser)

	h.handleFrame(c, nil, 2048)
	require.Equal(t, errCodeMessageTooLarge, errField(t, recvEnvelope(t, c), "code"))
}

func TestGovernorRateLimitsByAddress(t *testing.T) {
	h, mock := newTestHub(t, Options{
		MessagePoints: 2,
		MessageWindow: time.Minute,
		MessageBlock:  time.Minute,
	})
	c := testConn(1, "0xabc", RoleUser)

	for i := 0; i < 2; i++ {
		h.handleFrame(c, frame(t, map[string]any{"type": "ping"}), 0)
		require.Equal(t, msgTypePong, recvEnvelope(t, c).Type)
	}

	// The violating frame gets an error reply with the remaining block time;
	// the connection stays open.
	h.handleFrame(c, frame(t, map[string]any{"type": "ping"}), 0)
	env := recvEnvelope(t, c)
	require.Equal(t, errCodeRateLimited, errField(t, env, "code"))
	require.EqualValues(t, time.Minute.Milliseconds(), errField(t, env, "retryAfterMs"))
	require.True(t, c.IsOpen())

	// Rate limiting is keyed by address, so a second connection from the
	// same address shares the block.
	peer := testConn(2, "0xabc", RoleUser)
	h.handleFrame(peer, frame(t, map[string]any{"type": "ping"}), 0)
	require.Equal(t, errCodeRateLimited, errField(t, recvEnvelope(t, peer), "code"))

	// Other addresses are unaffected.
	other := testConn(3, "0xdef", RoleUser)
	h.handleFrame(other, frame(t, map[string]any{"type": "ping"}), 0)
	require.Equal(t, msgTypePong, recvEnvelope(t, other).Type)

	mock.Add(time.Minute)
	h.handleFrame(c, frame(t, map[string]any{"type": "ping"}), 0)
	require.Equal(t, msgTypePong, recvEnvelope(t, c).Type)
}

func TestGovernorRateLimitRunsBeforeSizeCheck(t *testing.T) {
	h, _ := newTestHub(t, Options{
		MessagePoints: 1,
		MessageWindow: time.Minute,
		MessageBlock:  time.Minute,
		MaxFrameBytes: 1024,
	})
	c := testConn(1, "0xabc", RoleUser)

	h.handleFrame(c, nil, 2048)
	require.Equal(t, errCodeMessageTooLarge, errField(t, recvEnvelope(t, c), "code"))

	// The oversized frame still consumed the budget point.
	h.handleFrame(c, nil, 2048)
	require.Equal(t, errCodeRateLimited, errField(t, recvEnvelope(t, c), "code"))
}
