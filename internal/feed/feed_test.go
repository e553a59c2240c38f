package feed

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MevGhost/sofi-launch-sub003/internal/hub"
)

type capturingHub struct {
	events []hub.Event
}

func (c *capturingHub) Publish(evt hub.Event) int {
	c.events = append(c.events, evt)
	return 1
}

func newTestConsumer(target Publisher) *Consumer {
	return &Consumer{target: target, logger: zerolog.Nop()}
}

func TestHandleMessageForwardsTypedEvents(t *testing.T) {
	sink := &capturingHub{}
	c := newTestConsumer(sink)

	c.handleMessage(&nats.Msg{
		Subject: "events.escrow.created",
		Data:    []byte(`{"type":"escrow:created","data":{"escrowId":"e1","kolAddress":"0xkol","projectAddress":"0xproject"}}`),
	})

	require.Len(t, sink.events, 1)
	require.Equal(t, hub.EventEscrowCreated, sink.events[0].Type)
	require.Equal(t, hub.EscrowPayload{
		EscrowID:       "e1",
		KolAddress:     "0xkol",
		ProjectAddress: "0xproject",
	}, sink.events[0].Payload)
}

func TestHandleMessageRejectsMalformedJSON(t *testing.T) {
	sink := &capturingHub{}
	c := newTestConsumer(sink)

	c.handleMessage(&nats.Msg{Subject: "events.x", Data: []byte(`not json`)})
	require.Empty(t, sink.events)
}

func TestHandleMessageRejectsUnknownTypes(t *testing.T) {
	sink := &capturingHub{}
	c := newTestConsumer(sink)

	c.handleMessage(&nats.Msg{
		Subject: "events.x",
		Data:    []byte(`{"type":"escrow:imploded","data":{}}`),
	})
	require.Empty(t, sink.events)
}

func TestHandleMessageRejectsMismatchedPayload(t *testing.T) {
	sink := &capturingHub{}
	c := newTestConsumer(sink)

	// A payload whose shape contradicts its declared type fails decoding.
	c.handleMessage(&nats.Msg{
		Subject: "events.x",
		Data:    []byte(`{"type":"escrow:created","data":["not","an","object"]}`),
	})
	require.Empty(t, sink.events)
}
