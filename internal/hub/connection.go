package hub

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
)

// Identity is the authenticated tuple bound to a connection. Address is
// always lowercase.
type Identity struct {
	UserID  string
	Address string
	Role    string
}

// Roles carried in credential tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Subscription wildcard: a connection holding it receives every event type
// its identity is authorized for.
const TopicWildcard = "*"

// Conn is one live WebSocket session after authentication. The write pump
// goroutine is the sole writer to the socket; everything else communicates
// with it through the send and ping channels.
type Conn struct {
	id       int64
	sock     net.Conn
	identity Identity

	send   chan []byte   // Outbound frames, drained by writePump
	pingCh chan struct{} // Liveness pings requested by the sweep
	pongCh chan []byte   // Replies to client transport pings
	done   chan struct{} // Closed exactly once when the connection ends

	closeOnce   sync.Once
	closed      atomic.Bool
	alive       atomic.Bool
	hard        atomic.Bool // Set when terminate() bypasses the close frame
	closeCode   ws.StatusCode
	closeReason string

	connectedAt time.Time
	inbound     atomic.Int64

	subs *SubscriptionSet
}

func newConn(id int64, sock net.Conn, identity Identity, sendBuffer int) *Conn {
	c := &Conn{
		id:          id,
		sock:        sock,
		identity:    identity,
		send:        make(chan []byte, sendBuffer),
		pingCh:      make(chan struct{}, 1),
		pongCh:      make(chan []byte, 1),
		done:        make(chan struct{}),
		closeCode:   ws.StatusNormalClosure,
		connectedAt: time.Now(),
	}
	c.alive.Store(true)
	c.subs = NewSubscriptionSet()
	return c
}

// Identity returns the identity bound during the handshake.
func (c *Conn) Identity() Identity {
	return c.identity
}

// IsOpen reports whether the connection is still delivering.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// enqueue hands a frame to the write pump without blocking. A full send
// buffer drops the frame: one slow client must never stall delivery to the
// rest of the registry.
func (c *Conn) enqueue(frame []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// sendEnvelope encodes and enqueues one envelope. Encoding errors are
// reported as a failed delivery.
func (c *Conn) sendEnvelope(env Envelope) bool {
	frame, err := env.encode()
	if err != nil {
		return false
	}
	return c.enqueue(frame)
}

// requestPing asks the write pump to emit a ping frame. Coalesces when one
// is already pending.
func (c *Conn) requestPing() {
	select {
	case c.pingCh <- struct{}{}:
	default:
	}
}

// requestPong asks the write pump to answer a client transport ping.
func (c *Conn) requestPong(payload []byte) {
	select {
	case c.pongCh <- payload:
	default:
	}
}

// closeWithStatus ends the connection gracefully: the write pump sends a
// close frame with the given code and reason, then closes the socket.
func (c *Conn) closeWithStatus(code ws.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.closed.Store(true)
		close(c.done)
	})
}

// terminate hard-closes the socket with no further handshake. Used for dead
// connections found by the liveness sweep.
func (c *Conn) terminate() {
	c.closeOnce.Do(func() {
		c.hard.Store(true)
		c.closed.Store(true)
		close(c.done)
		c.sock.Close()
	})
}

// SubscriptionSet is a connection's set of subscribed topics, capped at a
// fixed budget across all subscribe calls.
type SubscriptionSet struct {
	mu     sync.RWMutex
	topics map[string]struct{}
}

func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{topics: make(map[string]struct{})}
}

// AddUpTo admits topics in order until the set reaches max, returning the
// accepted subset. Topics already present count as accepted without
// consuming budget.
func (s *SubscriptionSet) AddUpTo(topics []string, max int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := make([]string, 0, len(topics))
	for _, topic := range topics {
		if _, ok := s.topics[topic]; ok {
			accepted = append(accepted, topic)
			continue
		}
		if len(s.topics) >= max {
			break
		}
		s.topics[topic] = struct{}{}
		accepted = append(accepted, topic)
	}
	return accepted
}

// Remove drops topics from the set. Removing an absent topic is a no-op.
func (s *SubscriptionSet) Remove(topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, topic := range topics {
		delete(s.topics, topic)
	}
}

// Has reports whether the set contains topic.
func (s *SubscriptionSet) Has(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.topics[topic]
	return ok
}

// Count returns the number of held subscriptions.
func (s *SubscriptionSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics)
}

// List returns a copy of the subscribed topics.
func (s *SubscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		out = append(out, topic)
	}
	return out
}
