package hub

import (
	"errors"
	"sync"
)

// ErrServerFull is returned when the global connection cap is reached. No
// eviction happens at the global limit; the new connection is turned away.
var ErrServerFull = errors.New("global connection limit reached")

// Registry is the in-memory index from lowercase address to live
// connections. Per-address slices keep insertion order so quota eviction is
// FIFO. All mutation runs under one mutex: the check-then-admit sequence in
// Add must be a single critical section or two concurrent admissions from
// the same address could jointly exceed the quota.
type Registry struct {
	mu            sync.RWMutex
	byAddress     map[string][]*Conn
	total         int
	maxPerAddress int
	maxTotal      int
}

// Stats is a point-in-time snapshot of registry occupancy.
type Stats struct {
	TotalConnections     int            `json:"totalConnections"`
	ConnectionsByAddress map[string]int `json:"connectionsByAddress"`
	ConnectionsByRole    map[string]int `json:"connectionsByRole"`
}

func NewRegistry(maxPerAddress, maxTotal int) *Registry {
	if maxPerAddress <= 0 {
		maxPerAddress = 5
	}
	if maxTotal <= 0 {
		maxTotal = 1000
	}
	return &Registry{
		byAddress:     make(map[string][]*Conn),
		maxPerAddress: maxPerAddress,
		maxTotal:      maxTotal,
	}
}

// Add admits a connection under the quotas. At the global cap it returns
// ErrServerFull. At the per-address cap it removes and returns the oldest
// connection for that address; the caller closes the evicted socket outside
// the lock.
func (r *Registry) Add(c *Conn) (evicted *Conn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.total >= r.maxTotal {
		return nil, ErrServerFull
	}

	addr := c.identity.Address
	conns := r.byAddress[addr]
	if len(conns) >= r.maxPerAddress {
		evicted = conns[0]
		r.byAddress[addr] = append(conns[:0:0], conns[1:]...)
		r.total--
	}

	r.byAddress[addr] = append(r.byAddress[addr], c)
	r.total++
	return evicted, nil
}

// Remove deletes a connection. Returns false if it was not present (already
// removed by a sweep or an eviction).
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(c)
}

func (r *Registry) removeLocked(c *Conn) bool {
	addr := c.identity.Address
	conns := r.byAddress[addr]
	for i, existing := range conns {
		if existing == c {
			conns = append(conns[:i], conns[i+1:]...)
			if len(conns) == 0 {
				delete(r.byAddress, addr)
			} else {
				r.byAddress[addr] = conns
			}
			r.total--
			return true
		}
	}
	return false
}

// SweepClosed removes every connection whose socket already closed without
// going through the disconnect path. Returns the removed connections.
func (r *Registry) SweepClosed() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Conn
	for _, conns := range r.byAddress {
		for _, c := range conns {
			if c.closed.Load() {
				removed = append(removed, c)
			}
		}
	}
	for _, c := range removed {
		r.removeLocked(c)
	}
	return removed
}

// Len returns the global connection count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// CountForAddress returns the number of live connections for an address.
func (r *Registry) CountForAddress(addr string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddress[addr])
}

// Snapshot returns all connections. Iteration order across addresses is
// unspecified; delivery order across connections carries no guarantee.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, r.total)
	for _, conns := range r.byAddress {
		out = append(out, conns...)
	}
	return out
}

// ForAddress returns the connections bound to a lowercase address.
func (r *Registry) ForAddress(addr string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byAddress[addr]
	out := make([]*Conn, len(conns))
	copy(out, conns)
	return out
}

// Stats builds an occupancy snapshot. Best-effort consistency: the snapshot
// is internally consistent but may lag concurrent admissions.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalConnections:     r.total,
		ConnectionsByAddress: make(map[string]int, len(r.byAddress)),
		ConnectionsByRole:    make(map[string]int),
	}
	for addr, conns := range r.byAddress {
		stats.ConnectionsByAddress[addr] = len(conns)
		for _, c := range conns {
			stats.ConnectionsByRole[c.identity.Role]++
		}
	}
	return stats
}
