// Package idalloc implements a per-namespace IPv4 Identification allocator
// satisfying internal/xlat.IDAllocator: a monotonic counter consulted
// whenever an outgoing IPv4 packet is synthesized from an IPv6 datagram
// that carried no Fragment header (RFC 7915 Section 5.1.1).
package idalloc

import "sync"

// Allocator hands out IPv4 Identification values per namespace. Unlike a
// port allocator it never needs to track "in use" state or support
// release: the IDs only need to differ across consecutive packets to the
// same destination, not be globally unique or unpredictable, so a
// wrapping per-namespace counter is sufficient.
type Allocator struct {
	mu   sync.Mutex
	next map[string]uint16
}

// New builds an empty Allocator.
func New() *Allocator {
	return &Allocator{next: make(map[string]uint16)}
}

// Identifier returns the next IPv4 Identification value for namespace ns,
// wrapping silently through the full uint16 range.
func (a *Allocator) Identifier(ns string) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.next[ns]
	a.next[ns] = id + 1
	return id, nil
}
