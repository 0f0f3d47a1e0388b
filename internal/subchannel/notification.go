package subchannel

import (
	"sync"
	"time"
)

// dedupWindow is how long a notification ID is remembered before a
// repeat is allowed through again (§4.10: "deduplicated by nid...
// within a short window").
const dedupWindow = 2 * time.Second

// Notifications deduplicates notification deliveries by ID within a
// short window. Bell and cursor moves are fire-and-forget, need no
// state, and have no counterpart in this package.
type Notifications struct {
	mu   sync.Mutex
	seen map[uint64]time.Time
}

// NewNotifications builds an empty dedup tracker.
func NewNotifications() *Notifications {
	return &Notifications{seen: make(map[uint64]time.Time)}
}

// ShouldDeliver reports whether nid has not been seen within
// dedupWindow, recording it as seen either way. Stale entries are
// swept opportunistically on each call so the map does not grow
// unbounded across a long session.
func (n *Notifications) ShouldDeliver(nid uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	for id, at := range n.seen {
		if now.Sub(at) > dedupWindow {
			delete(n.seen, id)
		}
	}

	if last, ok := n.seen[nid]; ok && now.Sub(last) <= dedupWindow {
		n.seen[nid] = now
		return false
	}
	n.seen[nid] = now
	return true
}

// Close discards nid so that a later reuse of the same ID (unlikely
// but not forbidden by the wire format) is treated as a fresh
// notification rather than a duplicate.
func (n *Notifications) Close(nid uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.seen, nid)
}
