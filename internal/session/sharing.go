package session

import (
	"sync"
	"time"

	"github.com/xpra-project/session-core/internal/window"
)

// InputArbiter applies last-input-wins, per-surface serialization to
// concurrent input from multiple sharing clients (§4.8: "input focus is
// broadcast to all clients but server arbitrates which client's input is
// applied (last-input-wins, with per-surface serialization)").
type InputArbiter struct {
	mu    sync.Mutex
	owner map[window.ID]string
	last  map[window.ID]time.Time
}

// NewInputArbiter builds an empty arbiter.
func NewInputArbiter() *InputArbiter {
	return &InputArbiter{owner: make(map[window.ID]string), last: make(map[window.ID]time.Time)}
}

// Apply records an input event from clientUUID targeting wid at
// timestamp ts and reports whether it should be applied: true unless a
// later event for the same surface has already been recorded (clock
// skew or out-of-order delivery across clients).
func (a *InputArbiter) Apply(clientUUID string, wid window.ID, ts time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.last[wid]; ok && ts.Before(last) {
		return false
	}
	a.owner[wid] = clientUUID
	a.last[wid] = ts
	return true
}

// Owner returns which client's input was last applied to wid.
func (a *InputArbiter) Owner(wid window.ID) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uuid, ok := a.owner[wid]
	return uuid, ok
}

// Forget drops any arbitration state referencing wid, called when a
// surface is removed.
func (a *InputArbiter) Forget(wid window.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.owner, wid)
	delete(a.last, wid)
}
