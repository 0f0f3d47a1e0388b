package server

import (
	"sync"

	"github.com/xpra-project/session-core/internal/damage"
)

// requesterShim breaks the construction cycle between damage.Scheduler
// (which needs a damage.Requester at New) and encoder.Dispatcher (which
// needs the live *damage.Scheduler at New, to read its blacklist): the
// server builds the scheduler against this shim first, then constructs
// the dispatcher and points the shim at it.
type requesterShim struct {
	mu    sync.RWMutex
	inner damage.Requester
}

func (r *requesterShim) RequestEncode(job damage.EncodingJob) {
	r.mu.RLock()
	inner := r.inner
	r.mu.RUnlock()
	if inner != nil {
		inner.RequestEncode(job)
	}
}

func (r *requesterShim) bind(inner damage.Requester) {
	r.mu.Lock()
	r.inner = inner
	r.mu.Unlock()
}
