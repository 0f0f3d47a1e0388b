package damage

import (
	"sync"
	"time"
)

// AutoRefreshTimer arms a one-shot timer after any lossy emission; if it
// fires before being cancelled by new damage, fire is invoked to emit a
// lossless re-encoding (§4.6 "Auto-refresh"). The arm/re-arm-on-timer
// idiom follows the teacher's cursor-keepalive ticker, generalized from
// a recurring ticker to a cancellable one-shot timer.
type AutoRefreshTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fire  func()
}

// NewAutoRefreshTimer builds a timer with the given delay (default
// 150ms per §4.6, tunable via config).
func NewAutoRefreshTimer(delay time.Duration, fire func()) *AutoRefreshTimer {
	return &AutoRefreshTimer{delay: delay, fire: fire}
}

// Arm (re-)schedules the refresh, cancelling any timer already pending.
func (a *AutoRefreshTimer) Arm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

// Cancel stops a pending refresh without firing it (§4.6: "Any new
// damage cancels the pending refresh").
func (a *AutoRefreshTimer) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
