package endpoint

import (
	"sync/atomic"
	"time"
)

// liveness implements the ping/liveness-timeout pair of §4.3: a ping is
// sent every pingInterval if no other traffic flowed, and the endpoint
// fails with Timeout if no inbound chunk arrives within livenessTimeout.
type liveness struct {
	pingInterval    time.Duration
	livenessTimeout time.Duration

	lastInbound  atomic.Int64 // unix nanos
	lastOutbound atomic.Int64 // unix nanos
}

func newLiveness(pingInterval, livenessTimeout time.Duration) *liveness {
	l := &liveness{pingInterval: pingInterval, livenessTimeout: livenessTimeout}
	now := time.Now().UnixNano()
	l.lastInbound.Store(now)
	l.lastOutbound.Store(now)
	return l
}

func (l *liveness) markInbound()  { l.lastInbound.Store(time.Now().UnixNano()) }
func (l *liveness) markOutbound() { l.lastOutbound.Store(time.Now().UnixNano()) }

// needsPing reports whether pingInterval has elapsed with no outbound
// traffic, meaning the writer should synthesize a keepalive ping.
func (l *liveness) needsPing() bool {
	since := time.Since(time.Unix(0, l.lastOutbound.Load()))
	return since >= l.pingInterval
}

// timedOut reports whether livenessTimeout has elapsed with no inbound
// chunk, meaning the endpoint must fail with ErrTimeout.
func (l *liveness) timedOut() bool {
	since := time.Since(time.Unix(0, l.lastInbound.Load()))
	return since >= l.livenessTimeout
}
