package damage

import (
	"sync"
	"time"
)

// AckSignals carries the measurements a damage-sequence ack supplies for
// the batch-delay control loop (§4.6).
type AckSignals struct {
	DecodeTime        time.Duration
	NetworkSendTime    time.Duration
	RoundTripLatency   time.Duration
	QueueDepth         int
	BandwidthUsedBps   float64
	BandwidthLimitBps  float64 // 0 means unlimited
	InFlightFrames     int
}

// Batch-delay control tunables (§4.6: "additive-increase...
// multiplicative-decrease"). These are fixed, not per-deployment config:
// the spec names the algorithm shape, not specific constants.
const (
	additiveStep          = 10 * time.Millisecond
	multiplicativeFactor  = 0.7
	idleStreakToDecay     = 3
	highLatencyThreshold  = 40 * time.Millisecond
	highQueueDepthThresh  = 8
)

// BatchController maintains the per-surface batch delay B, clamped to
// [minDelay, maxDelay], via an EWMA-like additive-increase/
// multiplicative-decrease loop driven by ack signals (§4.6).
type BatchController struct {
	mu sync.Mutex

	delay    time.Duration
	minDelay time.Duration
	maxDelay time.Duration

	idleStreak int
}

// NewBatchController builds a controller starting at minDelay.
func NewBatchController(minDelay, maxDelay time.Duration) *BatchController {
	if maxDelay <= 0 {
		maxDelay = 250 * time.Millisecond
	}
	return &BatchController{delay: minDelay, minDelay: minDelay, maxDelay: maxDelay}
}

// Delay returns the current batch delay.
func (b *BatchController) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay
}

// OnAck folds one ack's signals into the controller and returns the
// updated delay.
func (b *BatchController) OnAck(s AckSignals) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	saturated := s.RoundTripLatency > highLatencyThreshold ||
		s.QueueDepth > highQueueDepthThresh ||
		(s.BandwidthLimitBps > 0 && s.BandwidthUsedBps >= s.BandwidthLimitBps)

	if saturated {
		b.idleStreak = 0
		b.delay += additiveStep
	} else {
		b.idleStreak++
		if b.idleStreak >= idleStreakToDecay {
			b.delay = time.Duration(float64(b.delay) * multiplicativeFactor)
			b.idleStreak = 0
		}
	}

	if b.delay < b.minDelay {
		b.delay = b.minDelay
	}
	if b.delay > b.maxDelay {
		b.delay = b.maxDelay
	}
	return b.delay
}

// InFlightCap returns the hard cap on unacked frames for the given
// encoder class (§4.6: "hard cap: 3 for video encoders, 10 for still
// encoders").
func InFlightCap(isVideo bool) int {
	if isVideo {
		return 3
	}
	return 10
}
