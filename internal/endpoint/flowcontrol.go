package endpoint

import "sync/atomic"

// flowControl tracks outbound queued bytes and exposes the backpressure
// signal the damage scheduler consumes (§4.3, §8 "Flow control").
type flowControl struct {
	queuedBytes atomic.Int64
	highWater   int64
	lowWater    int64
	backpressure atomic.Bool
}

func newFlowControl(highWater, lowWater int) *flowControl {
	return &flowControl{highWater: int64(highWater), lowWater: int64(lowWater)}
}

// add accounts for bytes newly queued for write, flipping into
// backpressure once the high-water mark is crossed.
func (f *flowControl) add(n int) {
	v := f.queuedBytes.Add(int64(n))
	if v > f.highWater {
		f.backpressure.Store(true)
	}
}

// release accounts for bytes that finished writing, flipping out of
// backpressure once the low-water mark is reached.
func (f *flowControl) release(n int) {
	v := f.queuedBytes.Add(-int64(n))
	if v < 0 {
		f.queuedBytes.Store(0)
		v = 0
	}
	if v <= f.lowWater {
		f.backpressure.Store(false)
	}
}

// Backpressured reports whether the damage scheduler should lengthen its
// batch delay and/or drop intermediate video frames.
func (f *flowControl) Backpressured() bool { return f.backpressure.Load() }

// QueuedBytes reports the current outbound queue depth in bytes.
func (f *flowControl) QueuedBytes() int64 { return f.queuedBytes.Load() }
