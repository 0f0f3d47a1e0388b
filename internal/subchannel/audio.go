package subchannel

import (
	"container/heap"
	"time"
)

// AudioDirection distinguishes the speaker (server→client) and
// microphone (client→server) streams (§4.10: "speaker/microphone each
// carry opaque codec bytes plus a monotonic timestamp").
type AudioDirection int

const (
	Speaker AudioDirection = iota
	Microphone
)

// AudioFrame is one opaque codec payload stamped with the sender's
// monotonic clock, grounded on the teacher's AudioStreamer/MicStreamer
// split (audio_stream.go, mic_stream.go) generalized from an
// Opus-over-GStreamer pipeline to codec-agnostic framed bytes — the
// codec itself is an external collaborator, out of scope here.
type AudioFrame struct {
	TimestampMs int64
	Data        []byte
}

// jitterItem orders buffered frames by timestamp in a min-heap.
type jitterItem struct {
	frame AudioFrame
	index int
}

type jitterHeap []*jitterItem

func (h jitterHeap) Len() int            { return len(h) }
func (h jitterHeap) Less(i, j int) bool  { return h[i].frame.TimestampMs < h[j].frame.TimestampMs }
func (h jitterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *jitterHeap) Push(x interface{}) { item := x.(*jitterItem); item.index = len(*h); *h = append(*h, item) }
func (h *jitterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// JitterBuffer smooths out-of-order or irregularly-spaced audio frames
// by holding them briefly before release, replaying silence for gaps
// rather than waiting on a retransmit (§4.10: "No retransmit: lost
// chunks produce silence").
type JitterBuffer struct {
	depth       time.Duration
	heap        jitterHeap
	lastReleased int64
	haveReleased bool
}

// NewJitterBuffer builds a jitter buffer holding frames for depth
// before they become eligible for release.
func NewJitterBuffer(depth time.Duration) *JitterBuffer {
	jb := &JitterBuffer{depth: depth}
	heap.Init(&jb.heap)
	return jb
}

// Push enqueues a received frame.
func (jb *JitterBuffer) Push(f AudioFrame) {
	heap.Push(&jb.heap, &jitterItem{frame: f})
}

// Release pops every buffered frame old enough (by wall-clock nowMs
// measured against its timestamp plus the configured depth) in
// timestamp order, and reports whether a gap (missing frame interval)
// preceded any released frame, measured from the previously released
// one, so the caller can substitute silence instead of waiting.
func (jb *JitterBuffer) Release(nowMs int64) (frames []AudioFrame, gapDetected bool) {
	threshold := nowMs - jb.depth.Milliseconds()
	for jb.heap.Len() > 0 && jb.heap[0].frame.TimestampMs <= threshold {
		item := heap.Pop(&jb.heap).(*jitterItem)
		if jb.haveReleased && item.frame.TimestampMs > jb.lastReleased+expectedGapToleranceMs {
			gapDetected = true
		}
		jb.lastReleased = item.frame.TimestampMs
		jb.haveReleased = true
		frames = append(frames, item.frame)
	}
	return frames, gapDetected
}

// expectedGapToleranceMs is a generous upper bound on one frame
// interval (20ms Opus frames are typical); anything wider than this
// between consecutive released timestamps is treated as a dropped
// chunk rather than normal spacing.
const expectedGapToleranceMs = 100

// Len reports how many frames are currently buffered, for metrics.
func (jb *JitterBuffer) Len() int { return jb.heap.Len() }
