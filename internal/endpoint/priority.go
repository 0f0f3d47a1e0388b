package endpoint

import "github.com/xpra-project/session-core/internal/wire"

// Priority is the strict outbound priority class an outgoing packet is
// queued under (§4.3). Lower numeric value drains first; within a class,
// FIFO.
type Priority int

const (
	PriorityKeepalive Priority = iota // keepalive / pong
	PriorityControl                    // control/meta: hello, challenges, disconnect, ack
	PriorityEcho                       // input echoes, cursor, small metadata updates
	PriorityDrawFocused                 // draw for surfaces with pending user focus
	PriorityDraw                        // other draw, audio blocks
	PriorityBulk                        // bulk: file transfer, clipboard payload
	numPriorities
)

// outboundItem is one packet waiting to be encoded, framed, and written.
type outboundItem struct {
	priority Priority
	packet   wire.Packet
}

// priorityQueue is a strict-priority, FIFO-within-class queue. It is not
// safe for concurrent use by multiple goroutines without external
// synchronization — the writer goroutine is its sole owner; producers
// push through the endpoint's channel-based Enqueue instead.
type priorityQueue struct {
	classes [numPriorities][]outboundItem
	count   int
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{}
}

func (q *priorityQueue) push(item outboundItem) {
	q.classes[item.priority] = append(q.classes[item.priority], item)
	q.count++
}

// pop returns the next item in strict priority order, or false if empty.
func (q *priorityQueue) pop() (outboundItem, bool) {
	for p := Priority(0); p < numPriorities; p++ {
		bucket := q.classes[p]
		if len(bucket) == 0 {
			continue
		}
		item := bucket[0]
		q.classes[p] = bucket[1:]
		q.count--
		return item, true
	}
	return outboundItem{}, false
}

func (q *priorityQueue) len() int { return q.count }
