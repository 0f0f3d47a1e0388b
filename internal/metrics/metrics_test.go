package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeQueue struct{ depth int64 }

func (f *fakeQueue) QueuedBytes() int64 { return f.depth }

func TestConnectionCollectorReportsBandwidthAndQueueDepth(t *testing.T) {
	c := NewConnectionCollector([]string{"client"}, nil)
	q := &fakeQueue{depth: 4096}
	c.Add("client-1", nil, q, []string{"client-1"})
	c.RecordSent("client-1", 100)
	c.RecordReceived("client-1", 50)

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if count := testutil.CollectAndCount(c); count < 3 {
		t.Fatalf("CollectAndCount = %d, want at least 3 (sent, recv, queue)", count)
	}
}

func TestConnectionCollectorRemoveStopsTracking(t *testing.T) {
	c := NewConnectionCollector([]string{"client"}, nil)
	c.Add("client-1", nil, &fakeQueue{}, []string{"client-1"})
	c.Remove("client-1")

	if count := testutil.CollectAndCount(c); count != 0 {
		t.Fatalf("CollectAndCount after Remove = %d, want 0", count)
	}
}

func TestConnectionCollectorSkipsRTTWithoutConn(t *testing.T) {
	c := NewConnectionCollector([]string{"client"}, nil)
	c.Add("client-1", nil, nil, []string{"client-1"})

	// A nil conn and nil queue should still report the two bandwidth
	// counters without panicking or emitting a queue/RTT sample.
	if count := testutil.CollectAndCount(c); count != 2 {
		t.Fatalf("CollectAndCount = %d, want 2 (sent, recv only)", count)
	}
}

func TestRecordOnUntrackedIDIsNoop(t *testing.T) {
	c := NewConnectionCollector([]string{"client"}, nil)
	c.RecordSent("nope", 10)
	c.RecordReceived("nope", 10)
	if count := testutil.CollectAndCount(c); count != 0 {
		t.Fatalf("CollectAndCount = %d, want 0", count)
	}
}
