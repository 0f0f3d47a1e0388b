// Package metrics exposes per-connection transport health as a
// Prometheus collector, grounded directly on the pack's own
// runZeroInc-sockstats TCPInfoCollector (pull-on-Collect kernel
// TCP_INFO sampling) generalized from a bare scrape exporter to one
// component of this session core's observability surface: per-surface
// damage/encode metrics live in internal/damage.Metrics, and this
// package covers the transport layer instead.
package metrics

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueDepthSource reports how many bytes are currently queued for a
// connection's writer, for the backpressure gauge (§5: "the writer
// tracks bytes queued").
type QueueDepthSource interface {
	QueuedBytes() int64
}

type connEntry struct {
	conn      net.Conn
	queue     QueueDepthSource
	labels    []string
	bytesSent atomic.Int64
	bytesRecv atomic.Int64
}

// ConnectionCollector exposes bandwidth counters, queue depth, and
// (on Linux, best-effort) kernel-measured round-trip time for every
// tracked connection, mirroring the teacher's Describe/Collect shape.
type ConnectionCollector struct {
	mu     sync.Mutex
	conns  map[string]*connEntry
	logger func(error)

	rttDesc   *prometheus.Desc
	queueDesc *prometheus.Desc
	sentDesc  *prometheus.Desc
	recvDesc  *prometheus.Desc
}

// NewConnectionCollector builds a collector with connectionLabels as
// the label names supplied per-connection via Add.
func NewConnectionCollector(connectionLabels []string, errorLoggingCallback func(error)) *ConnectionCollector {
	if errorLoggingCallback == nil {
		errorLoggingCallback = func(error) {}
	}
	return &ConnectionCollector{
		conns:  make(map[string]*connEntry),
		logger: errorLoggingCallback,
		rttDesc: prometheus.NewDesc(
			"xpra_transport_rtt_microseconds", "kernel-measured smoothed round-trip time",
			connectionLabels, nil),
		queueDesc: prometheus.NewDesc(
			"xpra_transport_queue_bytes", "bytes currently queued for the connection's writer",
			connectionLabels, nil),
		sentDesc: prometheus.NewDesc(
			"xpra_transport_bytes_sent_total", "bytes written to the connection",
			connectionLabels, nil),
		recvDesc: prometheus.NewDesc(
			"xpra_transport_bytes_received_total", "bytes read from the connection",
			connectionLabels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *ConnectionCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.rttDesc
	descs <- c.queueDesc
	descs <- c.sentDesc
	descs <- c.recvDesc
}

// Collect implements prometheus.Collector. A connection whose TCP_INFO
// sample fails (e.g. it was never a raw TCP socket, or it closed) is
// dropped from tracking rather than reported stale, matching the
// teacher's removal-on-read-failure behavior. The actual TCP_INFO
// sampling is platform-specific; see tcpinfo_linux.go/tcpinfo_other.go.
func (c *ConnectionCollector) Collect(out chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.conns {
		out <- prometheus.MustNewConstMetric(c.sentDesc, prometheus.CounterValue, float64(entry.bytesSent.Load()), entry.labels...)
		out <- prometheus.MustNewConstMetric(c.recvDesc, prometheus.CounterValue, float64(entry.bytesRecv.Load()), entry.labels...)

		if entry.queue != nil {
			out <- prometheus.MustNewConstMetric(c.queueDesc, prometheus.GaugeValue, float64(entry.queue.QueuedBytes()), entry.labels...)
		}

		if entry.conn == nil {
			continue
		}
		rtt, err := sampleTCPInfoRTT(entry.conn)
		if err != nil {
			c.logger(err)
			delete(c.conns, id)
			continue
		}
		out <- prometheus.MustNewConstMetric(c.rttDesc, prometheus.GaugeValue, float64(rtt.Microseconds()), entry.labels...)
	}
}

// Add registers a connection for tracking. conn may be nil if the
// transport has no underlying TCP_INFO-capable socket (QUIC, an
// already-wrapped WebSocket); RTT sampling is then skipped but
// bandwidth and queue depth are still reported. id must be unique per
// connection (e.g. the endpoint's client UUID).
func (c *ConnectionCollector) Add(id string, conn net.Conn, queue QueueDepthSource, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[id] = &connEntry{conn: conn, queue: queue, labels: labels}
}

// Remove stops tracking id.
func (c *ConnectionCollector) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, id)
}

// RecordSent adds n to id's sent-bytes counter. A no-op if id is not
// tracked (e.g. it raced with Remove).
func (c *ConnectionCollector) RecordSent(id string, n int) {
	c.mu.Lock()
	entry := c.conns[id]
	c.mu.Unlock()
	if entry != nil {
		entry.bytesSent.Add(int64(n))
	}
}

// RecordReceived adds n to id's received-bytes counter.
func (c *ConnectionCollector) RecordReceived(id string, n int) {
	c.mu.Lock()
	entry := c.conns[id]
	c.mu.Unlock()
	if entry != nil {
		entry.bytesRecv.Add(int64(n))
	}
}
