package damage

import (
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of Prometheus collectors the scheduler publishes
// through, grounded on the pack's own exporter
// (runZeroInc-sockstats/pkg/exporter/exporter.go).
type Metrics struct {
	BatchDelay   *prometheus.GaugeVec
	FramesSent   *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec
	ScrollHits   *prometheus.CounterVec
	DeltaHits    *prometheus.CounterVec
	EncodeErrors *prometheus.CounterVec
	RTTGauge     *prometheus.GaugeVec
}

// NewMetrics registers the scheduler's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchDelay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xpra", Subsystem: "damage", Name: "batch_delay_ms",
			Help: "current per-surface batch delay in milliseconds",
		}, []string{"wid"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xpra", Subsystem: "damage", Name: "frames_sent_total",
			Help: "frames emitted per surface",
		}, []string{"wid", "encoder"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xpra", Subsystem: "damage", Name: "frames_dropped_total",
			Help: "frames deferred because the in-flight cap was reached",
		}, []string{"wid"}),
		ScrollHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xpra", Subsystem: "damage", Name: "scroll_hits_total",
			Help: "frames sent as a scroll packet instead of pixels",
		}, []string{"wid"}),
		DeltaHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xpra", Subsystem: "damage", Name: "delta_hits_total",
			Help: "frames sent as an XOR delta against a cached frame",
		}, []string{"wid"}),
		EncodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xpra", Subsystem: "damage", Name: "encode_errors_total",
			Help: "encoder failures by class (transient/permanent)",
		}, []string{"wid", "class"}),
		RTTGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xpra", Subsystem: "damage", Name: "rtt_microseconds",
			Help: "kernel-reported smoothed RTT for the client connection",
		}, []string{"wid"}),
	}
	reg.MustRegister(m.BatchDelay, m.FramesSent, m.FramesDropped, m.ScrollHits, m.DeltaHits, m.EncodeErrors, m.RTTGauge)
	return m
}

// RTTSampler periodically samples TCP_INFO off a client's underlying
// connection and keeps an EWMA, feeding the batch-delay control loop's
// latency signal with kernel ground truth instead of relying solely on
// application-level ack timestamps.
type RTTSampler struct {
	mu      sync.Mutex
	ewma    time.Duration
	alpha   float64
	sampler func(net.Conn) (time.Duration, error)
}

// NewRTTSampler builds a sampler using the platform's TCP_INFO accessor
// (Linux: real kernel sample; other platforms: unsupported); the conn to
// sample is passed to each Sample call.
func NewRTTSampler() *RTTSampler {
	return &RTTSampler{alpha: 0.3, sampler: sampleTCPInfoRTT}
}

// Sample refreshes the EWMA from conn's current kernel RTT, if supported,
// and returns the updated estimate.
func (r *RTTSampler) Sample(conn net.Conn) time.Duration {
	rtt, err := r.sampler(conn)
	if err != nil {
		return r.Estimate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ewma == 0 {
		r.ewma = rtt
	} else {
		r.ewma = time.Duration(r.alpha*float64(rtt) + (1-r.alpha)*float64(r.ewma))
	}
	return r.ewma
}

// Estimate returns the current EWMA without sampling.
func (r *RTTSampler) Estimate() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ewma
}
