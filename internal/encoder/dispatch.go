package encoder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/xpra-project/session-core/internal/damage"
	"github.com/xpra-project/session-core/internal/wire"
)

// encodeTimeout bounds a single encode call so a wedged external codec
// can't hold a worker forever; the scheduler sees it as a transient
// failure and re-batches.
const encodeTimeout = 5 * time.Second

// ImageSource captures the current pixels for a damaged region from the
// platform backend. Implementations own the reference-counting described
// in §5 ("Pixel buffers captured from the platform backend are
// reference-counted; the encoder worker holds a reference until it
// finishes").
type ImageSource interface {
	CaptureRegion(wid uint64, region damage.Rect) (SurfaceImage, error)
}

// Dispatcher implements damage.Requester over a bounded worker pool
// shared across every surface of a session (§5: "a pool of encoder
// workers shared across clients (default: number of CPU cores)").
type Dispatcher struct {
	registry  *Registry
	images    ImageSource
	scheduler *damage.Scheduler
	logger    zerolog.Logger

	orderMu     sync.RWMutex
	clientOrder []string

	pool *pool.Pool
}

// NewDispatcher builds a dispatcher with maxWorkers concurrent encode
// slots (pass 0 to let the pool default to GOMAXPROCS).
func NewDispatcher(registry *Registry, images ImageSource, scheduler *damage.Scheduler, clientOrder []string, maxWorkers int, logger zerolog.Logger) *Dispatcher {
	p := pool.New()
	if maxWorkers > 0 {
		p = p.WithMaxGoroutines(maxWorkers)
	}
	return &Dispatcher{
		registry:    registry,
		images:      images,
		scheduler:   scheduler,
		clientOrder: clientOrder,
		logger:      logger,
		pool:        p,
	}
}

// RequestEncode implements damage.Requester: it submits job to the
// worker pool and returns immediately, matching §5's "the session
// thread must never hold a lock while calling into a codec... it hands
// work off and returns."
func (d *Dispatcher) RequestEncode(job damage.EncodingJob) {
	d.pool.Go(func() { d.run(job) })
}

// Wait blocks until every submitted job has finished, for clean
// shutdown (unfinished jobs for a closing endpoint are otherwise
// abandoned per §5; Wait is used at process shutdown, not per-client
// close).
func (d *Dispatcher) Wait() { d.pool.Wait() }

// SetClientOrder replaces the client's encoding preference order without
// tearing down the dispatcher. The `control encoding` runtime command
// (§7) passes a one-name order, which leaves that encoder as the only
// candidate.
func (d *Dispatcher) SetClientOrder(order []string) {
	d.orderMu.Lock()
	defer d.orderMu.Unlock()
	d.clientOrder = order
}

func (d *Dispatcher) currentClientOrder() []string {
	d.orderMu.RLock()
	defer d.orderMu.RUnlock()
	return d.clientOrder
}

func (d *Dispatcher) run(job damage.EncodingJob) {
	img, err := d.images.CaptureRegion(job.WID, job.Region)
	if err != nil {
		d.logger.Warn().Err(err).Uint64("wid", job.WID).Msg("capture failed, dropping frame")
		d.scheduler.JobFailed(job.WID, "", false)
		return
	}
	if img.Release != nil {
		defer img.Release()
	}

	candidates := d.registry.Candidates(d.currentClientOrder())
	blacklist := d.scheduler.Blacklist(job.WID)

	// Compare this frame against the surface's recent history before
	// picking an encoder, so a scroll or delta match can steer selection
	// (§4.6 "scroll detector", "delta against a recently transmitted
	// frame" as scoring inputs).
	scrollMove, scrollFound := d.scheduler.DetectScroll(job.WID, img.Pixels, img.Stride, img.Height)
	deltaBase, deltaFound := d.scheduler.ConsiderDelta(job.WID, img.Pixels)

	if scrollFound && candidatesSupportScroll(candidates) {
		d.scheduler.JobComplete(job.WID, job.Sequence, "", false, nil, nil, &scrollMove)
		return
	}

	hints := damage.SelectionHints{
		Preferred:    job.PreferredEncoder,
		PreferScroll: scrollFound,
		PreferDelta:  deltaFound,
	}
	chosen, ok := damage.SelectEncoder(candidates, img.HasAlpha, job.Quality, job.Speed, blacklist, hints)
	if !ok {
		d.logger.Warn().Uint64("wid", job.WID).Msg("no usable encoder for surface")
		d.scheduler.JobFailed(job.WID, "", true)
		return
	}

	enc, ok := d.registry.Get(chosen.Name)
	if !ok {
		d.scheduler.JobFailed(job.WID, chosen.Name, true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), encodeTimeout)
	defer cancel()

	var encodeOptions map[string]wire.Value
	if deltaFound && chosen.SupportsDelta && len(deltaBase) == len(img.Pixels) {
		if xored := damage.XORDelta(deltaBase, img.Pixels); xored != nil {
			img.Pixels = xored
			encodeOptions = map[string]wire.Value{"delta": true}
		}
	}

	data, clientOptions, err := enc.Encode(ctx, img, job.Region, job.Quality, job.Speed, encodeOptions)
	if err != nil {
		permanent := ClassOf(err) == Permanent
		d.logger.Warn().Err(err).Str("encoder", chosen.Name).Bool("permanent", permanent).Msg("encode failed")
		d.scheduler.JobFailed(job.WID, chosen.Name, permanent)
		return
	}

	d.scheduler.JobComplete(job.WID, job.Sequence, chosen.Name, chosen.IsVideo, data, clientOptions, nil)
}

// candidatesSupportScroll reports whether any negotiated encoder can
// consume a scroll shortcut; if none can, a scroll match is pointless and
// the frame must still be drawn.
func candidatesSupportScroll(candidates []damage.EncoderCandidate) bool {
	for _, c := range candidates {
		if c.SupportsScroll {
			return true
		}
	}
	return false
}
