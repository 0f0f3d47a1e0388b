package damage

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/xpra-project/session-core/internal/wire"
)

// ContentType is the content-type hint a surface carries for encoder
// scoring (§4.6).
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentVideo   ContentType = "video"
	ContentPicture ContentType = "picture"
	ContentAuto    ContentType = "auto"
)

// EncoderCandidate is everything the scheduler needs to know about one
// negotiated encoder in order to score it (§4.6 "Encoder selection").
// internal/encoder builds these from its registry; damage never imports
// encoder, keeping the dependency one-directional.
type EncoderCandidate struct {
	Name                  string
	ClientPreferenceIndex int // lower is more preferred
	SupportsAlpha         bool
	SupportsLossless      bool
	SupportsScroll        bool
	SupportsDelta         bool
	IsVideo               bool
	MinQuality            int
	MinSpeed              int
	PredictedBandwidthBps float64
	PredictedCPUTime      time.Duration
}

// EncodingJob is a request to encode one consolidated region, handed off
// to the encoder dispatch layer (C7) when a surface's batching timer
// fires. PreferredEncoder carries the sticky-video encoder name, if any,
// for SelectEncoder to keep choosing while it remains viable (§4.6).
type EncodingJob struct {
	WID              uint64
	Sequence         uint64
	Region           Rect
	Quality          int
	Speed            int
	ContentType      ContentType
	Lossless         bool
	PreferredEncoder string
}

// Requester is the seam to the encoder dispatch layer: the scheduler
// asks for a region to be encoded and is later told the outcome via
// JobComplete/JobFailed.
type Requester interface {
	RequestEncode(job EncodingJob)
}

// Sender pushes the wire-level consequences of a completed encode (or a
// scroll shortcut) out to attached clients. The session/endpoint layer
// implements this.
type Sender interface {
	SendDraw(wid uint64, sequence uint64, region Rect, encoder string, data []byte, clientOptions map[string]wire.Value)
	SendScroll(wid uint64, sequence uint64, moves []ScrollMove)
}

// Config bundles the scheduler's tunables, sourced from config.Damage.
type Config struct {
	MinBatchDelay         time.Duration
	MaxBatchDelay         time.Duration
	FullSurfaceThreshold  float64
	ScrollMatchThreshold  float64
	AutoRefreshDelay      time.Duration
	MaxInFlightVideo      int
	MaxInFlightStill      int
	EncoderBlacklistFor   time.Duration
	DeltaCacheBudgetBytes int64
}

// Scheduler owns the damage/encoding pipeline for every surface in one
// session (§4.6 — "core of the core").
type Scheduler struct {
	cfg       Config
	requester Requester
	sender    Sender
	metrics   *Metrics
	logger    zerolog.Logger

	content *ContentCache

	surfaces *xsync.MapOf[uint64, *surfaceSched]
}

// New builds a Scheduler. requester and sender may be nil in tests that
// only exercise intake/state-machine behavior.
func New(cfg Config, requester Requester, sender Sender, metrics *Metrics, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.MaxBatchDelay <= 0 {
		cfg.MaxBatchDelay = 250 * time.Millisecond
	}
	if cfg.FullSurfaceThreshold <= 0 {
		cfg.FullSurfaceThreshold = 0.75
	}
	if cfg.ScrollMatchThreshold <= 0 {
		cfg.ScrollMatchThreshold = 0.6
	}
	if cfg.AutoRefreshDelay <= 0 {
		cfg.AutoRefreshDelay = 150 * time.Millisecond
	}
	if cfg.MaxInFlightVideo <= 0 {
		cfg.MaxInFlightVideo = 3
	}
	if cfg.MaxInFlightStill <= 0 {
		cfg.MaxInFlightStill = 10
	}
	if cfg.EncoderBlacklistFor <= 0 {
		cfg.EncoderBlacklistFor = 30 * time.Second
	}
	if cfg.DeltaCacheBudgetBytes <= 0 {
		cfg.DeltaCacheBudgetBytes = 64 << 20
	}

	content, err := NewContentCache(cfg.DeltaCacheBudgetBytes)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:       cfg,
		requester: requester,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
		content:   content,
		surfaces:  xsync.NewMapOf[uint64, *surfaceSched](),
	}, nil
}

// surfaceSched is the scheduler's per-surface state (§4.6's "For each
// Surface the scheduler maintains...").
type surfaceSched struct {
	mu sync.Mutex

	wid     uint64
	bounds  Rect
	pending PendingRegion
	state   State

	batch        *BatchController
	deltaTracker *SurfaceDeltaTracker
	autoRefresh  *AutoRefreshTimer
	timer        *time.Timer

	sequence  uint64
	inFlight  int
	ackWait   map[uint64]ackState

	quality, speed int
	contentType    ContentType

	stickyEncoder   string
	stickyStart     time.Time
	recentUpdateTimes []time.Time

	blacklist map[string]time.Time

	lastFrame []byte // for scroll/delta comparison
	stride    int

	sched *Scheduler
}

type ackState struct {
	region    Rect
	encoder   string
	timestamp time.Time
	lossless  bool
}

// AddSurface registers a new surface for damage tracking, mirroring a
// window.Model Add notification.
func (s *Scheduler) AddSurface(wid uint64, bounds Rect, contentType ContentType) {
	ss := &surfaceSched{
		wid:         wid,
		bounds:      bounds,
		state:       StateIdle,
		batch:       NewBatchController(s.cfg.MinBatchDelay, s.cfg.MaxBatchDelay),
		deltaTracker: NewSurfaceDeltaTracker(s.content),
		quality:     80,
		speed:       50,
		contentType: contentType,
		ackWait:     make(map[uint64]ackState),
		blacklist:   make(map[string]time.Time),
		sched:       s,
	}
	ss.autoRefresh = NewAutoRefreshTimer(s.cfg.AutoRefreshDelay, func() { s.fireAutoRefresh(ss) })
	s.surfaces.Store(wid, ss)
}

// SurfaceRemoved implements window.RemovalObserver: it retires the
// surface and cancels any in-flight timers (§4.5, §4.6).
func (s *Scheduler) SurfaceRemoved(wid uint64) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return
	}
	ss.mu.Lock()
	ss.state = StateDead
	if ss.timer != nil {
		ss.timer.Stop()
	}
	ss.autoRefresh.Cancel()
	ss.mu.Unlock()
	s.surfaces.Delete(wid)
}

// Damage records new damage for wid and (re)arms its batch timer
// (§4.6 "Damage intake").
func (s *Scheduler) Damage(wid uint64, r Rect, contentType ContentType) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return
	}

	ss.mu.Lock()
	if ss.state == StateDead {
		ss.mu.Unlock()
		return
	}
	if contentType != "" {
		ss.contentType = contentType
	}
	ss.pending.Add(r, ss.bounds, s.cfg.FullSurfaceThreshold)
	ss.autoRefresh.Cancel() // new damage supersedes any pending refresh (§4.6)
	ss.recentUpdateTimes = append(ss.recentUpdateTimes, time.Now())
	ss.recentUpdateTimes = trimOlderThan(ss.recentUpdateTimes, 3*time.Second)

	next := transition(ss.state, eventDamage, true)
	ss.state = next
	delay := ss.batch.Delay()
	s.armTimer(ss, delay)
	ss.mu.Unlock()
}

func trimOlderThan(times []time.Time, window time.Duration) []time.Time {
	cutoff := time.Now().Add(-window)
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}

// armTimer re-arms ss's batching timer; callers must hold ss.mu.
func (s *Scheduler) armTimer(ss *surfaceSched, delay time.Duration) {
	if ss.timer != nil {
		ss.timer.Stop()
	}
	ss.timer = time.AfterFunc(delay, func() { s.fireTimer(ss) })
}

// fireTimer handles a batching timer expiry: the in-flight cap may defer
// it instead of emitting (§4.6).
func (s *Scheduler) fireTimer(ss *surfaceSched) {
	ss.mu.Lock()
	if ss.state != StateBatching || ss.pending.Empty() {
		ss.mu.Unlock()
		return
	}

	cap := s.cfg.MaxInFlightStill
	if ss.stickyEncoder != "" {
		cap = s.cfg.MaxInFlightVideo
	}
	if ss.inFlight >= cap {
		if s.metrics != nil {
			s.metrics.FramesDropped.WithLabelValues(widLabel(ss.wid)).Inc()
		}
		s.armTimer(ss, ss.batch.Delay())
		ss.mu.Unlock()
		return
	}

	region := ss.pending.Region()
	ss.pending.Reset()
	ss.state = transition(ss.state, eventTimerFire, false)
	ss.sequence++
	seq := ss.sequence
	ss.inFlight++
	ss.ackWait[seq] = ackState{region: region, timestamp: time.Now()}

	// A full-surface frame un-sticks at once; the update-rate rule only
	// applies once the encoder has been sticky for the whole 3s window.
	if ss.stickyEncoder != "" && (region == ss.bounds ||
		(time.Since(ss.stickyStart) >= 3*time.Second && shouldUnstick(ss.recentUpdateTimes, region, ss.bounds))) {
		ss.stickyEncoder = ""
	}
	preferred := ss.stickyEncoder
	ss.mu.Unlock()

	if s.requester != nil {
		s.requester.RequestEncode(EncodingJob{
			WID:              ss.wid,
			Sequence:         seq,
			Region:           region,
			Quality:          ss.quality,
			Speed:            ss.speed,
			ContentType:      ss.contentType,
			PreferredEncoder: preferred,
		})
	}
}

// shouldUnstick implements §4.6's un-stick heuristic for the sticky-video
// encoder: fewer than 2 updates/sec over the trailing 3s window, or this
// job covering the full surface bounds (a static full-frame refresh),
// either of which reads as "this region stopped looking like video".
func shouldUnstick(recentUpdateTimes []time.Time, region, bounds Rect) bool {
	fresh := trimOlderThan(recentUpdateTimes, 3*time.Second)
	rate := float64(len(fresh)) / 3.0
	if rate < 2 {
		return true
	}
	return region == bounds
}

func widLabel(wid uint64) string { return uintToString(wid) }

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// SelectionHints biases SelectEncoder's choice with information only the
// caller (the encoder dispatch layer, which has the captured pixels)
// can know for this particular job (§4.6).
type SelectionHints struct {
	// Preferred is the sticky-video encoder name, if any; a viable
	// candidate with this name is chosen outright, keeping the dispatcher
	// from re-scoring away from it every frame.
	Preferred string
	// PreferScroll/PreferDelta report that this frame matched a scroll
	// shift or a recently transmitted frame, so encoders that can exploit
	// that (SupportsScroll/SupportsDelta) should be favored.
	PreferScroll bool
	PreferDelta  bool
}

// SelectEncoder scores candidates per §4.6's tie-break rules: the sticky
// preferred encoder first (if still viable), then scroll/delta support
// when this frame matched one, then lower ClientPreferenceIndex (earlier in
// the client's order), then
// lower predicted bandwidth, then lower predicted CPU time. Candidates
// failing the alpha or min-quality/min-speed floors are excluded.
func SelectEncoder(candidates []EncoderCandidate, needsAlpha bool, quality, speed int, blacklist map[string]time.Time, hints SelectionHints) (EncoderCandidate, bool) {
	var best EncoderCandidate
	found := false
	now := time.Now()
	for _, c := range candidates {
		if until, blocked := blacklist[c.Name]; blocked && now.Before(until) {
			continue
		}
		if needsAlpha && !c.SupportsAlpha {
			continue
		}
		if quality < c.MinQuality || speed < c.MinSpeed {
			continue
		}
		if hints.Preferred != "" && c.Name == hints.Preferred {
			return c, true
		}
		if !found || better(c, best, hints) {
			best, found = c, true
		}
	}
	return best, found
}

func better(a, b EncoderCandidate, hints SelectionHints) bool {
	if hints.PreferScroll && a.SupportsScroll != b.SupportsScroll {
		return a.SupportsScroll
	}
	if hints.PreferDelta && a.SupportsDelta != b.SupportsDelta {
		return a.SupportsDelta
	}
	if a.ClientPreferenceIndex != b.ClientPreferenceIndex {
		return a.ClientPreferenceIndex < b.ClientPreferenceIndex
	}
	if a.PredictedBandwidthBps != b.PredictedBandwidthBps {
		return a.PredictedBandwidthBps < b.PredictedBandwidthBps
	}
	return a.PredictedCPUTime < b.PredictedCPUTime
}

// AdjustQualitySpeed applies the edge-resistance rule: changes smaller
// than 5 quality points or 10 speed points are ignored (§4.6).
func AdjustQualitySpeed(currentQ, currentS, requestedQ, requestedS int) (q, s int) {
	q, s = currentQ, currentS
	if abs(requestedQ-currentQ) >= 5 {
		q = requestedQ
	}
	if abs(requestedS-currentS) >= 10 {
		s = requestedS
	}
	return q, s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// JobComplete is called by the encoder dispatch layer once a job
// finishes: it transitions the surface to awaiting-ack, records the
// encoder used for sticky-video bookkeeping, and forwards the result
// to the Sender.
func (s *Scheduler) JobComplete(wid, sequence uint64, encoder string, isVideo bool, data []byte, clientOptions map[string]wire.Value, scroll *ScrollMove) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return
	}

	ss.mu.Lock()
	ss.state = transition(ss.state, eventJobComplete, false)
	var region Rect
	if ack, ok := ss.ackWait[sequence]; ok {
		ack.encoder = encoder
		region = ack.region
		ss.ackWait[sequence] = ack
	}
	// A scroll shortcut didn't run any encoder this round, so it says
	// nothing about whether the surface still looks like video; leave
	// sticky state untouched in that case.
	if scroll == nil {
		if isVideo {
			if ss.stickyEncoder == "" {
				ss.stickyEncoder = encoder
				ss.stickyStart = time.Now()
			}
		} else {
			ss.stickyEncoder = ""
		}
	}
	ss.mu.Unlock()

	if s.sender == nil {
		return
	}
	if scroll != nil {
		s.sender.SendScroll(wid, sequence, []ScrollMove{*scroll})
		if s.metrics != nil {
			s.metrics.ScrollHits.WithLabelValues(widLabel(wid)).Inc()
		}
	} else {
		s.sender.SendDraw(wid, sequence, region, encoder, data, clientOptions)
		if s.metrics != nil {
			s.metrics.FramesSent.WithLabelValues(widLabel(wid), encoder).Inc()
		}
	}

	ss.autoRefresh.Arm()
}

// JobFailed reports a transient or permanent encoder failure (§4.7).
// Permanent failures blacklist the encoder for this surface for
// cfg.EncoderBlacklistFor.
func (s *Scheduler) JobFailed(wid uint64, encoder string, permanent bool) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return
	}
	ss.mu.Lock()
	if permanent {
		ss.blacklist[encoder] = time.Now().Add(s.cfg.EncoderBlacklistFor)
	}
	ss.state = transition(ss.state, eventAckError, false)
	delay := ss.batch.Delay()
	s.armTimer(ss, delay)
	ss.mu.Unlock()

	if s.metrics != nil {
		class := "transient"
		if permanent {
			class = "permanent"
		}
		s.metrics.EncodeErrors.WithLabelValues(widLabel(wid), class).Inc()
	}
}

// Ack processes a damage-sequence ack (§4.6 "Sequence and acks"). An
// errored ack schedules an immediate lossless full-surface refresh and
// blacklists the offending encoder for 30s; a clean ack releases one
// in-flight slot and folds the signals into the batch-delay controller.
func (s *Scheduler) Ack(wid, sequence uint64, signals AckSignals, errored bool) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return
	}

	ss.mu.Lock()
	ack, known := ss.ackWait[sequence]
	if known {
		delete(ss.ackWait, sequence)
		ss.inFlight--
		if ss.inFlight < 0 {
			ss.inFlight = 0
		}
	}
	hasPending := !ss.pending.Empty()
	ss.mu.Unlock()

	if !known {
		return
	}

	if errored {
		ss.mu.Lock()
		if ack.encoder != "" {
			ss.blacklist[ack.encoder] = time.Now().Add(s.cfg.EncoderBlacklistFor)
		}
		ss.pending.Add(ss.bounds, ss.bounds, s.cfg.FullSurfaceThreshold) // force full-surface refresh
		ss.state = transition(ss.state, eventAckError, false)
		s.armTimer(ss, 0)
		ss.mu.Unlock()
		return
	}

	ss.batch.OnAck(signals)

	ss.mu.Lock()
	ss.state = transition(ss.state, eventAckClean, hasPending)
	if ss.state == StateBatching {
		s.armTimer(ss, ss.batch.Delay())
	}
	ss.mu.Unlock()

	if s.metrics != nil {
		s.metrics.BatchDelay.WithLabelValues(widLabel(wid)).Set(float64(ss.batch.Delay().Milliseconds()))
	}
}

// fireAutoRefresh sends a lossless re-encode of the last emitted region
// at refresh priority, unless new damage already superseded it (§4.6).
func (s *Scheduler) fireAutoRefresh(ss *surfaceSched) {
	ss.mu.Lock()
	if ss.state == StateDead {
		ss.mu.Unlock()
		return
	}
	ss.pending.Add(ss.bounds, ss.bounds, s.cfg.FullSurfaceThreshold)
	if ss.state == StateIdle {
		ss.state = StateBatching
	}
	s.armTimer(ss, 0)
	ss.mu.Unlock()
}

// maxScrollShift bounds how far DetectScroll searches for a matching
// vertical shift; beyond this a "scroll" reads as an unrelated repaint.
const maxScrollShift = 256

// DetectScroll compares pixels (the frame just captured for wid) against
// the previous frame captured for that surface and reports a vertical
// scroll shift if enough rows match (§4.6 "scroll detector"). The
// dispatch layer is the only caller with access to raw pixels, so it
// supplies them here rather than damage importing the capture path.
// pixels becomes the new baseline for the next call regardless of
// outcome.
func (s *Scheduler) DetectScroll(wid uint64, pixels []byte, stride, height int) (ScrollMove, bool) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return ScrollMove{}, false
	}

	ss.mu.Lock()
	prev, prevStride := ss.lastFrame, ss.stride
	ss.lastFrame = append([]byte(nil), pixels...)
	ss.stride = stride
	ss.mu.Unlock()

	if prev == nil || prevStride != stride || len(prev) != len(pixels) {
		return ScrollMove{}, false
	}
	return DetectScroll(prev, pixels, stride, height, maxScrollShift, s.cfg.ScrollMatchThreshold)
}

// ConsiderDelta checks pixels against wid's recently transmitted frame
// cache, returning a candidate base frame the caller can XOR against
// (§4.6 "delta against a recently transmitted frame"), and records
// pixels in that cache for future lookups.
func (s *Scheduler) ConsiderDelta(wid uint64, pixels []byte) (base []byte, found bool) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return nil, false
	}
	base, _, found = ss.deltaTracker.Consider(pixels)
	return base, found
}

// Blacklist returns a snapshot of wid's per-encoder blacklist, for the
// encoder dispatch layer to fold into SelectEncoder.
func (s *Scheduler) Blacklist(wid uint64) map[string]time.Time {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return nil
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	out := make(map[string]time.Time, len(ss.blacklist))
	for k, v := range ss.blacklist {
		out[k] = v
	}
	return out
}

// State returns the current state of a surface, for tests and
// diagnostics.
func (s *Scheduler) State(wid uint64) (State, bool) {
	ss, ok := s.surfaces.Load(wid)
	if !ok {
		return StateDead, false
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.state, true
}
