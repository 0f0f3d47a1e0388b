package window

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/xpra-project/session-core/internal/wire"
)

// ErrInvalidSurfaceSize is returned by Add for a surface of width or
// height 0 (spec §8 boundary: "Surface of width 0 or height 0 is
// rejected at add").
var ErrInvalidSurfaceSize = errors.New("window: surface width and height must be positive")

// moveThreshold is the policy threshold past which a non-override-redirect
// geometry update is significant enough to re-announce the window rather
// than be silently absorbed (§4.5: "for non-OR moves exceeding policy
// threshold").
const moveThreshold = 64

// Listener receives window lifecycle and update notifications. A Session
// registers one Listener per attached client; Model fans every event out
// to all currently registered listeners (§4.8 sharing: multiple clients
// see the same surface set).
type Listener interface {
	NewWindow(s Snapshot)
	NewOverrideRedirect(s Snapshot)
	WindowMetadata(id ID, changes map[string]wire.Value)
	ConfigureOverrideRedirect(id ID, geom Geometry)
	LostWindow(id ID)
}

// RemovalObserver is notified when a surface is removed, so the damage
// scheduler (C6) can cancel any in-flight EncodingJob for that surface
// (§4.5: "remove(wid): ... the scheduler cancels any in-flight
// EncodingJob for that wid").
type RemovalObserver interface {
	SurfaceRemoved(id ID)
}

// Model is the authoritative, concurrency-safe surface set for one
// session. IDs are allocated from a monotonic counter and never reused.
type Model struct {
	surfaces *xsync.MapOf[ID, *surface]
	nextID   atomic.Uint64

	listenersMu sync.RWMutex
	listeners   []Listener

	removalMu sync.RWMutex
	removal   []RemovalObserver

	stackOnce sync.Once
	stack     *stackOrder
}

// New builds an empty window model.
func New() *Model {
	return &Model{surfaces: xsync.NewMapOf[ID, *surface]()}
}

// AddListener registers l to receive future window events. It does not
// replay existing surfaces — callers reconnecting into a live session
// (§4.8) are expected to call Snapshots to enumerate the current set
// before subscribing.
func (m *Model) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters l.
func (m *Model) RemoveListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for i, existing := range m.listeners {
		if existing == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// AddRemovalObserver registers an observer for Remove events.
func (m *Model) AddRemovalObserver(o RemovalObserver) {
	m.removalMu.Lock()
	defer m.removalMu.Unlock()
	m.removal = append(m.removal, o)
}

func (m *Model) broadcast(f func(Listener)) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	for _, l := range m.listeners {
		f(l)
	}
}

// Snapshots returns a Snapshot of every live surface, in no particular
// order. Used to replay state to a reconnecting or newly-sharing client.
func (m *Model) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, m.surfaces.Size())
	m.surfaces.Range(func(_ ID, s *surface) bool {
		s.mu.Lock()
		if !s.removed {
			out = append(out, s.snapshot())
		}
		s.mu.Unlock()
		return true
	})
	return out
}

// Add allocates a new surface and announces it to every attached client
// (§4.5 add). It rejects a surface with zero width or height without
// allocating an ID or notifying listeners.
func (m *Model) Add(geom Geometry, metadata map[string]wire.Value, alpha, overrideRedirect bool) (ID, error) {
	if geom.W <= 0 || geom.H <= 0 {
		return 0, ErrInvalidSurfaceSize
	}

	id := ID(m.nextID.Add(1))
	md := make(map[string]wire.Value, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	s := &surface{id: id, geometry: geom, metadata: md, alpha: alpha, overrideRedirect: overrideRedirect}
	m.surfaces.Store(id, s)

	snap := s.snapshot()
	if overrideRedirect {
		m.broadcast(func(l Listener) { l.NewOverrideRedirect(snap) })
	} else {
		m.broadcast(func(l Listener) { l.NewWindow(snap) })
	}
	return id, nil
}

// Restore repopulates an empty model from a previously captured
// snapshot set, preserving each surface's ID and advancing the ID
// counter past the highest restored value, so IDs allocated after
// restore never collide with the restored set. Used by an upgrade
// successor process re-attaching to a vfb whose surfaces already exist
// (§4.8 "upgrade"); it does not broadcast — the caller replays
// new-window notifications once listeners are attached, as for a
// reconnect (see session.ResumeAfterReconnect).
func (m *Model) Restore(snapshots []Snapshot) {
	var maxID ID
	for _, snap := range snapshots {
		md := make(map[string]wire.Value, len(snap.Metadata))
		for k, v := range snap.Metadata {
			md[k] = v
		}
		s := &surface{
			id:               snap.ID,
			geometry:         snap.Geometry,
			metadata:         md,
			alpha:            snap.Alpha,
			overrideRedirect: snap.OverrideRedirect,
		}
		m.surfaces.Store(snap.ID, s)
		if snap.ID > maxID {
			maxID = snap.ID
		}
	}
	for {
		current := m.nextID.Load()
		if current >= uint64(maxID) {
			break
		}
		if m.nextID.CompareAndSwap(current, uint64(maxID)) {
			break
		}
	}
}

// UpdateMetadata diffs changes against the surface's current metadata
// and emits only the keys that actually changed (§4.5 update_metadata).
func (m *Model) UpdateMetadata(id ID, changes map[string]wire.Value) error {
	s, ok := m.surfaces.Load(id)
	if !ok {
		return fmt.Errorf("window: unknown surface %d", id)
	}
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil
	}
	diff := s.diffMetadata(changes)
	s.mu.Unlock()

	if len(diff) == 0 {
		return nil
	}
	m.broadcast(func(l Listener) { l.WindowMetadata(id, diff) })
	return nil
}

// UpdateGeometry applies a geometry change (§4.5 update_geometry).
// Override-redirect surfaces always re-announce via
// configure-override-redirect; ordinary windows only re-announce (as
// lost-window followed by new-window) when the move/resize exceeds the
// policy threshold, matching the spec's "exceeding policy threshold"
// rule for non-OR surfaces.
func (m *Model) UpdateGeometry(id ID, geom Geometry) error {
	s, ok := m.surfaces.Load(id)
	if !ok {
		return fmt.Errorf("window: unknown surface %d", id)
	}

	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil
	}
	prev := s.geometry
	s.geometry = geom
	overrideRedirect := s.overrideRedirect
	significant := exceedsThreshold(prev, geom)
	snap := s.snapshot()
	s.mu.Unlock()

	switch {
	case overrideRedirect:
		m.broadcast(func(l Listener) { l.ConfigureOverrideRedirect(id, geom) })
	case significant:
		m.broadcast(func(l Listener) { l.LostWindow(id) })
		m.broadcast(func(l Listener) { l.NewWindow(snap) })
	}
	return nil
}

func exceedsThreshold(prev, next Geometry) bool {
	return absInt(next.X-prev.X) > moveThreshold ||
		absInt(next.Y-prev.Y) > moveThreshold ||
		absInt(next.W-prev.W) > moveThreshold ||
		absInt(next.H-prev.H) > moveThreshold
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Remove retires a surface permanently (§4.5 remove). wid is never
// reused: the entry is deleted from the live map but nextID never steps
// backward.
func (m *Model) Remove(id ID) error {
	s, ok := m.surfaces.Load(id)
	if !ok {
		return fmt.Errorf("window: unknown surface %d", id)
	}
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil
	}
	s.removed = true
	s.mu.Unlock()

	m.surfaces.Delete(id)
	m.broadcast(func(l Listener) { l.LostWindow(id) })

	m.removalMu.RLock()
	observers := append([]RemovalObserver(nil), m.removal...)
	m.removalMu.RUnlock()
	for _, o := range observers {
		o.SurfaceRemoved(id)
	}
	return nil
}

func errUnknownSurface(id ID) error {
	return fmt.Errorf("window: unknown surface %d", id)
}

// Focus marks id as the focused surface and clears focus on every other
// live surface.
func (m *Model) Focus(id ID) error {
	if _, ok := m.surfaces.Load(id); !ok {
		return fmt.Errorf("window: unknown surface %d", id)
	}
	m.surfaces.Range(func(other ID, s *surface) bool {
		s.mu.Lock()
		s.focused = other == id
		s.mu.Unlock()
		return true
	})
	return nil
}

// Focused returns the currently focused surface id, if any.
func (m *Model) Focused() (ID, bool) {
	var found ID
	var ok bool
	m.surfaces.Range(func(id ID, s *surface) bool {
		s.mu.Lock()
		focused := s.focused
		s.mu.Unlock()
		if focused {
			found, ok = id, true
			return false
		}
		return true
	})
	return found, ok
}
