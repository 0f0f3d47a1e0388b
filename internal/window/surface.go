// Package window implements the window model (C5, §4.5): the
// authoritative, append-only set of surfaces a session exposes, and the
// diff-only metadata/geometry notifications attached clients receive.
package window

import (
	"reflect"
	"sync"

	"github.com/xpra-project/session-core/internal/wire"
)

// ID identifies one surface for the lifetime of the session. IDs are
// never reused (§4.5 invariant).
type ID uint64

// Geometry is a surface's position and size in virtual-display
// coordinates.
type Geometry struct {
	X, Y, W, H int
}

// Snapshot is an immutable view of a surface's current state, handed to
// listeners — it never aliases the model's live map entry.
type Snapshot struct {
	ID               ID
	Geometry         Geometry
	Metadata         map[string]wire.Value
	Alpha            bool
	OverrideRedirect bool
}

// surface is the model's live, mutable entry. All mutation happens
// through Model methods, which serialize access per-surface via mu
// (§4.5 invariant: "geometry updates are serialized per-surface").
type surface struct {
	mu sync.Mutex

	id               ID
	geometry         Geometry
	metadata         map[string]wire.Value
	alpha            bool
	overrideRedirect bool
	focused          bool
	removed          bool
}

func (s *surface) snapshot() Snapshot {
	md := make(map[string]wire.Value, len(s.metadata))
	for k, v := range s.metadata {
		md[k] = v
	}
	return Snapshot{
		ID:               s.id,
		Geometry:         s.geometry,
		Metadata:         md,
		Alpha:            s.alpha,
		OverrideRedirect: s.overrideRedirect,
	}
}

// diffMetadata overwrites s.metadata with changes (last write wins per
// key, §4.5 invariant) and returns only the keys that actually changed,
// for diff-only emission.
func (s *surface) diffMetadata(changes map[string]wire.Value) map[string]wire.Value {
	if s.metadata == nil {
		s.metadata = make(map[string]wire.Value, len(changes))
	}
	diff := make(map[string]wire.Value, len(changes))
	for k, v := range changes {
		if existing, ok := s.metadata[k]; ok && reflect.DeepEqual(existing, v) {
			continue
		}
		s.metadata[k] = v
		diff[k] = v
	}
	return diff
}
