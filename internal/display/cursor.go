package display

import "sync"

// CursorShape is a cursor image in ARGB32, with its hotspot offset
// (§4.9: "Cursor state: current image, hotspot").
type CursorShape struct {
	Width, Height      int
	HotspotX, HotspotY int
	ARGB32             []byte
	Name               string // well-known name (e.g. "default") when no custom image is set
}

// CursorAnchor locates the cursor either relative to a window (WID) or
// in absolute virtual-display coordinates (§4.9: "wid anchor or
// absolute").
type CursorAnchor struct {
	WID      uint64
	Absolute bool
	X, Y     int
}

// CursorState is the session's current cursor shape and position,
// generalized from the teacher's package-level CursorState singleton
// (shared across one process assumed to run one desktop) to a
// per-session instance, since this core supports more than one
// concurrent session.
type CursorState struct {
	mu     sync.RWMutex
	shape  CursorShape
	anchor CursorAnchor
}

// NewCursorState builds a cursor state defaulting to the platform's
// default pointer shape, anchored absolute at the origin.
func NewCursorState() *CursorState {
	return &CursorState{shape: CursorShape{Name: "default"}, anchor: CursorAnchor{Absolute: true}}
}

// SetShape updates the cursor's image and hotspot.
func (c *CursorState) SetShape(shape CursorShape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shape = shape
}

// SetAnchor updates the cursor's position.
func (c *CursorState) SetAnchor(anchor CursorAnchor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = anchor
}

// Get returns the current shape and anchor together, so a caller
// building a cursor packet sees a consistent pair.
func (c *CursorState) Get() (CursorShape, CursorAnchor) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shape, c.anchor
}
