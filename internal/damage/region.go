// Package damage implements the damage/encoding scheduler (C6, §4.6),
// the core of the session core: per-surface pending-region aggregation,
// batch-delay control, encoder selection, scroll/delta detection,
// auto-refresh, and the per-surface state machine.
package damage

// Rect is an axis-aligned damaged region in surface-local coordinates.
type Rect struct {
	X, Y, W, H int
}

// Area returns the rectangle's pixel area.
func (r Rect) Area() int { return r.W * r.H }

// Union returns the smallest rectangle containing both r and other.
func (r Rect) Union(other Rect) Rect {
	if r.W == 0 && r.H == 0 {
		return other
	}
	if other.W == 0 && other.H == 0 {
		return r
	}
	x0 := min(r.X, other.X)
	y0 := min(r.Y, other.Y)
	x1 := max(r.X+r.W, other.X+other.W)
	y1 := max(r.Y+r.H, other.Y+other.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Clip intersects r with bounds, returning the clipped rectangle and
// whether anything remained.
func (r Rect) Clip(bounds Rect) (Rect, bool) {
	x0 := max(r.X, bounds.X)
	y0 := max(r.Y, bounds.Y)
	x1 := min(r.X+r.W, bounds.X+bounds.W)
	y1 := min(r.Y+r.H, bounds.Y+bounds.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// PendingRegion accumulates damage for one surface between timer fires
// (§4.6 "damage intake").
type PendingRegion struct {
	rect  Rect
	dirty bool
}

// Add clips r to bounds and unions it into the pending region. If the
// resulting region's area exceeds fullSurfaceThreshold of bounds' area,
// the region collapses to the full surface (§4.6).
func (p *PendingRegion) Add(r Rect, bounds Rect, fullSurfaceThreshold float64) {
	clipped, ok := r.Clip(bounds)
	if !ok {
		return
	}
	if !p.dirty {
		p.rect = clipped
	} else {
		p.rect = p.rect.Union(clipped)
	}
	p.dirty = true

	if bounds.Area() > 0 && float64(p.rect.Area())/float64(bounds.Area()) > fullSurfaceThreshold {
		p.rect = bounds
	}
}

// Region returns the current accumulated region.
func (p *PendingRegion) Region() Rect { return p.rect }

// Empty reports whether any damage is pending.
func (p *PendingRegion) Empty() bool { return !p.dirty }

// Reset clears the pending region after it has been consumed.
func (p *PendingRegion) Reset() {
	p.rect = Rect{}
	p.dirty = false
}
