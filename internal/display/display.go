// Package display implements the virtual display model (C9, §4.9):
// geometry/DPI/monitor tracking, resize validation, cursor state, and
// bell/keyboard-layout/xsettings forwarding. Platform capture itself
// (actually driving a vfb) stays out of scope; this package is the
// session-side record of display state that gets serialized onto the
// wire.
package display

import (
	"fmt"
	"sync"

	"github.com/xpra-project/session-core/internal/wire"
)

// Monitor describes one output in a (possibly multi-monitor) virtual
// display.
type Monitor struct {
	Name          string
	X, Y          int
	Width, Height int
	RefreshRateHz float64
}

// Geometry is the display's current (width, height, dpi_x, dpi_y,
// refresh_rate, monitors) tuple (§4.9).
type Geometry struct {
	Width, Height int
	DPIX, DPIY    int
	RefreshRateHz float64
	Monitors      []Monitor
}

// Range bounds the resize requests the display will accept.
type Range struct {
	MinWidth, MinHeight int
	MaxWidth, MaxHeight int
}

// ErrOutOfRange is returned by Resize when the request falls outside
// the configured range or exceeds the client's largest monitor.
var ErrOutOfRange = fmt.Errorf("display: resize request out of range")

// Listener receives display-level change notifications.
type Listener interface {
	GeometryChanged(g Geometry)
	BellRang()
	KeyboardLayoutGroupChanged(group int)
	XSettingsChanged(settings map[string]wire.Value)
}

// Display is the session's authoritative virtual-display state.
type Display struct {
	mu      sync.RWMutex
	geom    Geometry
	allowed Range

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New builds a Display starting at initial geometry, constrained to
// allowed for future resize requests.
func New(initial Geometry, allowed Range) *Display {
	return &Display{geom: initial, allowed: allowed}
}

// AddListener registers l for future geometry/bell/layout/xsettings
// notifications.
func (d *Display) AddListener(l Listener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, l)
}

// RemoveListener unregisters l.
func (d *Display) RemoveListener(l Listener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

func (d *Display) broadcast(f func(Listener)) {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	for _, l := range d.listeners {
		f(l)
	}
}

// Geometry returns the display's current geometry.
func (d *Display) Geometry() Geometry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.geom
}

// Resize validates req against the configured Range and the requesting
// client's largest monitor, then applies it (§4.9: "On resize request,
// validates against a configured range and the current client's largest
// monitor"). largestClientMonitor.Width/Height of zero skips the
// per-client bound (used when the request doesn't originate from a
// specific client, e.g. an admin override).
func (d *Display) Resize(req Geometry, largestClientMonitor Monitor) error {
	if d.allowed.MinWidth > 0 && req.Width < d.allowed.MinWidth {
		return fmt.Errorf("%w: width %d below minimum %d", ErrOutOfRange, req.Width, d.allowed.MinWidth)
	}
	if d.allowed.MinHeight > 0 && req.Height < d.allowed.MinHeight {
		return fmt.Errorf("%w: height %d below minimum %d", ErrOutOfRange, req.Height, d.allowed.MinHeight)
	}
	if d.allowed.MaxWidth > 0 && req.Width > d.allowed.MaxWidth {
		return fmt.Errorf("%w: width %d exceeds maximum %d", ErrOutOfRange, req.Width, d.allowed.MaxWidth)
	}
	if d.allowed.MaxHeight > 0 && req.Height > d.allowed.MaxHeight {
		return fmt.Errorf("%w: height %d exceeds maximum %d", ErrOutOfRange, req.Height, d.allowed.MaxHeight)
	}
	if largestClientMonitor.Width > 0 && req.Width > largestClientMonitor.Width {
		return fmt.Errorf("%w: width %d exceeds client's largest monitor %d", ErrOutOfRange, req.Width, largestClientMonitor.Width)
	}
	if largestClientMonitor.Height > 0 && req.Height > largestClientMonitor.Height {
		return fmt.Errorf("%w: height %d exceeds client's largest monitor %d", ErrOutOfRange, req.Height, largestClientMonitor.Height)
	}

	d.mu.Lock()
	d.geom = req
	d.mu.Unlock()

	d.broadcast(func(l Listener) { l.GeometryChanged(req) })
	return nil
}

// Bell forwards a bell event to every attached client as a standalone
// packet (§4.9).
func (d *Display) Bell() {
	d.broadcast(func(l Listener) { l.BellRang() })
}

// SetKeyboardLayoutGroup forwards a keyboard-layout-group change.
func (d *Display) SetKeyboardLayoutGroup(group int) {
	d.broadcast(func(l Listener) { l.KeyboardLayoutGroupChanged(group) })
}

// SetXSettings forwards an xsettings update as a keyed map (§4.9).
func (d *Display) SetXSettings(settings map[string]wire.Value) {
	d.broadcast(func(l Listener) { l.XSettingsChanged(settings) })
}
