package server

import (
	"fmt"

	"github.com/xpra-project/session-core/internal/damage"
	"github.com/xpra-project/session-core/internal/encoder"
)

// ErrNoCaptureBackend is returned by noCaptureSource, the default
// encoder.ImageSource when the server is built without a platform
// capture backend wired in. Grabbing pixels off a real X11/Wayland
// surface is platform glue out of spec.md's Non-goals — a real
// deployment supplies its own encoder.ImageSource via
// Options.ImageSource.
var ErrNoCaptureBackend = fmt.Errorf("server: no platform capture backend configured")

type noCaptureSource struct{}

func (noCaptureSource) CaptureRegion(uint64, damage.Rect) (encoder.SurfaceImage, error) {
	return encoder.SurfaceImage{}, ErrNoCaptureBackend
}
