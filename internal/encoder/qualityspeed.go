package encoder

// qualitySpeedFloor returns the minimum quality/speed an encoder needs
// to be considered at all: video encoders are built for motion and
// refuse to run below a usable bitrate, so they carry a non-zero floor;
// still-image encoders accept the full [0,100] range.
func qualitySpeedFloor(caps Capabilities) (minQuality, minSpeed int) {
	if caps.IsVideo {
		return 10, 0
	}
	return 0, 0
}

// Ladder maps the abstract [0,100] quality/speed knobs the scheduler
// exposes onto an encoder's native parameter space. Each adapter owns
// its own instance so the mapping can reflect its codec's actual
// quantizer/bitrate curve (§4.7: quality/speed are the interface's
// abstraction, not a wire value for any particular codec).
type Ladder struct {
	// MinBitrateBps/MaxBitrateBps bound a linear interpolation across
	// quality 0..100 for video encoders.
	MinBitrateBps, MaxBitrateBps int64
	// MinStillQuality/MaxStillQuality bound a linear interpolation for
	// still-image encoders (e.g. JPEG quality 1..100 with a usable
	// floor well above 0).
	MinStillQuality, MaxStillQuality int
}

// Bitrate interpolates quality (0-100) across the ladder's bitrate
// range.
func (l Ladder) Bitrate(quality int) int64 {
	quality = clamp(quality, 0, 100)
	span := l.MaxBitrateBps - l.MinBitrateBps
	return l.MinBitrateBps + span*int64(quality)/100
}

// StillQuality interpolates the abstract quality knob across the
// encoder's native still-image quality range.
func (l Ladder) StillQuality(quality int) int {
	quality = clamp(quality, 0, 100)
	span := l.MaxStillQuality - l.MinStillQuality
	return l.MinStillQuality + span*quality/100
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
