package subchannel

import "fmt"

// ControlCommand names a runtime parameter change (§7: "control <cmd>
// — runtime parameter change (speed, quality, encoding, refresh, share
// policy)").
type ControlCommand string

const (
	ControlSpeed        ControlCommand = "speed"
	ControlQuality      ControlCommand = "quality"
	ControlEncoding     ControlCommand = "encoding"
	ControlRefresh      ControlCommand = "refresh"
	ControlSharePolicy  ControlCommand = "share-policy"
)

// ErrUnknownControlCommand is returned for any command name other than
// the ones listed in §7.
var ErrUnknownControlCommand = fmt.Errorf("subchannel: unknown control command")

// ErrInvalidControlArgument is returned when a recognized command
// receives an argument outside its valid range.
var ErrInvalidControlArgument = fmt.Errorf("subchannel: invalid control argument")

// ControlSink receives the effect of a validated control command;
// implemented by whatever owns the corresponding live parameter (the
// damage scheduler for speed/quality/refresh, the encoder registry's
// client-preference order for encoding, the session manager for
// share-policy).
type ControlSink interface {
	// SetQualitySpeed applies a new quality and/or speed target; -1
	// for either argument means "leave this one unchanged".
	SetQualitySpeed(quality, speed int)
	SetPreferredEncoding(name string)
	SetAutoRefreshDelayMs(delayMs int)
	SetSharingAllowed(allowed bool)
}

// Control validates and applies operator/control-pass-through commands
// against a ControlSink, keeping the subchannel module free of any
// direct dependency on the damage/encoder/session packages (mirroring
// the one-directional seams used elsewhere in this core).
type Control struct {
	sink ControlSink
}

// NewControl builds a control subchannel delivering validated commands
// to sink.
func NewControl(sink ControlSink) *Control {
	return &Control{sink: sink}
}

// Apply validates cmd and its argument and, if valid, applies it via
// the sink. value holds an int for speed/quality/refresh, a string for
// encoding, and a bool for share-policy.
func (c *Control) Apply(cmd ControlCommand, value interface{}) error {
	switch cmd {
	case ControlQuality:
		q, ok := value.(int)
		if !ok || q < 0 || q > 100 {
			return ErrInvalidControlArgument
		}
		c.sink.SetQualitySpeed(q, -1)
		return nil
	case ControlSpeed:
		s, ok := value.(int)
		if !ok || s < 0 || s > 100 {
			return ErrInvalidControlArgument
		}
		c.sink.SetQualitySpeed(-1, s)
		return nil
	case ControlEncoding:
		name, ok := value.(string)
		if !ok || name == "" {
			return ErrInvalidControlArgument
		}
		c.sink.SetPreferredEncoding(name)
		return nil
	case ControlRefresh:
		delayMs, ok := value.(int)
		if !ok || delayMs < 0 {
			return ErrInvalidControlArgument
		}
		c.sink.SetAutoRefreshDelayMs(delayMs)
		return nil
	case ControlSharePolicy:
		allowed, ok := value.(bool)
		if !ok {
			return ErrInvalidControlArgument
		}
		c.sink.SetSharingAllowed(allowed)
		return nil
	default:
		return ErrUnknownControlCommand
	}
}
