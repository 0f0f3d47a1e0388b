package server

import (
	"fmt"
	"time"

	"github.com/xpra-project/session-core/internal/subchannel"
	"github.com/xpra-project/session-core/internal/wire"
)

// Info is the read-only snapshot a control client requests for
// `info`/`list-clients` (§6).
type Info struct {
	Encodings []string
	Clients   []string
	Uptime    time.Duration
}

// Info reports the server's current encodings, connected client UUIDs,
// and time since New.
func (s *Server) Info() Info {
	return Info{
		Encodings: append([]string(nil), s.encodings...),
		Clients:   s.manager.ConnectedUUIDs(),
		Uptime:    time.Since(s.startAt),
	}
}

// sessionControlSink applies a `control` CLI command (§6) to the whole
// session rather than one client's subchannel.Control, since the
// control socket speaks for the process, not a single connection.
type sessionControlSink struct{ s *Server }

func (sink sessionControlSink) SetQualitySpeed(quality, speed int) {
	// Quality/speed are supplied per encode job by the scheduler today;
	// there is no persistent session-wide knob to set them against.
}

func (sink sessionControlSink) SetPreferredEncoding(name string) {
	sink.s.dispatcher.SetClientOrder([]string{name})
}

func (sink sessionControlSink) SetAutoRefreshDelayMs(delayMs int) {
	// The scheduler's auto-refresh delay is fixed at construction
	// (damage.Config.AutoRefreshDelay); no runtime setter exists yet.
}

func (sink sessionControlSink) SetSharingAllowed(allowed bool) {
	sink.s.manager.SetSharingAllowed(allowed)
}

// DisconnectClient closes the named client's endpoint with
// ReasonPolicy, used by `detach` to evict one attached client without
// stopping the session.
func (s *Server) DisconnectClient(uuid string) error {
	c, ok := s.clientByUUID(uuid)
	if !ok {
		return fmt.Errorf("no attached client with uuid %s", uuid)
	}
	return c.ep.Close(wire.ReasonPolicy)
}

// Control applies a runtime control command session-wide.
func (s *Server) Control(cmd subchannel.ControlCommand, value interface{}) error {
	ctl := subchannel.NewControl(sessionControlSink{s: s})
	if err := ctl.Apply(cmd, value); err != nil {
		return fmt.Errorf("apply control %s: %w", cmd, err)
	}
	return nil
}
