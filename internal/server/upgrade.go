package server

import (
	"fmt"

	"github.com/xpra-project/session-core/internal/session"
)

// WriteRendezvous persists this server's window set and client
// reconnection state to path so a successor process started with
// RestoreFromRendezvous can resume it (§4.8 upgrade).
func (s *Server) WriteRendezvous(path string) error {
	if err := session.WriteRendezvous(path, s.model, s.manager); err != nil {
		return fmt.Errorf("server: write rendezvous: %w", err)
	}
	return nil
}

// RestoreFromRendezvous seeds a freshly built Server (before Serve is
// called) from a predecessor's rendezvous file, so clients that re-hello
// against the new listening sockets rebind as an ordinary reconnect.
func (s *Server) RestoreFromRendezvous(path string) error {
	state, err := session.ReadRendezvous(path)
	if err != nil {
		return fmt.Errorf("server: read rendezvous: %w", err)
	}
	s.manager.RestoreFromRendezvous(s.model, state)
	return nil
}
