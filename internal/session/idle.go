package session

import (
	"time"

	"github.com/xpra-project/session-core/internal/wire"
)

// RecordInput refreshes clientUUID's last-input timestamp, resetting
// its idle clock (§4.8: "idle_timeout disconnects clients that have
// produced no input events for that interval").
func (m *Manager) RecordInput(clientUUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.clients[clientUUID]; ok {
		cs.LastInputAt = time.Now()
	}
}

// IdleEvictions returns the connected clients whose input has been
// silent for longer than the configured idle_timeout, paired with the
// disconnect reason the caller should send. An idleTimeout of zero
// disables the check (§4.8 leaves idle_timeout optional).
func (m *Manager) IdleEvictions() []Eviction {
	if m.idleTimeout <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var evictions []Eviction
	for clientUUID, cs := range m.clients {
		if now.Sub(cs.LastInputAt) >= m.idleTimeout {
			evictions = append(evictions, Eviction{UUID: clientUUID, Reason: wire.ReasonIdleTimeout})
		}
	}
	return evictions
}
