package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xpra-project/session-core/internal/window"
)

// RendezvousState is everything a successor process needs to re-attach
// to a live vfb without destroying its surfaces (§4.8 "upgrade"): the
// current window set and every client's reconnection tuple, keyed by
// UUID so clients that re-hello after the hand-off rebind exactly as
// they would after an ordinary disconnect.
type RendezvousState struct {
	SavedAt  time.Time              `json:"saved_at"`
	Surfaces []window.Snapshot      `json:"surfaces"`
	Clients  map[string]ClientState `json:"clients"`
}

// WriteRendezvous serializes the current session state to path, the
// well-known location the successor process is configured to read from
// (§4.8: "writes session state to a well-known rendezvous path, exits
// leaving the vfb intact"). JSON is used rather than a binary format
// because this is a local, single-reader hand-off file, not a wire
// protocol payload — no pack library targets this narrower local-
// persistence use case.
func WriteRendezvous(path string, model *window.Model, m *Manager) error {
	m.mu.Lock()
	clients := make(map[string]ClientState, len(m.clients))
	for clientUUID, cs := range m.clients {
		clients[clientUUID] = *cs
	}
	m.mu.Unlock()

	state := RendezvousState{
		SavedAt:  time.Now(),
		Surfaces: model.Snapshots(),
		Clients:  clients,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: marshal rendezvous state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("session: write rendezvous file %s: %w", path, err)
	}
	return nil
}

// ReadRendezvous loads a RendezvousState written by a predecessor
// process's WriteRendezvous.
func ReadRendezvous(path string) (*RendezvousState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read rendezvous file %s: %w", path, err)
	}
	var state RendezvousState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session: unmarshal rendezvous state: %w", err)
	}
	return &state, nil
}

// RestoreFromRendezvous repopulates model with the predecessor's
// surfaces and seeds the manager's retained-client map so every client
// named in state can rebind via an ordinary Connect reconnect once it
// re-hellos against the successor's reopened listening sockets.
func (m *Manager) RestoreFromRendezvous(model *window.Model, state *RendezvousState) {
	model.Restore(state.Surfaces)

	m.mu.Lock()
	defer m.mu.Unlock()
	for clientUUID, cs := range state.Clients {
		restored := cs
		restored.connected = false
		restored.DisconnectedAt = time.Now()
		m.retained[clientUUID] = &restored
	}
}
