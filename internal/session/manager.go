// Package session implements the session manager (C8, §4.8): client
// lifecycle, the reconnection grace window, sharing/stealing policy,
// upgrade hand-off, and idle timeout. The design mirrors the teacher's
// connman.ConnectionManager (grace-period reconnect over a key->state
// map with a background cleanup loop), generalized from TCP dial
// queuing to xpra session/client state.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/xpra-project/session-core/internal/wire"
	"github.com/xpra-project/session-core/internal/window"
)

var (
	// ErrSessionBusy is returned by Connect when sharing is disabled,
	// another client is already connected, and the new client did not
	// set steal (§4.8).
	ErrSessionBusy = errors.New("session: session busy")
	// ErrUnknownClient is returned by operations addressing a client UUID
	// the manager has no record of, connected or retained.
	ErrUnknownClient = errors.New("session: unknown client")
)

// DefaultReconnectWindow is how long a disconnected client's state is
// retained before being discarded (§4.8: "retains... for reconnect_window
// seconds (default 120)").
const DefaultReconnectWindow = 120 * time.Second

// cleanupInterval is how often the background loop sweeps expired
// retained clients, mirroring connman's CleanupInterval.
const cleanupInterval = 5 * time.Second

// ClientState is everything the manager retains about one attached (or
// recently detached) client (§4.8's reconnection tuple, extended with
// bookkeeping the manager itself needs).
type ClientState struct {
	UUID  string
	Share bool
	Steal bool

	Focus           window.ID
	Filters         []string
	AckState        map[window.ID]uint64
	ClipboardOwner  map[string]string // selection -> owner UUID
	LastInputAt     time.Time
	DisconnectedAt  time.Time
	connected       bool
}

func newClientState(clientUUID string, share, steal bool) *ClientState {
	return &ClientState{
		UUID:           clientUUID,
		Share:          share,
		Steal:          steal,
		AckState:       make(map[window.ID]uint64),
		ClipboardOwner: make(map[string]string),
		LastInputAt:    time.Now(),
		connected:      true,
	}
}

// Eviction describes a client the manager decided to disconnect as a
// side effect of admitting another one (§4.8 stealing).
type Eviction struct {
	UUID   string
	Reason wire.DisconnectReason
}

// Manager owns the single session's client set: which clients are
// connected, which are in their reconnection grace window, and the
// sharing/stealing/idle policy governing admission.
type Manager struct {
	mu sync.Mutex

	model *window.Model

	clients   map[string]*ClientState // connected
	retained  map[string]*ClientState // disconnected, within grace window

	reconnectWindow time.Duration
	idleTimeout     time.Duration
	sharingAllowed  bool

	focusOwner map[window.ID]string // wid -> uuid of the client whose input was applied last

	id string

	logger   zerolog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// ID returns this session's lexicographically-sortable identifier,
// suitable for a `list-sessions` style enumeration across many
// concurrently running session processes.
func (m *Manager) ID() string { return m.id }

// SetSharingAllowed updates the sharing policy applied to future
// Connect calls; clients already admitted are unaffected.
func (m *Manager) SetSharingAllowed(allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sharingAllowed = allowed
}

// Config bundles the manager's policy knobs, sourced from config.Session.
type Config struct {
	ReconnectWindow time.Duration
	IdleTimeout     time.Duration
	SharingAllowed  bool
}

// NewManager builds a Manager bound to model and starts its background
// grace-period cleanup loop.
func NewManager(model *window.Model, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.ReconnectWindow <= 0 {
		cfg.ReconnectWindow = DefaultReconnectWindow
	}
	m := &Manager{
		id:              ulid.Make().String(),
		model:           model,
		clients:         make(map[string]*ClientState),
		retained:        make(map[string]*ClientState),
		reconnectWindow: cfg.ReconnectWindow,
		idleTimeout:     cfg.IdleTimeout,
		sharingAllowed:  cfg.SharingAllowed,
		focusOwner:      make(map[window.ID]string),
		logger:          logger,
		stopCh:          make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Stop halts the background cleanup loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.expireRetained()
		}
	}
}

func (m *Manager) expireRetained() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for clientUUID, cs := range m.retained {
		if now.Sub(cs.DisconnectedAt) > m.reconnectWindow {
			delete(m.retained, clientUUID)
			m.logger.Debug().Str("client", clientUUID).Msg("reconnect grace window expired, discarding retained state")
		}
	}
}

// NewClientUUID generates a fresh client identifier for a Hello that
// didn't carry one (first connection, no prior session to rebind to).
func NewClientUUID() string { return uuid.NewString() }

// Connect admits or rebinds a client by UUID, applying the sharing and
// stealing policy of §4.8. On success it returns the live ClientState
// (freshly rebound from retained state, or newly created) plus any
// existing clients that must be forcibly disconnected as a result.
func (m *Manager) Connect(clientUUID string, share, steal bool) (*ClientState, []Eviction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if retained, ok := m.retained[clientUUID]; ok {
		delete(m.retained, clientUUID)
		// The cleanup loop only sweeps every cleanupInterval, so an
		// entry past its grace window may still be here; treat it as gone.
		if time.Since(retained.DisconnectedAt) <= m.reconnectWindow {
			retained.connected = true
			retained.Share, retained.Steal = share, steal
			retained.LastInputAt = time.Now()
			m.clients[clientUUID] = retained
			return retained, nil, nil
		}
	}

	if !m.sharingAllowed && len(m.clients) > 0 {
		if !steal {
			return nil, nil, ErrSessionBusy
		}
		evictions := make([]Eviction, 0, len(m.clients))
		for existingUUID := range m.clients {
			evictions = append(evictions, Eviction{UUID: existingUUID, Reason: wire.ReasonPolicy})
			delete(m.clients, existingUUID)
		}
		cs := newClientState(clientUUID, share, steal)
		m.clients[clientUUID] = cs
		return cs, evictions, nil
	}

	cs := newClientState(clientUUID, share, steal)
	m.clients[clientUUID] = cs
	return cs, nil, nil
}

// Disconnect moves a connected client into the retention map, starting
// its reconnection grace window (§4.8).
func (m *Manager) Disconnect(clientUUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.clients[clientUUID]
	if !ok {
		return
	}
	delete(m.clients, clientUUID)
	cs.connected = false
	cs.DisconnectedAt = time.Now()
	m.retained[clientUUID] = cs
}

// Get returns the state for a currently connected client.
func (m *Manager) Get(clientUUID string) (*ClientState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.clients[clientUUID]
	return cs, ok
}

// ConnectedUUIDs returns every currently connected client's UUID.
func (m *Manager) ConnectedUUIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.clients))
	for clientUUID := range m.clients {
		out = append(out, clientUUID)
	}
	return out
}

// RecordAck stores the last acknowledged sequence for wid on behalf of
// clientUUID, part of the reconnection tuple (§4.8).
func (m *Manager) RecordAck(clientUUID string, wid window.ID, sequence uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.clients[clientUUID]; ok {
		cs.AckState[wid] = sequence
	}
}
