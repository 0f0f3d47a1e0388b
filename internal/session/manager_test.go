package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xpra-project/session-core/internal/wire"
	"github.com/xpra-project/session-core/internal/window"
)

func newTestManager(sharing bool, idleTimeout time.Duration) *Manager {
	model := window.New()
	m := NewManager(model, Config{ReconnectWindow: 50 * time.Millisecond, IdleTimeout: idleTimeout, SharingAllowed: sharing}, zerolog.Nop())
	return m
}

func TestConnectFirstClientAlwaysAdmitted(t *testing.T) {
	m := newTestManager(false, 0)
	defer m.Stop()

	cs, evictions, err := m.Connect("client-a", false, false)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if cs.UUID != "client-a" || len(evictions) != 0 {
		t.Fatalf("unexpected result: %+v %+v", cs, evictions)
	}
}

func TestConnectSecondClientRejectedWithoutShareOrSteal(t *testing.T) {
	m := newTestManager(false, 0)
	defer m.Stop()

	if _, _, err := m.Connect("client-a", false, false); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	_, _, err := m.Connect("client-b", false, false)
	if err != ErrSessionBusy {
		t.Fatalf("err = %v, want ErrSessionBusy", err)
	}
}

func TestConnectStealEvictsExisting(t *testing.T) {
	m := newTestManager(false, 0)
	defer m.Stop()

	if _, _, err := m.Connect("client-a", false, false); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	cs, evictions, err := m.Connect("client-b", false, true)
	if err != nil {
		t.Fatalf("steal connect: %v", err)
	}
	if cs.UUID != "client-b" {
		t.Fatalf("cs.UUID = %s, want client-b", cs.UUID)
	}
	if len(evictions) != 1 || evictions[0].UUID != "client-a" || evictions[0].Reason != wire.ReasonPolicy {
		t.Fatalf("evictions = %+v, want one policy eviction of client-a", evictions)
	}
	if _, ok := m.Get("client-a"); ok {
		t.Fatal("client-a should no longer be connected")
	}
}

func TestConnectSharingAllowsMultiple(t *testing.T) {
	m := newTestManager(true, 0)
	defer m.Stop()

	if _, _, err := m.Connect("client-a", true, false); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if _, _, err := m.Connect("client-b", true, false); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if len(m.ConnectedUUIDs()) != 2 {
		t.Fatalf("ConnectedUUIDs = %v, want 2 entries", m.ConnectedUUIDs())
	}
}

func TestDisconnectAndReconnectRebindsWithinWindow(t *testing.T) {
	m := newTestManager(false, 0)
	defer m.Stop()

	cs, _, err := m.Connect("client-a", false, false)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.Focus = window.ID(42)
	m.Disconnect("client-a")

	if _, ok := m.Get("client-a"); ok {
		t.Fatal("client-a should be retained, not connected")
	}

	rebound, _, err := m.Connect("client-a", false, false)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if rebound.Focus != window.ID(42) {
		t.Fatalf("rebound.Focus = %d, want 42 (state should have been retained)", rebound.Focus)
	}
}

func TestReconnectAfterGraceWindowExpiresIsTreatedAsNew(t *testing.T) {
	m := newTestManager(false, 0)
	defer m.Stop()

	cs, _, err := m.Connect("client-a", false, false)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	cs.Focus = window.ID(7)
	m.Disconnect("client-a")

	time.Sleep(120 * time.Millisecond) // past the 50ms reconnect window

	rebound, _, err := m.Connect("client-a", false, false)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if rebound.Focus != 0 {
		t.Fatalf("rebound.Focus = %d, want 0 (fresh state after grace expiry)", rebound.Focus)
	}
}

func TestIdleEvictionsRespectsTimeout(t *testing.T) {
	m := newTestManager(true, 10*time.Millisecond)
	defer m.Stop()

	if _, _, err := m.Connect("client-a", true, false); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if evictions := m.IdleEvictions(); len(evictions) != 0 {
		t.Fatalf("fresh client should not be idle: %+v", evictions)
	}

	time.Sleep(20 * time.Millisecond)
	evictions := m.IdleEvictions()
	if len(evictions) != 1 || evictions[0].UUID != "client-a" || evictions[0].Reason != wire.ReasonIdleTimeout {
		t.Fatalf("evictions = %+v, want one idle-timeout eviction of client-a", evictions)
	}
}

func TestManagerHasStableNonEmptyID(t *testing.T) {
	m := newTestManager(false, 0)
	defer m.Stop()

	if m.ID() == "" {
		t.Fatal("Manager.ID() should be non-empty")
	}
	if m.ID() != m.ID() {
		t.Fatal("Manager.ID() should be stable across calls")
	}
}

func TestInputArbiterLastWriteWinsPerSurface(t *testing.T) {
	a := NewInputArbiter()
	now := time.Now()

	if !a.Apply("client-a", window.ID(1), now) {
		t.Fatal("first event should apply")
	}
	if a.Apply("client-b", window.ID(1), now.Add(-time.Second)) {
		t.Fatal("earlier event should be rejected")
	}
	owner, ok := a.Owner(window.ID(1))
	if !ok || owner != "client-a" {
		t.Fatalf("owner = %s, ok=%v, want client-a", owner, ok)
	}

	if !a.Apply("client-b", window.ID(1), now.Add(time.Second)) {
		t.Fatal("later event should apply")
	}
	owner, _ = a.Owner(window.ID(1))
	if owner != "client-b" {
		t.Fatalf("owner = %s, want client-b", owner)
	}
}
