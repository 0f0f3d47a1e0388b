package main

import (
	"os"
	"testing"
	"time"
)

func withRuntimeDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	return dir
}

func TestWriteReadDotxpraRoundTrip(t *testing.T) {
	withRuntimeDir(t)

	want := dotxpra{
		Display:   ":100",
		PID:       os.Getpid(),
		SessionID: "01ABC",
		StartedAt: time.Now().Truncate(time.Second),
		Socket:    socketPath(":100"),
		Control:   controlPath(":100"),
	}
	if err := writeDotxpra(want); err != nil {
		t.Fatalf("writeDotxpra: %v", err)
	}

	got, err := readDotxpra(":100")
	if err != nil {
		t.Fatalf("readDotxpra: %v", err)
	}
	if got.Display != want.Display || got.PID != want.PID || got.SessionID != want.SessionID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Fatalf("StartedAt mismatch: got %v, want %v", got.StartedAt, want.StartedAt)
	}
}

func TestListDisplaysSkipsDeadSessions(t *testing.T) {
	withRuntimeDir(t)

	if err := writeDotxpra(dotxpra{Display: ":1", PID: os.Getpid(), StartedAt: time.Now()}); err != nil {
		t.Fatalf("writeDotxpra alive: %v", err)
	}
	if err := writeDotxpra(dotxpra{Display: ":2", PID: 999999999, StartedAt: time.Now()}); err != nil {
		t.Fatalf("writeDotxpra dead: %v", err)
	}

	sessions, err := listDisplays()
	if err != nil {
		t.Fatalf("listDisplays: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Display != ":1" {
		t.Fatalf("expected only :1 to be listed, got %+v", sessions)
	}
}

func TestListDisplaysEmptyWhenDirMissing(t *testing.T) {
	withRuntimeDir(t)

	sessions, err := listDisplays()
	if err != nil {
		t.Fatalf("listDisplays: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %+v", sessions)
	}
}

func TestDefaultDisplayFallsBackToEnv(t *testing.T) {
	t.Setenv("DISPLAY", ":42")
	if got := defaultDisplay(""); got != ":42" {
		t.Fatalf("defaultDisplay(\"\") = %q, want :42", got)
	}
	if got := defaultDisplay(":7"); got != ":7" {
		t.Fatalf("defaultDisplay(\":7\") = %q, want :7", got)
	}
}

func TestRendezvousPathDefaultsName(t *testing.T) {
	withRuntimeDir(t)
	got := rendezvousPath(":100", "")
	want := sessionDir(":100") + "/xpra-upgrade.state"
	if got != want {
		t.Fatalf("rendezvousPath = %q, want %q", got, want)
	}
}
