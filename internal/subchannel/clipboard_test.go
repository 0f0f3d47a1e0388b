package subchannel

import "testing"

func TestClipboardRequestAndGrantRoundTrip(t *testing.T) {
	c := NewClipboard(DirectionBoth)
	if err := c.RequestToken(SelectionClipboard); err != nil {
		t.Fatalf("RequestToken: %v", err)
	}
	if got := c.State(SelectionClipboard); got != TokenRequested {
		t.Fatalf("state = %v, want TokenRequested", got)
	}
	if err := c.GrantToken(SelectionClipboard); err != nil {
		t.Fatalf("GrantToken: %v", err)
	}
	if got := c.State(SelectionClipboard); got != TokenHeld {
		t.Fatalf("state = %v, want TokenHeld", got)
	}
}

func TestClipboardDirectionRestrictsGrant(t *testing.T) {
	c := NewClipboard(DirectionToServer)
	if err := c.GrantToken(SelectionPrimary); err != ErrDirectionDisallowed {
		t.Fatalf("GrantToken err = %v, want ErrDirectionDisallowed", err)
	}
}

func TestClipboardDirectionRestrictsRequest(t *testing.T) {
	c := NewClipboard(DirectionToClient)
	if err := c.RequestToken(SelectionPrimary); err != ErrDirectionDisallowed {
		t.Fatalf("RequestToken err = %v, want ErrDirectionDisallowed", err)
	}
}

func TestClipboardLoopDetectorSuspendsAfterSustainedGrants(t *testing.T) {
	c := NewClipboard(DirectionBoth)

	// Force a sustained grant storm by manufacturing grant timestamps
	// directly rather than sleeping in the test: push more than
	// loopThreshold grants in one window, then advance loopSince
	// beyond loopPersist without resetting it.
	for i := 0; i < loopThreshold+1; i++ {
		if err := c.GrantToken(SelectionClipboard); err != nil && err != ErrLoopSuspended {
			t.Fatalf("unexpected GrantToken error: %v", err)
		}
	}
	c.loopSince = c.loopSince.Add(-loopPersist - 1)

	if err := c.GrantToken(SelectionClipboard); err != ErrLoopSuspended {
		t.Fatalf("GrantToken err = %v, want ErrLoopSuspended", err)
	}
	if !c.Suspended() {
		t.Fatal("expected channel to be suspended")
	}

	c.Reset()
	if c.Suspended() {
		t.Fatal("expected Reset to clear suspension")
	}
	if err := c.GrantToken(SelectionClipboard); err != nil {
		t.Fatalf("GrantToken after reset: %v", err)
	}
}

func TestClipboardClearResetsToNoToken(t *testing.T) {
	c := NewClipboard(DirectionBoth)
	_ = c.GrantToken(SelectionSecondary)
	c.Clear(SelectionSecondary)
	if got := c.State(SelectionSecondary); got != NoToken {
		t.Fatalf("state = %v, want NoToken", got)
	}
}

func TestClipboardSuspendedRejectsFurtherCalls(t *testing.T) {
	c := NewClipboard(DirectionBoth)
	c.suspended = true
	if err := c.RequestToken(SelectionClipboard); err != ErrLoopSuspended {
		t.Fatalf("RequestToken err = %v, want ErrLoopSuspended", err)
	}
	if err := c.GrantToken(SelectionClipboard); err != ErrLoopSuspended {
		t.Fatalf("GrantToken err = %v, want ErrLoopSuspended", err)
	}
}
