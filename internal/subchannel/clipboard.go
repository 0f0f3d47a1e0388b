// Package subchannel implements the small per-feature state machines
// multiplexed over one connection using dedicated packet types (C10,
// §4.10): clipboard token ownership, audio jitter buffering, chunked
// file transfer, and notification/bell dedup. Platform clipboard/audio
// glue is out of scope (spec.md §1 Non-goals) — these are pure protocol
// state machines over already-framed bytes.
package subchannel

import (
	"fmt"
	"time"
)

// Selection names the clipboard selection a token/data message applies
// to (§4.10).
type Selection string

const (
	SelectionClipboard Selection = "CLIPBOARD"
	SelectionPrimary   Selection = "PRIMARY"
	SelectionSecondary Selection = "SECONDARY"
)

// TokenState is one selection's ownership state (§4.10: "{no-token,
// token-held, token-requested}").
type TokenState int

const (
	NoToken TokenState = iota
	TokenHeld
	TokenRequested
)

// Direction restricts which way clipboard tokens/data may flow,
// mirroring the hello option `clipboard-direction` (§4.4).
type Direction string

const (
	DirectionToServer Direction = "to-server"
	DirectionToClient Direction = "to-client"
	DirectionBoth     Direction = "both"
	DirectionDisabled Direction = "disabled"
)

func (d Direction) allowsToServer() bool { return d == DirectionToServer || d == DirectionBoth }
func (d Direction) allowsToClient() bool { return d == DirectionToClient || d == DirectionBoth }

// ErrDirectionDisallowed is returned when a grant or data move is
// blocked by the negotiated clipboard direction.
var ErrDirectionDisallowed = fmt.Errorf("subchannel: clipboard direction disallows this move")

// ErrLoopSuspended is returned while the loop detector has suspended the
// channel.
var ErrLoopSuspended = fmt.Errorf("subchannel: clipboard channel suspended (grant loop detected)")

// loopWindow/loopThreshold implement §4.10's "loop detector suspends the
// channel if more than 10 grants per second persist for 3 s".
const (
	loopWindow     = time.Second
	loopThreshold  = 10
	loopPersist    = 3 * time.Second
)

// Clipboard is one client's clipboard subchannel: per-selection token
// state, the negotiated direction filter, and a grant-rate loop
// detector.
type Clipboard struct {
	direction Direction
	state     map[Selection]TokenState

	grantTimes []time.Time
	loopSince  time.Time
	suspended  bool
}

// NewClipboard builds a clipboard subchannel with the given negotiated
// direction, all selections starting with no token held.
func NewClipboard(direction Direction) *Clipboard {
	return &Clipboard{
		direction: direction,
		state: map[Selection]TokenState{
			SelectionClipboard: NoToken,
			SelectionPrimary:   NoToken,
			SelectionSecondary: NoToken,
		},
	}
}

// State returns sel's current token state.
func (c *Clipboard) State(sel Selection) TokenState { return c.state[sel] }

// RequestToken marks sel as requested by the client (to-server
// direction; the server owns granting).
func (c *Clipboard) RequestToken(sel Selection) error {
	if c.suspended {
		return ErrLoopSuspended
	}
	if !c.direction.allowsToServer() {
		return ErrDirectionDisallowed
	}
	c.state[sel] = TokenRequested
	return nil
}

// GrantToken records a token grant for sel, to-client direction, and
// folds it into the loop detector (§4.10). It returns ErrLoopSuspended
// once a sustained grant storm is detected, and the subchannel stays
// suspended until Reset is called.
func (c *Clipboard) GrantToken(sel Selection) error {
	if c.suspended {
		return ErrLoopSuspended
	}
	if !c.direction.allowsToClient() {
		return ErrDirectionDisallowed
	}

	now := time.Now()
	c.grantTimes = append(c.grantTimes, now)
	cutoff := now.Add(-loopWindow)
	i := 0
	for i < len(c.grantTimes) && c.grantTimes[i].Before(cutoff) {
		i++
	}
	c.grantTimes = c.grantTimes[i:]

	if len(c.grantTimes) > loopThreshold {
		if c.loopSince.IsZero() {
			c.loopSince = now
		} else if now.Sub(c.loopSince) >= loopPersist {
			c.suspended = true
			return ErrLoopSuspended
		}
	} else {
		c.loopSince = time.Time{}
	}

	c.state[sel] = TokenHeld
	return nil
}

// Clear drops sel's token (it moved to "no owner", e.g. another
// application claimed it locally).
func (c *Clipboard) Clear(sel Selection) {
	c.state[sel] = NoToken
}

// Reset clears the loop-suspended flag, for an operator-triggered
// recovery or a fresh hello.
func (c *Clipboard) Reset() {
	c.suspended = false
	c.grantTimes = nil
	c.loopSince = time.Time{}
}

// Suspended reports whether the loop detector has currently disabled
// this channel.
func (c *Clipboard) Suspended() bool { return c.suspended }
