package damage

import "fmt"

// State is one of the five per-surface damage states of §4.6.
type State int

const (
	StateIdle State = iota
	StateBatching
	StateEncoding
	StateAwaitingAck
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBatching:
		return "batching"
	case StateEncoding:
		return "encoding"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transition applies one of the named events to the current state and
// returns the next state. Unhandled events are no-ops (state unchanged),
// matching §4.6's "dead — terminal; any future op is a no-op."
//
//	idle         --damage-->       batching
//	batching     --damage-->       batching   (timer re-armed by caller)
//	awaitingAck  --damage-->       batching   (in-flight cap checked at timer fire)
//	batching     --timer-fire-->   encoding
//	encoding     --job-complete--> awaitingAck
//	awaitingAck  --ack(clean)-->   idle | batching (caller decides via hasPending)
//	awaitingAck  --ack(error)-->   batching       (lossless refresh scheduled by caller)
//	any          --removed-->      dead
func transition(current State, event event, hasPending bool) State {
	if current == StateDead {
		return StateDead
	}
	switch event {
	case eventRemoved:
		return StateDead
	case eventDamage:
		if current == StateIdle || current == StateBatching || current == StateAwaitingAck {
			return StateBatching
		}
		// encoding: damage accumulates in the pending region but the
		// state doesn't change until the in-flight job completes (§4.6).
		return current
	case eventTimerFire:
		if current == StateBatching {
			return StateEncoding
		}
		return current
	case eventJobComplete:
		if current == StateEncoding {
			return StateAwaitingAck
		}
		return current
	case eventAckClean:
		if current == StateAwaitingAck {
			if hasPending {
				return StateBatching
			}
			return StateIdle
		}
		return current
	case eventAckError:
		if current == StateAwaitingAck {
			return StateBatching
		}
		return current
	default:
		return current
	}
}

type event int

const (
	eventDamage event = iota
	eventTimerFire
	eventJobComplete
	eventAckClean
	eventAckError
	eventRemoved
)
