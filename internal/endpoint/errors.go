package endpoint

import "errors"

// Error taxonomy for the connection endpoint (§7). Recovery policy lives
// with the caller (the Session): Transport and Protocol errors close this
// one endpoint; they never propagate to kill the Session.
var (
	// ErrTimeout is returned when no inbound chunk arrived within the
	// configured liveness timeout.
	ErrTimeout = errors.New("endpoint: liveness timeout")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("endpoint: closed")

	// ErrProtocol wraps a decode/framing violation that must terminate
	// the connection with disconnect(protocol-error) and never retry.
	ErrProtocol = errors.New("endpoint: protocol error")
)
