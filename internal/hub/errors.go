package hub

import "errors"

// Outbound send failures.
var (
	// ErrOutboundClosed means the peer is gone for good. The registry evicts
	// the connection when a send reports it.
	ErrOutboundClosed = errors.New("outbound channel closed")

	// ErrOutboundFull means the peer is not keeping up and the frame was
	// dropped. The connection stays registered.
	ErrOutboundFull = errors.New("outbound buffer full")
)

// Registry errors
var (
	// ErrDuplicateConn is returned when a connection id is registered twice.
	ErrDuplicateConn = errors.New("connection already registered")

	// ErrSessionClosed is returned when a closed session is used again.
	ErrSessionClosed = errors.New("session closed")
)

func isPermanent(err error) bool {
	return errors.Is(err, ErrOutboundClosed)
}
