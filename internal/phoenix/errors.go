package phoenix

import "errors"

// ErrDisconnected is returned by substrate operations attempted while no
// transport is live. The root package wraps it into a user-facing
// Disconnected error.
var ErrDisconnected = errors.New("phoenix: transport disconnected")

// ErrClosed is returned once Transport.Close has been called; no further
// writes or awaits are possible on that instance.
var ErrClosed = errors.New("phoenix: transport closed")

// ProtocolError reports a malformed inbound frame. Per the frame codec
// contract this is logged and discarded, never surfaced as a connection
// failure.
type ProtocolError struct {
	Raw []byte
	Err error
}

func (e *ProtocolError) Error() string {
	return "phoenix: protocol error: " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }
