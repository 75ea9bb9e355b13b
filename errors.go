package sensocto

import (
	"errors"
	"fmt"

	"sensocto/internal/phoenix"
)

// SensoctoError is the base of the client's error taxonomy. All leaf error
// types embed it and support errors.Is/errors.As through Unwrap.
type SensoctoError struct {
	Message string
	Cause   error
}

func (e *SensoctoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SensoctoError) Unwrap() error { return e.Cause }

// ConnectError reports a WebSocket handshake failure.
type ConnectError struct{ SensoctoError }

func newConnectError(cause error) *ConnectError {
	return &ConnectError{SensoctoError{Message: "failed to connect", Cause: cause}}
}

// ErrDisconnected is returned by operations attempted while the facade is
// not in the Connected state (including while a reconnect is in progress),
// and by operations whose write or awaited reply failed on transport loss.
var ErrDisconnected = &SensoctoError{Message: "client is disconnected"}

// ChannelJoinError reports that the server rejected a phx_join.
type ChannelJoinError struct {
	SensoctoError
	Topic  string
	Reason string
}

func newChannelJoinError(topic, reason string) *ChannelJoinError {
	return &ChannelJoinError{
		SensoctoError: SensoctoError{Message: fmt.Sprintf("failed to join channel %q: %s", topic, reason)},
		Topic:         topic,
		Reason:        reason,
	}
}

// AuthenticationError reports a server-signaled authentication failure.
type AuthenticationError struct{ SensoctoError }

func newAuthenticationError(reason string) *AuthenticationError {
	return &AuthenticationError{SensoctoError{Message: "authentication failed: " + reason}}
}

// TimeoutError reports that an awaiter's deadline elapsed.
type TimeoutError struct {
	SensoctoError
	TimeoutMs int64
}

func newTimeoutError(timeoutMs int64) *TimeoutError {
	return &TimeoutError{
		SensoctoError: SensoctoError{Message: fmt.Sprintf("operation timed out after %dms", timeoutMs)},
		TimeoutMs:     timeoutMs,
	}
}

// InvalidConfigError reports a pre-connect configuration validation failure.
type InvalidConfigError struct{ SensoctoError }

func newInvalidConfigError(reason string) *InvalidConfigError {
	return &InvalidConfigError{SensoctoError{Message: "invalid config: " + reason}}
}

// InvalidAttributeIdError reports a measurement whose attribute_id failed
// the `^[A-Za-z][A-Za-z0-9_-]{0,63}$` validation.
type InvalidAttributeIdError struct {
	SensoctoError
	AttributeID string
	Reason      string
}

func newInvalidAttributeIDError(attributeID, reason string) *InvalidAttributeIdError {
	return &InvalidAttributeIdError{
		SensoctoError: SensoctoError{Message: fmt.Sprintf("invalid attribute id %q: %s", attributeID, reason)},
		AttributeID:   attributeID,
		Reason:        reason,
	}
}

// ProtocolError reports a malformed inbound frame. It is logged, never
// surfaced to the caller of a public operation.
type ProtocolError struct{ SensoctoError }

func newProtocolError(cause error) *ProtocolError {
	return &ProtocolError{SensoctoError{Message: "protocol error", Cause: cause}}
}

// translatePhoenixError turns an internal/phoenix error into its typed
// sensocto equivalent, so the facade and sensor/call layers never leak
// substrate-level error types across the package boundary.
func translatePhoenixError(err error) error {
	if err == nil {
		return nil
	}
	var joinErr *phoenix.ChannelJoinError
	if errors.As(err, &joinErr) {
		return newChannelJoinError(joinErr.Topic, joinErr.Reason)
	}
	var timeoutErr *phoenix.TimeoutError
	if errors.As(err, &timeoutErr) {
		return newTimeoutError(timeoutErr.TimeoutMs)
	}
	if errors.Is(err, phoenix.ErrDisconnected) {
		return ErrDisconnected
	}
	return err
}
