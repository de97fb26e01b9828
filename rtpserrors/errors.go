// Package rtpserrors implements the error taxonomy of the engine's
// error-handling design: a small set of kinds, not types, each
// recovered locally or surfaced to the caller/listener per policy.
package rtpserrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra context.
var (
	// ErrNoDestination names the case of a submessage addressed to an
	// EntityId the participant does not own. The participant's
	// dispatcher drops such submessages silently and does not construct
	// this error.
	ErrNoDestination = errors.New("rtps: no local destination for submessage")

	// ErrDuplicate indicates a sequence number already at RECEIVED or
	// below a WriterProxy's low water mark.
	ErrDuplicate = errors.New("rtps: duplicate sequence number")

	// ErrShutdown is returned by blocking calls when the owning
	// endpoint or participant has been halted.
	ErrShutdown = errors.New("rtps: shutdown requested")
)

// MalformedMessageError wraps a header or submessage parse failure.
// The offending message is dropped; this error is logged once and
// never propagated past the receiver.
type MalformedMessageError struct {
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("rtps: malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

func NewMalformedMessageError(format string, a ...interface{}) error {
	return &MalformedMessageError{Err: fmt.Errorf(format, a...)}
}

// UnknownSourceError indicates a receive from a GuidPrefix for which no
// local participant data exists and origin authentication is required.
type UnknownSourceError struct {
	Err error
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("rtps: unknown source: %v", e.Err)
}

func NewUnknownSourceError(format string, a ...interface{}) error {
	return &UnknownSourceError{Err: fmt.Errorf(format, a...)}
}

// BufferFullError indicates a HistoryCache cannot admit a new change.
type BufferFullError struct {
	Err error
}

func (e *BufferFullError) Error() string {
	return fmt.Sprintf("rtps: history cache full: %v", e.Err)
}

func NewBufferFullError(format string, a ...interface{}) error {
	return &BufferFullError{Err: fmt.Errorf(format, a...)}
}

// TimeoutError is returned by wait_for_all_acked, write's blocking
// path, or max_blocking_time expiry.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rtps: timeout: %v", e.Err)
}

func NewTimeoutError(format string, a ...interface{}) error {
	return &TimeoutError{Err: fmt.Errorf(format, a...)}
}

// QoSIncompatibleError is reported via listener during matching; it
// never halts the endpoint.
type QoSIncompatibleError struct {
	// Mask lists which QoS policies were incompatible, as PolicyKind
	// values.
	Mask   []PolicyKind
	Detail string
}

func (e *QoSIncompatibleError) Error() string {
	return fmt.Sprintf("rtps: incompatible QoS %v: %s", e.Mask, e.Detail)
}

// PolicyKind names a DDS QoS policy for incompatibility reporting.
type PolicyKind int

const (
	PolicyDurability PolicyKind = iota
	PolicyReliability
	PolicyDeadline
	PolicyLiveliness
	PolicyPartition
	PolicyOwnership
	PolicyHistory
	PolicyResourceLimits
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyDurability:
		return "Durability"
	case PolicyReliability:
		return "Reliability"
	case PolicyDeadline:
		return "Deadline"
	case PolicyLiveliness:
		return "Liveliness"
	case PolicyPartition:
		return "Partition"
	case PolicyOwnership:
		return "Ownership"
	case PolicyHistory:
		return "History"
	case PolicyResourceLimits:
		return "ResourceLimits"
	default:
		return "Unknown"
	}
}

// ResourceLimitExhaustedError indicates a matched-endpoint or
// proxy-pool limit prevented a match; reported to listener, never
// fatal.
type ResourceLimitExhaustedError struct {
	Err error
}

func (e *ResourceLimitExhaustedError) Error() string {
	return fmt.Sprintf("rtps: resource limit exhausted: %v", e.Err)
}

func NewResourceLimitExhaustedError(format string, a ...interface{}) error {
	return &ResourceLimitExhaustedError{Err: fmt.Errorf(format, a...)}
}

// TransportError wraps a send failure from the transport collaborator.
// The sample remains UNSENT/REQUESTED and is retransmitted per
// reliability rules; this error is logged, never propagated to the
// application.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rtps: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(format string, a ...interface{}) error {
	return &TransportError{Err: fmt.Errorf(format, a...)}
}
