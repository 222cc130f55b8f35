// File: wsconn/errors.go
// Package wsconn implements the connection state machine, receive loop,
// sender, and event emitter that together drive one upgraded WebSocket
// peer (RFC 6455).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wsconn

import "fmt"

// Kind categorizes why an operation failed, matching the four error
// families the engine distinguishes: a malformed wire frame, a failure of
// the underlying stream, a panic inside an application callback, or the
// caller invoking an operation the current state disallows.
type Kind int

const (
	KindProtocol Kind = iota
	KindIO
	KindApplication
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindApplication:
		return "application"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the Kind that classifies it and,
// for protocol errors, the close code the failure maps to.
type Error struct {
	Kind      Kind
	CloseCode int // 0 when not applicable
	Err       error
}

func (e *Error) Error() string {
	if e.CloseCode != 0 {
		return fmt.Sprintf("wsconn: %s error (close %d): %v", e.Kind, e.CloseCode, e.Err)
	}
	return fmt.Sprintf("wsconn: %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrNotConnecting is returned by ConnectAsServer when the connection
	// has already left the Connecting state.
	ErrNotConnecting = fmt.Errorf("wsconn: connection is not in the Connecting state")
	// ErrNotClosable is returned when Close/Dispose is called from
	// Connecting or Closed, the two states §4.S forbids initiating a
	// close from.
	ErrNotClosable = fmt.Errorf("wsconn: connection cannot be closed from its current state")
	// ErrNotOpen is returned by send operations outside the Open state.
	ErrNotOpen = fmt.Errorf("wsconn: connection is not open")
	// ErrCloseReasonTooLong is returned when code+reason would exceed the
	// 125-byte control-frame payload limit.
	ErrCloseReasonTooLong = fmt.Errorf("wsconn: close code and reason exceed 125 bytes")
)
