// File: protocol/errors.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "errors"

// Decode-time protocol violations. Each maps to a specific close code one
// layer up (see wsconn); they are kept distinct here so callers never have
// to string-match an error to recover the right status code.
var (
	ErrUnmaskedFrame            = errors.New("protocol: peer frame was not masked")
	ErrReservedBitsSet          = errors.New("protocol: RSV2 or RSV3 set")
	ErrCompressionNotNegotiated = errors.New("protocol: RSV1 set but compression was not negotiated")
	ErrUnknownOpcode            = errors.New("protocol: unknown or reserved opcode")
	ErrFragmentedControlFrame   = errors.New("protocol: control frame is fragmented (FIN=0)")
	ErrControlFrameTooLarge     = errors.New("protocol: control frame payload exceeds 125 bytes")
	ErrFrameTooLarge            = errors.New("protocol: frame payload exceeds configured maximum")
	ErrClosePayloadTooLarge     = errors.New("protocol: close payload exceeds 125 bytes")
	ErrInvalidClosePayload      = errors.New("protocol: close payload shorter than 2 bytes")
)
