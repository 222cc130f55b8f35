// File: protocol/payload.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Payload helpers build and validate the 2-byte-code-plus-reason payload
// carried by a Close frame.

package protocol

import "encoding/binary"

// BuildClosePayload encodes a close status code and UTF-8 reason into the
// wire representation: a 2-byte big-endian code followed by the reason
// bytes. The total length must not exceed MaxControlPayloadLen; callers
// must check that locally before sending rather than truncate silently.
func BuildClosePayload(code int, reason string) ([]byte, error) {
	if 2+len(reason) > MaxControlPayloadLen {
		return nil, ErrClosePayloadTooLarge
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(code))
	copy(buf[2:], reason)
	return buf, nil
}

// ParseClosePayload decodes a close frame payload into its status code and
// reason. An empty payload (code 1005's implicit "no status") yields
// ok=false with a zero code. A payload of length 1 is invalid per RFC 6455.
func ParseClosePayload(payload []byte) (code int, reason string, ok bool, err error) {
	if len(payload) == 0 {
		return 0, "", false, nil
	}
	if len(payload) == 1 {
		return 0, "", false, ErrInvalidClosePayload
	}
	code = int(binary.BigEndian.Uint16(payload))
	reason = string(payload[2:])
	return code, reason, true, nil
}

// IsValidControlData reports whether bytes fit inside a control frame.
func IsValidControlData(b []byte) bool {
	return len(b) <= MaxControlPayloadLen
}
