// Package protocol implements the RFC 6455 wire format: frame encode/decode
// (frame.go), close-payload helpers (payload.go), the well-known opcode and
// close-code constants (constants.go), and the HTTP/1.1 upgrade handshake
// (handshake.go). It has no knowledge of connection state, fragmentation
// assembly, or compression negotiation — those live in package wsconn,
// which is built on top of this one.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package protocol
