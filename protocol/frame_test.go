package protocol_test

import (
	"bytes"
	"testing"

	"github.com/momentics/wsendpoint/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		fin     bool
		rsv1    bool
		opcode  protocol.Opcode
		payload []byte
		mask    bool
	}{
		{"short text unmasked", true, false, protocol.OpcodeText, []byte("hello"), false},
		{"short binary masked", true, false, protocol.OpcodeBinary, []byte{1, 2, 3, 4}, true},
		{"empty payload", true, false, protocol.OpcodeBinary, nil, false},
		{"126-boundary length", true, false, protocol.OpcodeBinary, bytes.Repeat([]byte{0x41}, 126), false},
		{"64k-boundary length", true, false, protocol.OpcodeBinary, bytes.Repeat([]byte{0x42}, 70000), false},
		{"compressed first fragment", false, true, protocol.OpcodeText, []byte("partial"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := protocol.EncodeFrame(&buf, tc.fin, tc.rsv1, tc.opcode, tc.payload, tc.mask); err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}

			frame, err := protocol.DecodeFrame(&buf, protocol.DecodeOptions{RequireMask: tc.mask, AllowRSV1: true})
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if frame.Fin != tc.fin {
				t.Errorf("Fin = %v, want %v", frame.Fin, tc.fin)
			}
			if frame.RSV1 != tc.rsv1 {
				t.Errorf("RSV1 = %v, want %v", frame.RSV1, tc.rsv1)
			}
			if frame.Opcode != tc.opcode {
				t.Errorf("Opcode = %v, want %v", frame.Opcode, tc.opcode)
			}
			if !bytes.Equal(frame.Payload, tc.payload) {
				t.Errorf("Payload = %v, want %v", frame.Payload, tc.payload)
			}
		})
	}
}

func TestDecodeFrameRequireMaskRejectsUnmasked(t *testing.T) {
	var buf bytes.Buffer
	if err := protocol.EncodeFrame(&buf, true, false, protocol.OpcodeText, []byte("hi"), false); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	_, err := protocol.DecodeFrame(&buf, protocol.DecodeOptions{RequireMask: true})
	if err != protocol.ErrUnmaskedFrame {
		t.Fatalf("got %v, want ErrUnmaskedFrame", err)
	}
}

func TestDecodeFrameRejectsRSV1WithoutCompression(t *testing.T) {
	var buf bytes.Buffer
	if err := protocol.EncodeFrame(&buf, true, true, protocol.OpcodeText, []byte("hi"), false); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	_, err := protocol.DecodeFrame(&buf, protocol.DecodeOptions{AllowRSV1: false})
	if err != protocol.ErrCompressionNotNegotiated {
		t.Fatalf("got %v, want ErrCompressionNotNegotiated", err)
	}
}

func TestDecodeFrameRejectsReservedBits(t *testing.T) {
	raw := []byte{0x80 | 0x20 | byte(protocol.OpcodeText), 0x00}
	_, err := protocol.DecodeFrame(bytes.NewReader(raw), protocol.DecodeOptions{})
	if err != protocol.ErrReservedBitsSet {
		t.Fatalf("got %v, want ErrReservedBitsSet", err)
	}
}

func TestDecodeFrameRejectsUnknownOpcode(t *testing.T) {
	raw := []byte{0x80 | 0x03, 0x00} // FIN=1, opcode 0x3 is reserved
	_, err := protocol.DecodeFrame(bytes.NewReader(raw), protocol.DecodeOptions{})
	if err != protocol.ErrUnknownOpcode {
		t.Fatalf("got %v, want ErrUnknownOpcode", err)
	}
}

func TestDecodeFrameRejectsFragmentedControlFrame(t *testing.T) {
	raw := []byte{byte(protocol.OpcodePing), 0x00} // FIN=0 control frame
	_, err := protocol.DecodeFrame(bytes.NewReader(raw), protocol.DecodeOptions{})
	if err != protocol.ErrFragmentedControlFrame {
		t.Fatalf("got %v, want ErrFragmentedControlFrame", err)
	}
}

func TestDecodeFrameRejectsOversizedControlFrame(t *testing.T) {
	var buf bytes.Buffer
	big := bytes.Repeat([]byte{0x01}, 126)
	// Hand-craft a control frame header claiming 126 bytes of payload,
	// which alone exceeds MaxControlPayloadLen.
	buf.WriteByte(0x80 | byte(protocol.OpcodePing))
	buf.WriteByte(126)
	buf.WriteByte(0x00)
	buf.WriteByte(126)
	buf.Write(big)
	_, err := protocol.DecodeFrame(&buf, protocol.DecodeOptions{})
	if err != protocol.ErrControlFrameTooLarge {
		t.Fatalf("got %v, want ErrControlFrameTooLarge", err)
	}
}

func TestDecodeFrameEnforcesMaxPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := protocol.EncodeFrame(&buf, true, false, protocol.OpcodeBinary, make([]byte, 100), false); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	_, err := protocol.DecodeFrame(&buf, protocol.DecodeOptions{MaxPayload: 50})
	if err != protocol.ErrFrameTooLarge {
		t.Fatalf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestEncodeFrameServerNeverMasks(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("abc")
	if err := protocol.EncodeFrame(&buf, true, false, protocol.OpcodeText, payload, false); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	raw := buf.Bytes()
	if raw[1]&0x80 != 0 {
		t.Fatalf("server frame has MASK bit set")
	}
	if !bytes.Equal(raw[2:], payload) {
		t.Fatalf("unmasked payload corrupted: %v", raw[2:])
	}
}
