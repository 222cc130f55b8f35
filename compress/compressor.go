// File: compress/compressor.go
// Package compress implements the per-message compression modes a
// connection may negotiate: none, or permessage-deflate without context
// takeover (one fresh DEFLATE stream per message). Both directions work on
// a whole message: a fragmented message is decompressed once, after all of
// its frames have been reassembled; there is no per-frame streaming
// interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package compress

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Mode identifies a negotiated compression mode. It is fixed for the
// lifetime of a connection; the engine never renegotiates it mid-session.
type Mode int

const (
	// ModeNone disables compression. RSV1 must never be set on frames this
	// mode produces, and any inbound RSV1 frame is a protocol error.
	ModeNone Mode = iota
	// ModeDeflate applies permessage-deflate semantics per message: RSV1
	// is set on the first frame, the DEFLATE stream is reset between
	// messages (no context takeover), and the trailing 4-byte
	// 0x00 0x00 0xff 0xff sync marker RFC 7692 removes before transmission
	// is re-appended before inflating.
	ModeDeflate
)

// ErrUnknownMode is returned by New for an unrecognized Mode value.
var ErrUnknownMode = errors.New("compress: unknown mode")

// deflateTail is the 4-byte marker permessage-deflate strips from the
// sender's output and the receiver must restore before inflating, per
// RFC 7692 section 7.2.1.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// deflateFinal is an empty final stored block. The sender's stream ends on
// a sync flush, never on a final block, so the receiver appends one after
// deflateTail; without it the inflater reports io.ErrUnexpectedEOF.
var deflateFinal = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

// Compressor applies or reverses one connection's negotiated compression
// mode. A Compressor is not safe for concurrent use by multiple
// goroutines; the engine that owns it already serializes access to the
// send path (send_lock) and the receive path (single receive task).
type Compressor interface {
	// Mode reports the negotiated mode.
	Mode() Mode

	// Compress returns the compressed form of a full message payload,
	// ready to be fragmented and sent with RSV1 set on the first frame.
	// When Mode is ModeNone, it returns p unchanged.
	Compress(p []byte) ([]byte, error)

	// Decompress reverses Compress over a fully-reassembled message
	// payload (the concatenation of every fragment's bytes). When Mode is
	// ModeNone, it returns p unchanged.
	Decompress(p []byte) ([]byte, error)
}

// New constructs the Compressor for mode.
func New(mode Mode) (Compressor, error) {
	switch mode {
	case ModeNone:
		return noneCompressor{}, nil
	case ModeDeflate:
		return newDeflateCompressor(), nil
	default:
		return nil, ErrUnknownMode
	}
}

type noneCompressor struct{}

func (noneCompressor) Mode() Mode                       { return ModeNone }
func (noneCompressor) Compress(p []byte) ([]byte, error)   { return p, nil }
func (noneCompressor) Decompress(p []byte) ([]byte, error) { return p, nil }

// deflateCompressor pools flate.Writer instances since allocating a fresh
// one per message would otherwise dominate CPU on a busy connection.
type deflateCompressor struct {
	writers sync.Pool
}

func newDeflateCompressor() *deflateCompressor {
	d := &deflateCompressor{}
	d.writers.New = func() any {
		fw, _ := flate.NewWriter(io.Discard, flate.DefaultCompression)
		return fw
	}
	return d
}

func (d *deflateCompressor) Mode() Mode { return ModeDeflate }

func (d *deflateCompressor) Compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw := d.writers.Get().(*flate.Writer)
	defer d.writers.Put(fw)
	fw.Reset(&buf)

	if _, err := fw.Write(p); err != nil {
		return nil, err
	}
	if err := fw.Flush(); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	// permessage-deflate always strips the trailing sync-flush marker.
	out = bytes.TrimSuffix(out, deflateTail)
	return out, nil
}

func (d *deflateCompressor) Decompress(p []byte) ([]byte, error) {
	restored := make([]byte, 0, len(p)+len(deflateTail)+len(deflateFinal))
	restored = append(restored, p...)
	restored = append(restored, deflateTail...)
	restored = append(restored, deflateFinal...)

	fr := flate.NewReader(bytes.NewReader(restored))
	defer fr.Close()
	return io.ReadAll(fr)
}
