// File: wsconn/send.go
// Package wsconn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sender: all outgoing writes are serialized under send_lock. A message
// longer than one FragmentLength is split into a first frame, zero or
// more Continuation frames, and a final Continuation frame, exactly
// mirroring §4.W's quo/rem arithmetic. Server frames are never masked.

package wsconn

import (
	"github.com/momentics/wsendpoint/protocol"
)

// SendResult is the handle an async send returns; it completes when the
// send finishes, successfully or not.
type SendResult struct {
	done chan struct{}
	err  error
}

// Done returns a channel closed when the send completes.
func (r *SendResult) Done() <-chan struct{} { return r.done }

// Wait blocks until the send completes and returns its error, if any.
func (r *SendResult) Wait() error {
	<-r.done
	return r.err
}

func newSendResult() *SendResult { return &SendResult{done: make(chan struct{})} }

// SendBinary fragments and sends data as a Binary message.
func (c *Conn) SendBinary(data []byte) *SendResult {
	return c.sendAsync(protocol.OpcodeBinary, data)
}

// SendText UTF-8 encodes text (it is already a Go string, so this is
// simply a cast) and sends it as a Text message.
func (c *Conn) SendText(text string) *SendResult {
	return c.sendAsync(protocol.OpcodeText, []byte(text))
}

// Ping sends a Ping control frame carrying payload (<=125 bytes). The
// core does not itself schedule keep-alive pings; a surrounding layer
// calls this on DefaultKeepAlive and may pair it with AwaitPong.
func (c *Conn) Ping(payload []byte) *SendResult {
	return c.sendAsync(protocol.OpcodePing, payload)
}

// sendAsync validates state, then fragments and writes the message on a
// new goroutine, reporting completion through the returned SendResult.
// Usage errors (wrong state) fail the handle immediately.
func (c *Conn) sendAsync(opcode protocol.Opcode, payload []byte) *SendResult {
	res := newSendResult()

	c.connMu.Lock()
	stateErr := c.state.checkOpen()
	c.connMu.Unlock()
	if stateErr != nil {
		res.err = &Error{Kind: KindUsage, Err: stateErr}
		close(res.done)
		return res
	}

	go func() {
		defer close(res.done)
		c.sendMu.Lock()
		defer c.sendMu.Unlock()

		c.connMu.Lock()
		stateErr := c.state.checkOpen()
		c.connMu.Unlock()
		if stateErr != nil {
			res.err = &Error{Kind: KindUsage, Err: stateErr}
			return
		}

		if err := c.writeMessage(opcode, payload); err != nil {
			res.err = err
			c.emitter.EmitError(err.Error())
		}
	}()
	return res
}

// writeMessage implements the Sender's fragmentation and framing rules
// for a message of opcode carrying payload.
func (c *Conn) writeMessage(opcode protocol.Opcode, payload []byte) error {
	if opcode.IsControl() && !protocol.IsValidControlData(payload) {
		return &Error{Kind: KindUsage, Err: protocol.ErrControlFrameTooLarge}
	}

	rsv1 := false
	if opcode.IsData() && c.compressed {
		compressed, err := c.compressor.Compress(payload)
		if err != nil {
			return &Error{Kind: KindIO, Err: err}
		}
		payload = compressed
		rsv1 = true
	}

	write := func(fin bool, rsv1Flag bool, op protocol.Opcode, chunk []byte) error {
		if err := protocol.EncodeFrame(c.stream, fin, rsv1Flag, op, chunk, false); err != nil {
			return &Error{Kind: KindIO, Err: err}
		}
		c.framesSent.Add(1)
		c.bytesSent.Add(int64(len(chunk)))
		return nil
	}

	L := len(payload)
	if L == 0 {
		return write(true, rsv1, opcode, nil)
	}

	const F = FragmentLength
	quo, rem := L/F, L%F

	if quo == 0 {
		return write(true, rsv1, opcode, payload[:rem])
	}
	if quo == 1 && rem == 0 {
		return write(true, rsv1, opcode, payload[:F])
	}

	if err := write(false, rsv1, opcode, payload[:F]); err != nil {
		return err
	}
	offset := F

	middles := quo - 1
	if rem == 0 {
		middles = quo - 2
	}
	for i := 0; i < middles; i++ {
		if err := write(false, false, protocol.OpcodeContinuation, payload[offset:offset+F]); err != nil {
			return err
		}
		offset += F
	}

	if rem != 0 {
		return write(true, false, protocol.OpcodeContinuation, payload[offset:offset+rem])
	}
	return write(true, false, protocol.OpcodeContinuation, payload[offset:offset+F])
}
