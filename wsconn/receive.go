// File: wsconn/receive.go
// Package wsconn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Receive loop: one logical receive task per connection, continuously
// decoding frames from the stream, assembling fragmented messages,
// dispatching control frames inline, and delivering completed messages
// through the event queue and emitter.

package wsconn

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/momentics/wsendpoint/protocol"
	"github.com/momentics/wsendpoint/queue"
)

// receiveLoop is the connection's single in-flight reader. It exits when
// the stream ends, a protocol violation is found, or a Close frame (ours
// or the peer's) ends the handshake. Its deferred cleanup guarantees
// OnClose fires even if no application code ever called Close.
func (c *Conn) receiveLoop() {
	defer func() {
		c.exitReceiving.Close()
		// When the application already initiated Close/Dispose,
		// CloseWithCode owns finalize (it is waiting on exitReceiving
		// right now and will call finalize with the real wasClean/code/
		// reason once it wakes up). Calling finalize here too would race
		// it for which call wins closeOnce.
		if !c.localCloseInProgress.Load() {
			c.finalize(false, protocol.CloseAbnormalClosure, "")
		}
	}()

	decodeOpts := protocol.DecodeOptions{
		RequireMask: true,
		AllowRSV1:   c.compressed,
		MaxPayload:  c.opts.MaxInboundPayload,
	}

	var assembling bool
	var firstOpcode protocol.Opcode
	var firstRSV1 bool
	var buf []byte

	for {
		frame, err := protocol.DecodeFrame(c.stream, decodeOpts)
		if err != nil {
			c.handleDecodeError(err)
			return
		}
		c.framesReceived.Add(1)
		c.bytesReceived.Add(int64(len(frame.Payload)))

		switch {
		case frame.IsControl():
			if !c.dispatchControl(frame) {
				return
			}

		case !assembling && frame.Fin && frame.Opcode != protocol.OpcodeContinuation:
			c.deliverFrame(frame.Opcode, frame.RSV1, frame.Payload)

		case !assembling && !frame.Fin && frame.Opcode != protocol.OpcodeContinuation:
			assembling = true
			firstOpcode = frame.Opcode
			firstRSV1 = frame.RSV1
			buf = append([]byte(nil), frame.Payload...)

		case assembling && frame.Opcode == protocol.OpcodeContinuation:
			buf = append(buf, frame.Payload...)
			if frame.Fin {
				c.deliverFrame(firstOpcode, firstRSV1, buf)
				assembling = false
				buf = nil
			}

		default:
			// A new non-continuation data frame arrived while a fragmented
			// message was still in progress, or a Continuation frame
			// arrived with no fragmented message in progress.
			c.closeFromReceiveLoop(protocol.CloseInvalidPayloadData, "", true)
			return
		}
	}
}

// handleDecodeError maps a protocol.DecodeFrame failure to the close
// code §7's error policy assigns it.
func (c *Conn) handleDecodeError(err error) {
	switch {
	case errors.Is(err, protocol.ErrUnmaskedFrame),
		errors.Is(err, protocol.ErrReservedBitsSet),
		errors.Is(err, protocol.ErrUnknownOpcode),
		errors.Is(err, protocol.ErrFragmentedControlFrame),
		errors.Is(err, protocol.ErrControlFrameTooLarge):
		c.closeFromReceiveLoop(protocol.CloseProtocolError, "", true)

	case errors.Is(err, protocol.ErrCompressionNotNegotiated):
		c.closeFromReceiveLoop(protocol.CloseInvalidPayloadData, "", true)

	case errors.Is(err, protocol.ErrFrameTooLarge):
		c.closeFromReceiveLoop(protocol.CloseMessageTooBig, "", true)

	default:
		// EOF or a lower-level I/O failure: the receive loop's own
		// failure escalates to a close with CloseInternalServerErr (1011).
		c.emitter.EmitError(err.Error())
		c.closeFromReceiveLoop(protocol.CloseInternalServerErr, "", true)
	}
}

// dispatchControl processes a Ping, Pong, or Close frame inline,
// returning false when the frame was a Close and the receive loop must
// stop (the partial fragmented message in progress, if any, is
// abandoned).
func (c *Conn) dispatchControl(frame *protocol.Frame) bool {
	switch frame.Opcode {
	case protocol.OpcodePing:
		c.sendAsync(protocol.OpcodePong, frame.Payload)
		return true

	case protocol.OpcodePong:
		select {
		case c.pongCh <- struct{}{}:
		default:
		}
		return true

	case protocol.OpcodeClose:
		code, reason, ok, err := protocol.ParseClosePayload(frame.Payload)
		if err != nil {
			c.closeFromReceiveLoop(protocol.CloseProtocolError, "", true)
			return false
		}
		c.peerClose.Store(true)
		sendReply := true
		if ok {
			sendReply = !protocol.IsReserved(code)
		} else {
			code = protocol.CloseNoStatusRcvd
		}
		c.closeFromReceiveLoop(code, reason, sendReply)
		return false

	default:
		return true
	}
}

// deliverFrame reverses compression (if RSV1 was set on the message's
// first frame) and hands the completed message to the event queue and
// emitter.
func (c *Conn) deliverFrame(opcode protocol.Opcode, rsv1 bool, payload []byte) {
	if rsv1 {
		decompressed, err := c.compressor.Decompress(payload)
		if err != nil {
			c.emitter.EmitError(err.Error())
			c.closeFromReceiveLoop(protocol.CloseInvalidPayloadData, "", true)
			return
		}
		payload = decompressed
	}

	if !c.queue.Enqueue(queue.Message{Opcode: byte(opcode), Payload: payload}) {
		c.logger.Warn("inbound event queue soft cap reached", zap.String("conn", c.id.String()))
		c.closeFromReceiveLoop(protocol.CloseMessageTooBig, "", true)
		return
	}

	_, span := c.startSpan(context.Background(), spanMessage)
	span.SetAttributes(
		attribute.Int(attrMsgOpcode, int(opcode)),
		attribute.Int(attrMsgLength, len(payload)),
	)
	defer span.End()

	for {
		msg, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		if err := c.emitter.EmitMessage(msg.Opcode, msg.Payload); err != nil {
			c.logger.Error("OnMessage callback failed", zap.String("conn", c.id.String()), zap.Error(err))
			c.emitter.EmitError(err.Error())
			recordErr(span, err)
			c.closeFromReceiveLoop(protocol.CloseInternalServerErr, "", true)
			return
		}
	}
}
