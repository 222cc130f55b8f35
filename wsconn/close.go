// File: wsconn/close.go
// Package wsconn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close handshake: the application-initiated path (Close/Dispose) and
// the receive-loop-initiated path (peer Close frame, protocol error, I/O
// failure) both funnel into finalize, which is idempotent so whichever
// side reaches Closed first wins and the other becomes a no-op.

package wsconn

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/momentics/wsendpoint/protocol"
)

// Close performs a normal close, waiting up to the configured close
// timeout for the peer's confirming Close frame. The Close frame it sends
// carries status code 1000 and an empty reason (a 2-byte payload); Close
// never sends a Close frame with an empty payload.
func (c *Conn) Close() error {
	return c.CloseWithCode(protocol.CloseNormalClosure, "")
}

// CloseWithCode sends a Close frame carrying code and reason (the frame
// is elided when code is one of the reserved, non-transmittable codes)
// and waits up to the close timeout for the handshake to complete.
func (c *Conn) CloseWithCode(code int, reason string) error {
	if 2+len(reason) > protocol.MaxControlPayloadLen {
		err := &Error{Kind: KindUsage, Err: ErrCloseReasonTooLong}
		c.emitter.EmitUsageError(err.Error())
		return err
	}

	c.connMu.Lock()
	if err := c.state.checkClosable(); err != nil {
		c.connMu.Unlock()
		wrapped := &Error{Kind: KindUsage, Err: err}
		c.emitter.EmitUsageError(wrapped.Error())
		return wrapped
	}
	c.localCloseInProgress.Store(true)
	if c.state == StateOpen {
		c.state = StateCloseSent
	}
	c.connMu.Unlock()

	c.sendCloseFrame(code, reason)

	clean := c.exitReceiving.Wait(c.opts.CloseTimeout) && c.peerClose.Load() && c.sentClose.Load()
	c.finalize(clean, code, reason)
	return nil
}

// Dispose is equivalent to CloseWithCode(CloseGoingAway, "Away").
func (c *Conn) Dispose() error {
	return c.CloseWithCode(protocol.CloseGoingAway, "Away")
}

// sendCloseFrame transmits a Close frame for (code, reason) unless one
// has already been sent on this connection or code is reserved. I/O
// errors here are swallowed: the peer may already be gone, and the close
// still proceeds to Closed regardless.
func (c *Conn) sendCloseFrame(code int, reason string) {
	if c.sentClose.Swap(true) {
		return
	}
	if protocol.IsReserved(code) {
		return
	}
	payload, err := protocol.BuildClosePayload(code, reason)
	if err != nil {
		return
	}
	c.sendMu.Lock()
	_ = protocol.EncodeFrame(c.stream, true, false, protocol.OpcodeClose, payload, false)
	c.sendMu.Unlock()
}

// closeFromReceiveLoop is called by the receive loop when it observes a
// peer Close frame or a protocol/I/O error that forces termination.
// sendFrame mirrors the spec's "send reply" flag: false for reserved
// close codes.
func (c *Conn) closeFromReceiveLoop(code int, reason string, sendFrame bool) {
	c.connMu.Lock()
	if c.state == StateOpen {
		c.state = StateCloseSent
	}
	c.connMu.Unlock()

	if sendFrame {
		c.sendCloseFrame(code, reason)
	}

	if !c.localCloseInProgress.Load() {
		clean := c.peerClose.Load() && c.sentClose.Load()
		c.finalize(clean, code, reason)
	}
}

// finalize transitions to Closed, releases the stream and close-hook,
// and fires OnClose exactly once regardless of which path (application
// Close, receive-loop close, or the receive loop's deferred fallback,
// which runs only when no application close is in progress) reaches it
// first.
func (c *Conn) finalize(wasClean bool, code int, reason string) {
	c.closeOnce.Do(func() {
		_, span := c.startSpan(context.Background(), spanClose)
		defer span.End()
		span.SetAttributes(
			attribute.Int(attrCloseCode, code),
			attribute.String(attrCloseCause, reason),
		)

		c.connMu.Lock()
		c.state = StateClosed
		c.connMu.Unlock()

		if c.stream != nil {
			_ = c.stream.Close()
		}
		if c.closeHook != nil {
			c.closeHook()
		}

		c.logger.Info("connection closed",
			zap.String("conn", c.id.String()),
			zap.Bool("clean", wasClean),
			zap.Int("code", code),
		)

		if err := c.emitter.EmitClose(wasClean, code, reason); err != nil {
			c.emitter.EmitError(err.Error())
			recordErr(span, err)
		}
	})
}
