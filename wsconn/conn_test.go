package wsconn_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/momentics/wsendpoint/protocol"
	"github.com/momentics/wsendpoint/wsconn"
)

// harness wires a wsconn.Conn to one end of an in-memory net.Pipe and
// captures every event callback on buffered channels so tests can
// synchronize on them instead of sleeping.
type harness struct {
	conn      *wsconn.Conn
	peer      net.Conn
	openCh    chan struct{}
	msgCh     chan message
	errCh     chan string
	closeCh   chan closeEvent
}

type message struct {
	opcode byte
	data   []byte
}

type closeEvent struct {
	wasClean bool
	code     int
	reason   string
}

func newHarness(t *testing.T, opts ...wsconn.Option) *harness {
	t.Helper()
	serverSide, clientSide := net.Pipe()

	h := &harness{
		peer:    clientSide,
		openCh:  make(chan struct{}, 1),
		msgCh:   make(chan message, 16),
		errCh:   make(chan string, 16),
		closeCh: make(chan closeEvent, 1),
	}

	handlers := wsconn.Handlers{
		OnOpen:  func() { h.openCh <- struct{}{} },
		OnMessage: func(opcode byte, data []byte) {
			cp := append([]byte(nil), data...)
			h.msgCh <- message{opcode, cp}
		},
		OnError: func(m string) { h.errCh <- m },
		OnClose: func(wasClean bool, code int, reason string) {
			h.closeCh <- closeEvent{wasClean, code, reason}
		},
	}

	allOpts := append([]wsconn.Option{wsconn.WithCloseTimeout(100 * time.Millisecond)}, opts...)
	conn, err := wsconn.New(handlers, wsconn.NewOptions(allOpts...))
	if err != nil {
		t.Fatalf("wsconn.New: %v", err)
	}
	if err := conn.SetContext(context.Background(), func() {}, serverSide, "", false); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	if err := conn.ConnectAsServer(context.Background()); err != nil {
		t.Fatalf("ConnectAsServer: %v", err)
	}
	h.conn = conn

	select {
	case <-h.openCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnOpen")
	}
	return h
}

func (h *harness) sendFromPeer(t *testing.T, fin, rsv1 bool, opcode protocol.Opcode, payload []byte) {
	t.Helper()
	if err := protocol.EncodeFrame(h.peer, fin, rsv1, opcode, payload, true); err != nil {
		t.Fatalf("EncodeFrame from peer: %v", err)
	}
}

func (h *harness) recvOnPeer(t *testing.T) *protocol.Frame {
	t.Helper()
	h.peer.SetReadDeadline(time.Now().Add(time.Second))
	frame, err := protocol.DecodeFrame(h.peer, protocol.DecodeOptions{})
	if err != nil {
		t.Fatalf("DecodeFrame on peer: %v", err)
	}
	return frame
}

func TestTextEcho(t *testing.T) {
	h := newHarness(t)
	h.sendFromPeer(t, true, false, protocol.OpcodeText, []byte("hello"))

	select {
	case m := <-h.msgCh:
		if m.opcode != byte(protocol.OpcodeText) || !bytes.Equal(m.data, []byte("hello")) {
			t.Fatalf("got %+v, want Text \"hello\"", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnMessage")
	}

	if h.conn.State() != wsconn.StateOpen {
		t.Fatalf("state = %v, want Open", h.conn.State())
	}
}

func TestFragmentedBinaryWithInterleavedControl(t *testing.T) {
	h := newHarness(t)

	first := bytes.Repeat([]byte{0x41}, 1016)
	second := bytes.Repeat([]byte{0x42}, 1016)
	third := bytes.Repeat([]byte{0x43}, 8)

	h.sendFromPeer(t, false, false, protocol.OpcodeBinary, first)
	h.sendFromPeer(t, true, false, protocol.OpcodePing, []byte("ka"))

	pong := h.recvOnPeer(t)
	if pong.Opcode != protocol.OpcodePong || !bytes.Equal(pong.Payload, []byte("ka")) {
		t.Fatalf("got pong %+v, want Pong echoing \"ka\"", pong)
	}

	h.sendFromPeer(t, false, false, protocol.OpcodeContinuation, second)
	h.sendFromPeer(t, true, false, protocol.OpcodeContinuation, third)

	select {
	case m := <-h.msgCh:
		want := append(append(append([]byte{}, first...), second...), third...)
		if m.opcode != byte(protocol.OpcodeBinary) || !bytes.Equal(m.data, want) {
			t.Fatalf("got message of length %d, want %d bytes", len(m.data), len(want))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnMessage")
	}
}

func TestUnmaskedPeerFrameClosesWithProtocolError(t *testing.T) {
	h := newHarness(t)
	// The server rejects the frame after its 2-byte header and never reads
	// the payload, so on an unbuffered net.Pipe this write can only return
	// once the server closes its end; it runs on its own goroutine so the
	// test can read the server's Close frame meanwhile.
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- protocol.EncodeFrame(h.peer, true, false, protocol.OpcodeText, []byte("hi"), false)
	}()

	closeFrame := h.recvOnPeer(t)
	if closeFrame.Opcode != protocol.OpcodeClose {
		t.Fatalf("got opcode %v, want Close", closeFrame.Opcode)
	}
	code, _, ok, err := protocol.ParseClosePayload(closeFrame.Payload)
	if err != nil || !ok || code != protocol.CloseProtocolError {
		t.Fatalf("got code=%d ok=%v err=%v, want 1002", code, ok, err)
	}

	select {
	case ev := <-h.closeCh:
		if ev.code != protocol.CloseProtocolError {
			t.Fatalf("OnClose code = %d, want 1002", ev.code)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnClose")
	}

	if err := <-writeErr; err != nil && err != io.ErrClosedPipe {
		t.Fatalf("EncodeFrame: %v", err)
	}
}

func TestGracefulClose(t *testing.T) {
	h := newHarness(t)

	done := make(chan error, 1)
	go func() { done <- h.conn.CloseWithCode(protocol.CloseNormalClosure, "bye") }()

	closeFrame := h.recvOnPeer(t)
	if closeFrame.Opcode != protocol.OpcodeClose {
		t.Fatalf("got opcode %v, want Close", closeFrame.Opcode)
	}
	wantPayload := []byte{0x03, 0xE8, 'b', 'y', 'e'}
	if !bytes.Equal(closeFrame.Payload, wantPayload) {
		t.Fatalf("close payload = %v, want %v", closeFrame.Payload, wantPayload)
	}

	// Peer confirms the close handshake.
	h.sendFromPeer(t, true, false, protocol.OpcodeClose, closeFrame.Payload)

	if err := <-done; err != nil {
		t.Fatalf("CloseWithCode: %v", err)
	}

	select {
	case ev := <-h.closeCh:
		if !ev.wasClean || ev.code != protocol.CloseNormalClosure || ev.reason != "bye" {
			t.Fatalf("got %+v, want clean close 1000 \"bye\"", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}

func TestReservedCodeCloseSendsNoFrame(t *testing.T) {
	h := newHarness(t)

	done := make(chan error, 1)
	go func() { done <- h.conn.CloseWithCode(protocol.CloseNoStatusRcvd, "x") }()

	h.peer.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, err := protocol.DecodeFrame(h.peer, protocol.DecodeOptions{})
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("expected a read timeout (no frame sent for a reserved code), got %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("CloseWithCode: %v", err)
	}

	select {
	case ev := <-h.closeCh:
		if ev.code != protocol.CloseNoStatusRcvd {
			t.Fatalf("OnClose code = %d, want 1005", ev.code)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnClose")
	}

	if h.conn.State() != wsconn.StateClosed {
		t.Fatalf("state = %v, want Closed", h.conn.State())
	}
}

func TestCloseTwiceSecondCallIsUsageError(t *testing.T) {
	h := newHarness(t)

	done := make(chan error, 1)
	go func() { done <- h.conn.Close() }()

	closeFrame := h.recvOnPeer(t)
	h.sendFromPeer(t, true, false, protocol.OpcodeClose, closeFrame.Payload)
	if err := <-done; err != nil {
		t.Fatalf("first Close: %v", err)
	}
	<-h.closeCh

	if err := h.conn.Close(); err == nil {
		t.Fatal("second Close() should report a usage error, got nil")
	}
	select {
	case msg := <-h.errCh:
		if msg == "" {
			t.Fatal("expected a non-empty OnError message on double close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnError on double close")
	}
	if h.conn.State() != wsconn.StateClosed {
		t.Fatalf("state = %v, want Closed", h.conn.State())
	}
}
