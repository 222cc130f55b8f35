// File: wsconn/conn.go
// Package wsconn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn drives one upgraded WebSocket peer: framing and fragmentation are
// delegated to package protocol, compression to package compress, and
// inbound message buffering to package queue. Conn itself owns the
// connection state machine, the receive loop, the serialized send path,
// and event dispatch.

package wsconn

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/wsendpoint/compress"
	"github.com/momentics/wsendpoint/protocol"
	"github.com/momentics/wsendpoint/queue"
)

// CloseHook is invoked exactly once, after the underlying stream has been
// closed, so the upgrade layer can release anything it associated with
// this connection (routing table entries, semaphores, metrics handles).
type CloseHook func()

// Conn is one server-side WebSocket endpoint. The zero value is not
// usable; construct with New.
type Conn struct {
	id     uuid.UUID
	opts   *Options
	logger *zap.Logger

	stream    io.ReadWriteCloser
	closeHook CloseHook

	compressor  compress.Compressor
	compressed  bool
	subprotocol string
	secure      bool

	queue   *queue.EventQueue
	emitter *Emitter

	state  State
	connMu sync.Mutex // conn_lock: guards state and wire-write eligibility
	sendMu sync.Mutex // send_lock: serializes the entire outbound path

	sentClose            atomic.Bool
	peerClose            atomic.Bool
	localCloseInProgress atomic.Bool
	closeOnce            sync.Once

	exitReceiving *latch
	pongCh        chan struct{}

	bytesSent      atomic.Int64
	bytesReceived  atomic.Int64
	framesSent     atomic.Int64
	framesReceived atomic.Int64
}

// New constructs a Conn in the Connecting state with the given event
// handlers and options. Call SetContext to bind the upgraded stream, then
// ConnectAsServer to open it.
func New(handlers Handlers, opts *Options) (*Conn, error) {
	if opts == nil {
		opts = NewOptions()
	}
	comp, err := compress.New(opts.Compression)
	if err != nil {
		return nil, err
	}
	return &Conn{
		id:            uuid.New(),
		opts:          opts,
		logger:        opts.Logger,
		compressor:    comp,
		compressed:    opts.Compression != compress.ModeNone,
		queue:         queue.New(opts.QueueSoftCap),
		emitter:       NewEmitter(handlers),
		state:         StateConnecting,
		exitReceiving: newLatch(),
		pongCh:        make(chan struct{}, 1),
	}, nil
}

// ID returns this connection's session identifier, attached to every log
// line and trace span so multiplexed connections are distinguishable.
func (c *Conn) ID() uuid.UUID { return c.id }

// SetContext binds the already-upgraded duplex stream and its release
// hook to a fresh (Connecting-state) Conn. subprotocol and secure are
// descriptive attributes negotiated by the upgrade layer; the core never
// inspects them.
func (c *Conn) SetContext(_ context.Context, closeHook CloseHook, stream io.ReadWriteCloser, subprotocol string, secure bool) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.state != StateConnecting {
		return &Error{Kind: KindUsage, Err: ErrNotConnecting}
	}
	c.stream = stream
	c.closeHook = closeHook
	c.subprotocol = subprotocol
	c.secure = secure
	return nil
}

// ConnectAsServer transitions Connecting -> Open, emits OnOpen, and then
// starts the receive loop. A panic inside OnOpen escalates to a close with
// CloseInternalServerErr, per the error-handling policy; the receive loop
// is not started in that case.
func (c *Conn) ConnectAsServer(ctx context.Context) error {
	c.connMu.Lock()
	if c.state != StateConnecting {
		c.connMu.Unlock()
		return &Error{Kind: KindUsage, Err: ErrNotConnecting}
	}
	if c.stream == nil {
		c.connMu.Unlock()
		return &Error{Kind: KindUsage, Err: ErrNotConnecting}
	}
	c.state = StateOpen
	c.connMu.Unlock()

	_, span := c.startSpan(ctx, spanConnect)
	defer span.End()

	// OnOpen must fire before the receive loop can deliver anything: the
	// loop runs in its own goroutine, so starting it first could let a
	// decoded frame reach EmitMessage before EmitOpen wins the event
	// mutex.
	if err := c.emitter.EmitOpen(); err != nil {
		c.logger.Error("OnOpen callback failed", zap.String("conn", c.id.String()), zap.Error(err))
		c.emitter.EmitError(err.Error())
		go c.closeFromReceiveLoop(protocol.CloseInternalServerErr, "", true)
		return recordErr(span, err)
	}

	go c.receiveLoop()
	return nil
}

// Subprotocol returns the subprotocol negotiated by the upgrade layer.
func (c *Conn) Subprotocol() string { return c.subprotocol }

// Secure reports whether the upgrade layer reported this connection as
// TLS-backed.
func (c *Conn) Secure() bool { return c.secure }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.state
}

// Stats is a point-in-time snapshot of traffic counters.
type Stats struct {
	BytesSent      int64
	BytesReceived  int64
	FramesSent     int64
	FramesReceived int64
}

// Stats returns a snapshot of connection statistics for metrics
// reporting.
func (c *Conn) Stats() Stats {
	return Stats{
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
	}
}

// AwaitPong blocks until a Pong has been observed or timeout elapses,
// reporting which happened. Intended for a surrounding keep-alive
// scheduler: send a Ping, then AwaitPong(DefaultKeepAlive).
func (c *Conn) AwaitPong(timeout time.Duration) bool {
	select {
	case <-c.pongCh:
		return true
	case <-time.After(timeout):
		return false
	}
}
