// File: wsconn/options.go
// Package wsconn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide defaults are named constants rather than magic numbers
// buried in call sites (per the design notes on globals/statics this
// engine follows).

package wsconn

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/wsendpoint/compress"
)

const (
	// FragmentLength is the maximum payload length of a single outgoing
	// fragment; the Sender splits any longer message into multiple
	// frames of exactly this size (the final fragment may be shorter).
	FragmentLength = 1016

	// DefaultKeepAlive is the advisory keep-alive interval. The core
	// exposes it but never schedules pings itself; a surrounding layer
	// may use it to drive a ticker that calls Conn.Ping.
	DefaultKeepAlive = 30 * time.Second

	// DefaultCloseTimeout bounds how long Close/Dispose wait for the
	// peer's confirming Close frame before forcing the state to Closed.
	DefaultCloseTimeout = 1000 * time.Millisecond
)

// Options configures a Conn at construction. Use NewOptions with Option
// functions to build one; the zero value is not valid (use NewOptions()
// to get the defaults).
type Options struct {
	Compression  compress.Mode
	CloseTimeout time.Duration
	KeepAlive    time.Duration
	// QueueSoftCap bounds the inbound event queue; 0 disables the cap.
	QueueSoftCap int
	// MaxInboundPayload bounds a single inbound frame's payload; 0
	// disables the cap (not recommended on an endpoint facing untrusted
	// peers).
	MaxInboundPayload int64
	Logger            *zap.Logger
	Tracer            trace.Tracer
}

// Option mutates an Options being built by NewOptions.
type Option func(*Options)

// NewOptions returns the default Options with opts applied on top.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Compression:       compress.ModeNone,
		CloseTimeout:      DefaultCloseTimeout,
		KeepAlive:         DefaultKeepAlive,
		QueueSoftCap:      4096,
		MaxInboundPayload: 1 << 20, // 1 MiB; guards against a hostile peer's length field.
		Logger:            zap.NewNop(),
		Tracer:            trace.NewNoopTracerProvider().Tracer("wsendpoint/wsconn"),
	}
	for _, apply := range opts {
		apply(o)
	}
	return o
}

// WithCompression negotiates mode for the lifetime of the connection.
func WithCompression(mode compress.Mode) Option {
	return func(o *Options) { o.Compression = mode }
}

// WithCloseTimeout overrides DefaultCloseTimeout.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *Options) { o.CloseTimeout = d }
}

// WithKeepAlive overrides the advisory DefaultKeepAlive value.
func WithKeepAlive(d time.Duration) Option {
	return func(o *Options) { o.KeepAlive = d }
}

// WithQueueSoftCap overrides the inbound event queue's soft cap.
func WithQueueSoftCap(n int) Option {
	return func(o *Options) { o.QueueSoftCap = n }
}

// WithMaxInboundPayload overrides the inbound frame payload cap.
func WithMaxInboundPayload(n int64) Option {
	return func(o *Options) { o.MaxInboundPayload = n }
}

// WithLogger attaches a structured logger; nil is replaced with a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l == nil {
			l = zap.NewNop()
		}
		o.Logger = l
	}
}

// WithTracer attaches an OpenTelemetry tracer; nil is replaced with a
// no-op tracer (not the tracer of the global otel TracerProvider).
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		if t == nil {
			t = trace.NewNoopTracerProvider().Tracer("wsendpoint/wsconn")
		}
		o.Tracer = t
	}
}
