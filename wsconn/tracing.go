// File: wsconn/tracing.go
// Package wsconn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Optional OpenTelemetry instrumentation. Spans are opt-in: with the
// default no-op tracer (see Options), span creation and span.End cost a
// handful of interface calls and nothing is exported.

package wsconn

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	namespace = "wsendpoint.wsconn"

	spanConnect = namespace + ".connect"
	spanMessage = namespace + ".message"
	spanClose   = namespace + ".close"

	attrSessionID  = namespace + ".session_id"
	attrCloseCode  = namespace + ".close_code"
	attrCloseCause = namespace + ".close_reason"
	attrMsgOpcode  = namespace + ".message.opcode"
	attrMsgLength  = namespace + ".message.length"
)

// recordErr records err on span and sets an error status, returning err
// unchanged so call sites can write `return recordErr(span, err)`.
func recordErr(span trace.Span, err error) error {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Conn) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := c.opts.Tracer.Start(ctx, name)
	span.SetAttributes(attribute.String(attrSessionID, c.id.String()))
	return ctx, span
}
