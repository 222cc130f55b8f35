// File: httpupgrade/upgrade.go
// Package httpupgrade
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// httpupgrade adapts an incoming net/http request into a wsconn.Conn.
// Apart from protocol's handshake.go, it is the only code in this module
// that imports net/http; wsconn and protocol's frame codec never do. A
// handshake failure here never touches wsconn at all.

package httpupgrade

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/momentics/wsendpoint/compress"
	"github.com/momentics/wsendpoint/protocol"
	"github.com/momentics/wsendpoint/wsconn"
)

// ErrHijackUnsupported is returned when the ResponseWriter's underlying
// transport cannot be hijacked into a raw connection (e.g. HTTP/2).
var ErrHijackUnsupported = errors.New("httpupgrade: response writer does not support hijacking")

// Upgrader turns HTTP upgrade requests into open wsconn.Conn values.
// Subprotocols lists the protocols this server is willing to speak, in
// preference order; the first one also present in the client's offer is
// selected. Options configures every accepted Conn.
type Upgrader struct {
	Subprotocols []string
	Options      *wsconn.Options
}

// Upgrade validates and completes the RFC 6455 opening handshake on r,
// hijacks the underlying connection, and returns a Conn in the Open
// state with handlers already wired and its receive loop running. The
// caller owns closeHook: it runs once, after the connection is fully
// closed, and is the right place to release anything keyed on this
// connection (routing tables, semaphores, metrics handles).
//
// bound, if non-nil, is invoked with the new Conn before the handshake
// response is written and before OnOpen can fire, so handlers built from
// a closure over the Conn (the common case: OnMessage echoing through
// conn.SendText) can capture a live reference instead of racing the
// return value.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, handlers wsconn.Handlers, closeHook wsconn.CloseHook, bound func(*wsconn.Conn)) (*wsconn.Conn, error) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, ErrHijackUnsupported
	}

	result, err := protocol.ValidateUpgradeHeaders(r.Header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, fmt.Errorf("httpupgrade: handshake: %w", err)
	}

	subprotocol := u.selectSubprotocol(result.Subprotocols)
	if subprotocol != "" {
		result.ResponseHeader.Set(protocol.HeaderSecWebSocketProto, subprotocol)
	}

	opts := u.Options
	if opts == nil {
		opts = wsconn.NewOptions()
	}
	if !result.DeflateOffered && opts.Compression != compress.ModeNone {
		nc := *opts
		nc.Compression = compress.ModeNone
		opts = &nc
	}
	if opts.Compression == compress.ModeDeflate {
		// Accept the offer; the compressor resets its DEFLATE state per
		// message in both directions, hence the two no_context_takeover
		// parameters.
		result.ResponseHeader.Set(protocol.HeaderSecWebSocketExt,
			"permessage-deflate; server_no_context_takeover; client_no_context_takeover")
	}

	conn, err := wsconn.New(handlers, opts)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, fmt.Errorf("httpupgrade: new conn: %w", err)
	}
	if bound != nil {
		bound(conn)
	}

	rwc, brw, err := hijacker.Hijack()
	if err != nil {
		return nil, fmt.Errorf("httpupgrade: hijack: %w", err)
	}

	if err := writeSwitchingProtocols(brw.Writer, result.ResponseHeader); err != nil {
		_ = rwc.Close()
		return nil, fmt.Errorf("httpupgrade: write response: %w", err)
	}

	secure := r.TLS != nil
	stream := &bufferedConn{Conn: rwc, br: brw.Reader}
	if err := conn.SetContext(r.Context(), closeHook, stream, subprotocol, secure); err != nil {
		_ = rwc.Close()
		return nil, err
	}
	if err := conn.ConnectAsServer(context.Background()); err != nil {
		_ = rwc.Close()
		return nil, err
	}
	return conn, nil
}

func (u *Upgrader) selectSubprotocol(offered []string) string {
	for _, want := range u.Subprotocols {
		for _, got := range offered {
			if want == got {
				return want
			}
		}
	}
	return ""
}

func writeSwitchingProtocols(w *bufio.Writer, hdr http.Header) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", http.StatusSwitchingProtocols, http.StatusText(http.StatusSwitchingProtocols)); err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// bufferedConn folds bufio-buffered leftover bytes from the hijacked
// connection's read side back into a plain net.Conn shape so wsconn's
// frame decoder never has to know the stream started life behind an
// http.Server.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.br.Read(p)
}
