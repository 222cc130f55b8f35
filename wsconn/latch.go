// File: wsconn/latch.go
// Package wsconn
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsconn

import (
	"sync"
	"time"
)

// latch is a one-shot signal: Close may be called any number of times
// (only the first has effect) and Wait blocks until either Close has
// been called or the timeout elapses, reporting which happened.
type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

// Close signals the latch. Safe to call more than once or concurrently.
func (l *latch) Close() {
	l.once.Do(func() { close(l.ch) })
}

// Wait blocks until the latch is signaled or timeout elapses, returning
// true in the former case, false in the latter.
func (l *latch) Wait(timeout time.Duration) bool {
	select {
	case <-l.ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Signaled reports whether Close has already been called, without
// blocking.
func (l *latch) Signaled() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}
