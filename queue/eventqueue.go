// File: queue/eventqueue.go
// Package queue implements the bounded, in-order queue of inbound
// application Message Events the receive loop hands off to the event
// emitter.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package queue

import (
	"sync"

	"github.com/eapache/queue"
)

// Message is one assembled, optionally-decompressed application message.
type Message struct {
	Opcode  byte // protocol.OpcodeText or protocol.OpcodeBinary
	Payload []byte
}

// SoftCap is the default soft limit on queued-but-undelivered messages
// before EventQueue reports itself full. The spec leaves an upper bound
// optional ("an implementation MAY impose a soft cap"); this module
// imposes one so a stalled application cannot grow the queue without
// bound, rather than leaving that decision unmade.
const SoftCap = 4096

// EventQueue is a first-in/first-out queue of Message events, serialized
// by a single mutex (queue_lock in the concurrency model). It is backed
// by github.com/eapache/queue's ring buffer so that sustained
// enqueue/dequeue traffic does not repeatedly reallocate a growing slice.
type EventQueue struct {
	mu   sync.Mutex
	q    *queue.Queue
	cap  int
}

// New constructs an EventQueue with the given soft cap. A cap of 0 means
// unbounded (the spec's default: "no backpressure").
func New(softCap int) *EventQueue {
	return &EventQueue{q: queue.New(), cap: softCap}
}

// Enqueue appends msg to the tail of the queue. It reports false without
// enqueuing when the soft cap is set and already reached; the caller
// (the receive loop) treats that as grounds to close with
// CloseMessageTooBig.
func (eq *EventQueue) Enqueue(msg Message) bool {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if eq.cap > 0 && eq.q.Length() >= eq.cap {
		return false
	}
	eq.q.Add(msg)
	return true
}

// Dequeue removes and returns the head message. ok is false when the
// queue is empty.
func (eq *EventQueue) Dequeue() (msg Message, ok bool) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if eq.q.Length() == 0 {
		return Message{}, false
	}
	v := eq.q.Remove()
	return v.(Message), true
}

// Len reports the current queue depth.
func (eq *EventQueue) Len() int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return eq.q.Length()
}
