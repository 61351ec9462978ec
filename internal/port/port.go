// Package port implements the shared I/O port-message transport the
// graphics and filesystem cores ride on (spec §5, §9): a single-threaded
// looper owns one input port and exclusively owns the state it reads
// from, picking messages up in FIFO order.
package port

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Send/Receive on a port whose peer has closed
// it, matching spec §5's "closing a client port causes its sends to fail"
// cancellation rule.
var ErrClosed = errors.New("port: closed")

// ErrTimeout is returned by Send when the bounded send timeout elapses
// without the receiver draining the queue (spec §4.3.7).
var ErrTimeout = errors.New("port: send timeout")

// Message is a single port message: a numeric code (from the protocol
// code space in spec §6.2), a target handler identifying which object on
// the receiving looper should process it, and an opaque payload.
//
// ReplyPort and ClientPort carry the two out-of-band ports the
// REGISTER_APPLICATION bootstrap message needs (Protocol.h's
// ASRegisterApplication takes both as explicit arguments): the app isn't
// registered yet, so there is no ClientPort on file to reply through.
// Every other message exchanges replies over the already-registered
// application's ClientPort, so these fields are nil outside that one
// call and are never carried inside a MESSAGE_BUNDLE frame.
type Message struct {
	Code          int32
	TargetHandler int32
	Payload       []byte
	ReplyPort     *Port
	ClientPort    *Port
}

// Port is an in-process, buffered, FIFO message queue standing in for the
// kernel's message ports (out of scope per spec §1; §9 prefers passing an
// explicit context value over module-level globals).
type Port struct {
	mu     sync.Mutex
	queue  chan Message
	closed bool
}

// New returns a Port with the given queue depth.
func New(capacity int) *Port {
	if capacity <= 0 {
		capacity = 1
	}
	return &Port{queue: make(chan Message, capacity)}
}

// Close marks the port closed; pending and future sends fail with
// ErrClosed, and Receive drains any already-queued messages before
// returning ErrClosed itself.
func (p *Port) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Send enqueues msg, blocking up to timeout for room. timeout == 0 means
// a non-blocking attempt (spec §4.3.7: 0 for everything but keyboard
// events, which use a 500ms bound).
func (p *Port) Send(msg Message, timeout time.Duration) (err error) {
	// Close may close the queue after the check below; the resulting
	// send-on-closed-channel panic is reported as ErrClosed.
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	if timeout <= 0 {
		select {
		case p.queue <- msg:
			return nil
		default:
			return ErrTimeout
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p.queue <- msg:
		return nil
	case <-t.C:
		return ErrTimeout
	}
}

// Receive blocks until a message is available or the port is closed.
func (p *Port) Receive() (Message, error) {
	msg, ok := <-p.queue
	if !ok {
		return Message{}, ErrClosed
	}
	return msg, nil
}

// KeyboardSendTimeout is the fixed send bound for keyboard-focused events
// (spec §4.3.7); all other sends use a 0 timeout.
const KeyboardSendTimeout = 500 * time.Millisecond
