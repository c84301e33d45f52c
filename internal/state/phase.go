// File: internal/state/phase.go
// Author: momentics <momentics@gmail.com>
//
// Phase variants. Transitions replace the whole variant; no field is ever
// carried across phases.

package state

import (
	"github.com/momentics/busyhttp/api"
	"github.com/momentics/busyhttp/protocol"
)

// Phase is one of *Reading, *Writing or *Flushing.
type Phase interface {
	// Name is a short label for logs.
	Name() string
	sealed()
}

// Reading accumulates request bytes into a fixed-capacity buffer.
type Reading struct {
	buf    []byte
	filled int
	end    int // length of the request including the delimiter, once found
}

// NewReading returns a Reading phase over buf with nothing filled.
func NewReading(buf []byte) *Reading {
	return &Reading{buf: buf, end: -1}
}

func (*Reading) Name() string { return "reading" }
func (*Reading) sealed()      {}

// Filled returns the number of bytes received so far.
func (r *Reading) Filled() int { return r.filled }

// Capacity returns the fixed buffer size.
func (r *Reading) Capacity() int { return len(r.buf) }

// Remaining is the slice the next read must target.
func (r *Reading) Remaining() []byte { return r.buf[r.filled:] }

// Full reports whether no room is left for another read.
func (r *Reading) Full() bool { return r.filled == len(r.buf) }

// Request returns the request span up to and including the first delimiter,
// or nil while the request is incomplete.
func (r *Reading) Request() []byte {
	if r.end < 0 {
		return nil
	}
	return r.buf[:r.end]
}

// Buffer returns the backing buffer so the owner can recycle it.
func (r *Reading) Buffer() []byte { return r.buf }

// AdvanceRead folds the result of one read into the phase.
func (r *Reading) AdvanceRead(n int, err error) Signal {
	switch {
	case err != nil && api.IsWouldBlock(err):
		return Continue
	case err != nil && api.IsClosed(err):
		return PeerClosed
	case err != nil:
		return Fatal
	case n == 0:
		return PeerClosed
	}
	prev := r.filled
	r.filled += n
	if r.filled > len(r.buf) {
		// a transport reporting more bytes than it was given is broken
		r.filled = len(r.buf)
		return Fatal
	}
	if end := protocol.FindDelimiter(r.buf[:r.filled], prev); end >= 0 {
		r.end = end
		return PhaseComplete
	}
	if r.Full() {
		return Overflow
	}
	return Retry
}

// Writing sends a shared, immutable payload.
type Writing struct {
	payload []byte
	sent    int
}

// NewWriting returns a Writing phase with nothing sent. payload is never modified.
func NewWriting(payload []byte) *Writing {
	return &Writing{payload: payload}
}

func (*Writing) Name() string { return "writing" }
func (*Writing) sealed()      {}

// Sent returns the number of payload bytes accepted by the transport.
func (w *Writing) Sent() int { return w.sent }

// Pending is the unsent tail of the payload.
func (w *Writing) Pending() []byte { return w.payload[w.sent:] }

// AdvanceWrite folds the result of one write into the phase.
func (w *Writing) AdvanceWrite(n int, err error) Signal {
	switch {
	case err != nil && api.IsWouldBlock(err):
		return Continue
	case err != nil && api.IsClosed(err):
		return PeerClosed
	case err != nil:
		return Fatal
	case n == 0:
		return PeerClosed
	}
	if w.sent+n > len(w.payload) {
		w.sent = len(w.payload)
		return Fatal
	}
	w.sent += n
	if w.sent == len(w.payload) {
		return PhaseComplete
	}
	return Retry
}

// Flushing waits for the transport to drain.
type Flushing struct{}

func (*Flushing) Name() string { return "flushing" }
func (*Flushing) sealed()      {}

// AdvanceFlush folds the result of one flush attempt into the phase.
func (*Flushing) AdvanceFlush(err error) Signal {
	switch {
	case err == nil:
		return PhaseComplete
	case api.IsWouldBlock(err):
		return Continue
	default:
		return Fatal
	}
}
