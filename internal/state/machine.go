// File: internal/state/machine.go
// Author: momentics <momentics@gmail.com>
//
// Machine drives one connection through Reading -> Writing -> Flushing.

package state

import (
	"fmt"

	"github.com/momentics/busyhttp/api"
)

// RequestFunc receives the completed request span. The slice aliases the
// connection's read buffer and is only valid during the call.
type RequestFunc func(request []byte)

// Machine holds the progress of a single connection.
type Machine struct {
	phase     Phase
	response  []byte
	onRequest RequestFunc
	outcome   Outcome
	err       error
}

// NewMachine starts a connection in Reading over buf. Once the request is
// complete the shared response is written back unchanged.
func NewMachine(buf []byte, response []byte, onRequest RequestFunc) *Machine {
	return &Machine{
		phase:     NewReading(buf),
		response:  response,
		onRequest: onRequest,
	}
}

// Phase returns the current phase. After termination it is the phase the
// connection was in when it ended.
func (m *Machine) Phase() Phase { return m.phase }

// Outcome returns Pending until the connection reached a terminal condition.
func (m *Machine) Outcome() Outcome { return m.outcome }

// Err returns the I/O error that made the machine fail, if any.
func (m *Machine) Err() error { return m.err }

// Step attempts the I/O appropriate to the current phase until the socket
// would block or the connection terminates. Completed phases fall through to
// the next one within the same call. A terminal machine performs no I/O.
func (m *Machine) Step(c api.Conn) Outcome {
	if m.outcome.Terminal() {
		return m.outcome
	}

	if r, ok := m.phase.(*Reading); ok {
		sig := m.read(c, r)
		if sig != PhaseComplete {
			return m.settle(sig)
		}
		if m.onRequest != nil {
			m.onRequest(r.Request())
		}
		m.phase = NewWriting(m.response)
	}

	if w, ok := m.phase.(*Writing); ok {
		sig := m.write(c, w)
		if sig != PhaseComplete {
			return m.settle(sig)
		}
		m.phase = &Flushing{}
	}

	if f, ok := m.phase.(*Flushing); ok {
		err := c.Flush()
		sig := f.AdvanceFlush(err)
		if sig == Fatal {
			m.err = fmt.Errorf("flush: %w", err)
		}
		if sig != PhaseComplete {
			return m.settle(sig)
		}
		m.outcome = Done
	}
	return m.outcome
}

func (m *Machine) read(c api.Conn, r *Reading) Signal {
	for {
		n, err := c.Read(r.Remaining())
		sig := r.AdvanceRead(n, err)
		switch sig {
		case Retry:
			continue
		case Fatal:
			if err == nil {
				err = fmt.Errorf("read returned %d bytes: %w", n, api.ErrInvalidArgument)
			}
			m.err = fmt.Errorf("read: %w", err)
		case Overflow:
			m.err = api.ErrRequestTooLarge
		}
		return sig
	}
}

func (m *Machine) write(c api.Conn, w *Writing) Signal {
	for {
		n, err := c.Write(w.Pending())
		sig := w.AdvanceWrite(n, err)
		switch sig {
		case Retry:
			continue
		case Fatal:
			if err == nil {
				err = fmt.Errorf("write returned %d bytes: %w", n, api.ErrInvalidArgument)
			}
			m.err = fmt.Errorf("write: %w", err)
		}
		return sig
	}
}

func (m *Machine) settle(sig Signal) Outcome {
	switch sig {
	case Continue:
		return Pending
	case PeerClosed:
		m.outcome = Disconnected
	case Fatal:
		m.outcome = Failed
	case Overflow:
		m.outcome = Overflowed
	}
	return m.outcome
}
