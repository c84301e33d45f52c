// File: internal/state/signal.go
// Author: momentics <momentics@gmail.com>

package state

// Signal is the verdict of folding one I/O result into a phase.
type Signal uint8

const (
	// Retry: progress was made and the phase is not done; attempt the same
	// operation again right away.
	Retry Signal = iota
	// Continue: the socket would block; yield to the next connection.
	Continue
	// PhaseComplete: the phase finished; move to the next one.
	PhaseComplete
	// PeerClosed: the peer went away before the phase completed.
	PeerClosed
	// Fatal: unexpected I/O error.
	Fatal
	// Overflow: the request buffer is full and holds no delimiter.
	Overflow
)

func (s Signal) String() string {
	switch s {
	case Retry:
		return "retry"
	case Continue:
		return "continue"
	case PhaseComplete:
		return "phase-complete"
	case PeerClosed:
		return "peer-closed"
	case Fatal:
		return "fatal"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a connection, reported once by Step.
type Outcome uint8

const (
	// Pending: the connection is still live and keeps its table slot.
	Pending Outcome = iota
	// Done: the response was written and flushed.
	Done
	// Disconnected: the peer closed before the current phase completed.
	Disconnected
	// Failed: a fatal I/O error occurred.
	Failed
	// Overflowed: the request never terminated within the buffer.
	Overflowed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Done:
		return "done"
	case Disconnected:
		return "disconnected"
	case Failed:
		return "failed"
	case Overflowed:
		return "overflowed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the connection must be removed.
func (o Outcome) Terminal() bool { return o != Pending }
