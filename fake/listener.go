// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"

	"github.com/momentics/busyhttp/api"
)

// Listener is a scriptable non-blocking api.Listener.
type Listener struct {
	mu      sync.Mutex
	pending []api.Conn
	err     error
	closed  bool

	AcceptCalls int
}

// NewListener creates an empty fake listener.
func NewListener() *Listener {
	return &Listener{}
}

// Push queues connections to be handed out by Accept, one per call.
func (l *Listener) Push(conns ...api.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, conns...)
}

// SetAcceptError makes Accept fail with err once the queue is drained.
func (l *Listener) SetAcceptError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Accept implements api.Listener.Accept.
func (l *Listener) Accept() (api.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.AcceptCalls++
	if l.closed {
		return nil, api.ErrListenerClosed
	}
	if len(l.pending) > 0 {
		c := l.pending[0]
		l.pending = l.pending[1:]
		return c, nil
	}
	if l.err != nil {
		return nil, l.err
	}
	return nil, api.ErrWouldBlock
}

// Close implements api.Listener.Close.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Addr implements api.Listener.Addr.
func (l *Listener) Addr() string { return "fake:0" }
