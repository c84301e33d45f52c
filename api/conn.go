// File: api/conn.go
// Author: momentics <momentics@gmail.com>
//
// Non-blocking socket contracts driven by the busy-poll event loop.
// Every method returns immediately: progress, ErrWouldBlock, or a fatal error.

package api

// Conn is a non-blocking, full-duplex connection.
type Conn interface {
	// Read reads into p. A return of (0, nil) means the peer closed the
	// connection. ErrWouldBlock means nothing is available yet.
	Read(p []byte) (n int, err error)

	// Write writes from p. A return of (0, nil) means the peer closed the
	// connection. ErrWouldBlock means the send buffer is full.
	Write(p []byte) (n int, err error)

	// Flush pushes any transport-level buffered bytes. ErrWouldBlock means retry later.
	Flush() error

	// Close releases the underlying handle.
	Close() error

	// RemoteAddr returns the peer address in printable form.
	RemoteAddr() string
}

// Listener hands out new connections without blocking.
type Listener interface {
	// Accept returns the next pending connection, or ErrWouldBlock when the
	// accept queue is empty. Any other error is unrecoverable for the listener.
	Accept() (Conn, error)

	// Close stops listening.
	Close() error

	// Addr returns the bound address.
	Addr() string
}
