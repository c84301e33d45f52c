// internal/transport/conn_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux non-blocking TCP connection over a raw file descriptor.

package transport

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/busyhttp/api"
)

// Conn is an accepted non-blocking TCP socket.
type Conn struct {
	fd   int
	peer string
}

var _ api.Conn = (*Conn)(nil)

func newConn(fd int, peer string) *Conn {
	return &Conn{fd: fd, peer: peer}
}

// Read implements api.Conn.Read.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if err != nil {
		return 0, classify("read", err)
	}
	return n, nil
}

// Write implements api.Conn.Write. MSG_NOSIGNAL keeps a reset peer from raising SIGPIPE.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := unix.SendmsgN(c.fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
	if err != nil {
		return 0, classify("write", err)
	}
	return n, nil
}

// Flush implements api.Conn.Flush. Writes go straight to the kernel, so there
// is nothing buffered in user space.
func (c *Conn) Flush() error {
	if c.fd < 0 {
		return api.ErrConnClosed
	}
	return nil
}

// Close implements api.Conn.Close.
func (c *Conn) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1
	return os.NewSyscallError("close", unix.Close(fd))
}

// RemoteAddr implements api.Conn.RemoteAddr.
func (c *Conn) RemoteAddr() string { return c.peer }

func classify(op string, err error) error {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return api.ErrWouldBlock
	case errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.EPIPE):
		return api.ErrConnClosed
	default:
		return os.NewSyscallError(op, err)
	}
}
