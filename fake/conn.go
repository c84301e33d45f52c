// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, scriptable non-blocking behavior for api.Conn and api.Listener.

package fake

import (
	"sync"

	"github.com/momentics/busyhttp/api"
)

type readStep struct {
	data []byte
	err  error
}

// Conn is a scriptable non-blocking api.Conn. Queued read steps are consumed in
// order; once the queue is empty Read reports api.ErrWouldBlock, or (0, nil)
// after CloseRead.
type Conn struct {
	mu sync.Mutex

	addr      string
	reads     []readStep
	readLimit int
	eof       bool

	written     []byte
	writeLimit  int
	writeBlock  bool
	writeErr    error
	writeClosed bool

	flushes  []error
	closed   bool
	closeErr error

	ReadCalls  int
	WriteCalls int
	FlushCalls int
	CloseCalls int
}

// NewConn creates a fake connection reporting addr as its peer.
func NewConn(addr string) *Conn {
	return &Conn{addr: addr}
}

// Feed queues data to be returned by subsequent reads.
func (c *Conn) Feed(data []byte) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.reads = append(c.reads, readStep{data: cp})
	return c
}

// FeedError queues an error to be returned by a read.
func (c *Conn) FeedError(err error) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = append(c.reads, readStep{err: err})
	return c
}

// CloseRead makes reads return (0, nil) once queued steps are drained.
func (c *Conn) CloseRead() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eof = true
	return c
}

// SetReadLimit caps the number of bytes a single Read returns. Zero means no cap.
func (c *Conn) SetReadLimit(n int) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = n
	return c
}

// SetWriteLimit caps the number of bytes a single Write accepts. Zero means no cap.
func (c *Conn) SetWriteLimit(n int) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLimit = n
	return c
}

// BlockWrites makes Write report api.ErrWouldBlock while on is true.
func (c *Conn) BlockWrites(on bool) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeBlock = on
	return c
}

// SetWriteError makes every Write fail with err.
func (c *Conn) SetWriteError(err error) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
	return c
}

// CloseWrite makes Write return (0, nil), the peer-closed signal.
func (c *Conn) CloseWrite() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeClosed = true
	return c
}

// QueueFlush queues results for subsequent Flush calls; an empty queue flushes successfully.
func (c *Conn) QueueFlush(errs ...error) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes = append(c.flushes, errs...)
	return c
}

// SetCloseError configures the error returned on Close.
func (c *Conn) SetCloseError(err error) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
	return c
}

// Read implements api.Conn.Read.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadCalls++
	if len(c.reads) == 0 {
		if c.eof {
			return 0, nil
		}
		return 0, api.ErrWouldBlock
	}
	step := &c.reads[0]
	if step.err != nil {
		err := step.err
		c.reads = c.reads[1:]
		return 0, err
	}
	n := len(step.data)
	if c.readLimit > 0 && n > c.readLimit {
		n = c.readLimit
	}
	n = copy(p, step.data[:n])
	step.data = step.data[n:]
	if len(step.data) == 0 {
		c.reads = c.reads[1:]
	}
	return n, nil
}

// Write implements api.Conn.Write.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteCalls++
	switch {
	case c.writeErr != nil:
		return 0, c.writeErr
	case c.writeClosed:
		return 0, nil
	case c.writeBlock:
		return 0, api.ErrWouldBlock
	}
	n := len(p)
	if c.writeLimit > 0 && n > c.writeLimit {
		n = c.writeLimit
	}
	c.written = append(c.written, p[:n]...)
	return n, nil
}

// Flush implements api.Conn.Flush.
func (c *Conn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FlushCalls++
	if len(c.flushes) == 0 {
		return nil
	}
	err := c.flushes[0]
	c.flushes = c.flushes[1:]
	return err
}

// Close implements api.Conn.Close.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	c.closed = true
	return c.closeErr
}

// RemoteAddr implements api.Conn.RemoteAddr.
func (c *Conn) RemoteAddr() string { return c.addr }

// Written returns a copy of everything accepted by Write.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
