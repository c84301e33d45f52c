// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// BytePool hands out zeroed buffers of one fixed size.
type BytePool struct {
	pool sync.Pool
	size int

	allocs atomic.Int64
	gets   atomic.Int64
	puts   atomic.Int64
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	p := &BytePool{size: size}
	p.pool.New = func() any {
		p.allocs.Add(1)
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size returns the buffer size served by the pool.
func (p *BytePool) Size() int { return p.size }

// GetBuffer returns a buffer from the pool.
func (p *BytePool) GetBuffer() []byte {
	p.gets.Add(1)
	return *(p.pool.Get().(*[]byte))
}

// PutBuffer returns a buffer to the pool. Buffers of a foreign size are dropped.
// The buffer is cleared so a previous request never leaks into the next one.
func (p *BytePool) PutBuffer(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	clear(buf)
	p.puts.Add(1)
	p.pool.Put(&buf)
}

// Stats reports allocation counters.
func (p *BytePool) Stats() Stats {
	return Stats{
		Allocs: p.allocs.Load(),
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
	}
}

// Stats aggregates buffer allocation/reuse counters.
type Stats struct {
	Allocs int64 `json:"allocs"`
	Gets   int64 `json:"gets"`
	Puts   int64 `json:"puts"`
}
