// File: internal/eventloop/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"github.com/sirupsen/logrus"

	"github.com/momentics/busyhttp/control"
	"github.com/momentics/busyhttp/pool"
)

// Config holds loop tunables.
type Config struct {
	// BufferSize is the fixed request buffer capacity per connection.
	BufferSize int
	// Response is written verbatim to every connection. It is shared and never modified.
	Response []byte
	// AbortOnFatal makes Run return on the first fatal connection error
	// instead of dropping only that connection.
	AbortOnFatal bool
	// StatsInterval logs a stats line every StatsInterval ticks; 0 disables it.
	StatsInterval uint64
}

// RequestHook observes every completed request. The slice is only valid during the call.
type RequestHook func(connID uint64, peer string, request []byte)

// Option customizes loop initialization.
type Option func(*Loop)

// WithLogger replaces the default logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// WithStats shares a stats collector with the caller.
func WithStats(st *control.Stats) Option {
	return func(l *Loop) {
		l.stats = st
	}
}

// WithPool supplies the request buffer pool. Its size must match Config.BufferSize.
func WithPool(p *pool.BytePool) Option {
	return func(l *Loop) {
		l.pool = p
	}
}

// WithRequestHook installs a hook called when a request completes.
func WithRequestHook(h RequestHook) Option {
	return func(l *Loop) {
		l.onRequest = h
	}
}
