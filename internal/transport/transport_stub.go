//go:build !linux
// +build !linux

// File: internal/transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package transport

import (
	"fmt"

	"github.com/momentics/busyhttp/api"
)

// Listener is unavailable on this platform.
type Listener struct{}

// Listen returns an error for unsupported platforms.
func Listen(addr string) (*Listener, error) {
	return nil, fmt.Errorf("transport: listen %s: %w", addr, api.ErrNotSupported)
}

// Accept implements api.Listener.Accept.
func (*Listener) Accept() (api.Conn, error) { return nil, api.ErrNotSupported }

// Close implements api.Listener.Close.
func (*Listener) Close() error { return nil }

// Addr implements api.Listener.Addr.
func (*Listener) Addr() string { return "" }
