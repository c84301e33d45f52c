// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP listener and connection primitives over raw file
// descriptors. Every call returns immediately; "not ready" is reported as
// api.ErrWouldBlock and peer resets as api.ErrConnClosed. Platform code is
// separated by build tags.

package transport
