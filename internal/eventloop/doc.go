// File: internal/eventloop/doc.go
// Package eventloop
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Busy-poll event loop over a table of non-blocking connections. Each
// iteration admits at most one pending connection, sweeps the table once
// giving every connection one attempt per phase, and removes connections that
// reached a terminal condition. There is no readiness notification and no
// sleeping: connections that would block simply wait for the next sweep.

package eventloop
