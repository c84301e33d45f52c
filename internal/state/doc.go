// File: internal/state/doc.go
// Package state
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection state machine for the busy-poll server. A connection is in
// exactly one Phase at a time (Reading, Writing or Flushing); each Advance
// function folds the outcome of a single non-blocking I/O attempt into the
// phase and reports a Signal telling the driver what to do next. Machine.Step
// drives the phases against an api.Conn, cascading through completed phases
// within a single call.

package state
