// File: internal/eventloop/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/busyhttp/api"
	"github.com/momentics/busyhttp/control"
	"github.com/momentics/busyhttp/internal/state"
	"github.com/momentics/busyhttp/pool"
)

// ErrStopped is returned by RequestConns once Run has returned.
var ErrStopped = errors.New("event loop stopped")

// entry is one row of the connection table.
type entry struct {
	id      uint64
	conn    api.Conn
	buf     []byte
	machine *state.Machine
}

// ConnInfo describes a live connection for diagnostics.
type ConnInfo struct {
	ID    uint64 `json:"id"`
	Peer  string `json:"peer"`
	Phase string `json:"phase"`
}

// Loop owns the listener-facing side and the connection table. It is not
// safe for concurrent use; a single goroutine must drive it.
type Loop struct {
	ln    api.Listener
	cfg   Config
	table []*entry

	pool      *pool.BytePool
	stats     *control.Stats
	log       logrus.FieldLogger
	onRequest RequestHook

	nextID   uint64
	ticks    uint64
	terminal []int
	fatal    error

	connsReq chan chan []ConnInfo
	stopped  chan struct{}
}

// New creates a loop serving ln.
func New(ln api.Listener, cfg Config, opts ...Option) (*Loop, error) {
	if ln == nil {
		return nil, fmt.Errorf("nil listener: %w", api.ErrInvalidArgument)
	}
	if cfg.BufferSize < 4 {
		return nil, fmt.Errorf("buffer size %d: %w", cfg.BufferSize, api.ErrInvalidArgument)
	}
	if len(cfg.Response) == 0 {
		return nil, fmt.Errorf("empty response: %w", api.ErrInvalidArgument)
	}
	l := &Loop{
		ln:       ln,
		cfg:      cfg,
		log:      logrus.StandardLogger(),
		connsReq: make(chan chan []ConnInfo),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logrus.StandardLogger()
	}
	if l.pool == nil {
		l.pool = pool.NewBytePool(cfg.BufferSize)
	}
	if l.pool.Size() != cfg.BufferSize {
		return nil, fmt.Errorf("pool size %d != buffer size %d: %w", l.pool.Size(), cfg.BufferSize, api.ErrInvalidArgument)
	}
	if l.stats == nil {
		l.stats = control.NewStats(control.DefaultHistorySize)
	}
	return l, nil
}

// Len returns the number of live connections.
func (l *Loop) Len() int { return len(l.table) }

// Stats returns the loop counters.
func (l *Loop) Stats() *control.Stats { return l.stats }

// Conns lists live connections in table order. It must be called from the
// goroutine driving the loop; use RequestConns from anywhere else.
func (l *Loop) Conns() []ConnInfo {
	out := make([]ConnInfo, len(l.table))
	for i, e := range l.table {
		out[i] = ConnInfo{ID: e.id, Peer: e.conn.RemoteAddr(), Phase: e.machine.Phase().Name()}
	}
	return out
}

// RequestConns asks a running loop for Conns. The loop answers between two
// iterations of Run.
func (l *Loop) RequestConns(ctx context.Context) ([]ConnInfo, error) {
	reply := make(chan []ConnInfo, 1)
	select {
	case l.connsReq <- reply:
	case <-l.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-reply, nil
}

// AdmitNew performs one non-blocking accept. A new connection is appended to
// the table in the Reading phase. Any listener error other than would-block
// is returned and is not recoverable.
func (l *Loop) AdmitNew() error {
	c, err := l.ln.Accept()
	if err != nil {
		if api.IsWouldBlock(err) {
			return nil
		}
		return api.Wrap(api.ErrCodeListener, "accept", err).WithContext("addr", l.ln.Addr())
	}
	l.nextID++
	e := &entry{
		id:   l.nextID,
		conn: c,
		buf:  l.pool.GetBuffer(),
	}
	e.machine = state.NewMachine(e.buf, l.cfg.Response, func(req []byte) {
		l.requestDone(e, req)
	})
	l.table = append(l.table, e)
	l.stats.Accepted()
	l.log.WithFields(logrus.Fields{"conn_id": e.id, "peer": c.RemoteAddr()}).Debug("connection accepted")
	return nil
}

func (l *Loop) requestDone(e *entry, req []byte) {
	if l.onRequest != nil {
		l.onRequest(e.id, e.conn.RemoteAddr(), req)
	}
	if !debugEnabled(l.log) {
		return
	}
	l.log.WithFields(logrus.Fields{
		"conn_id": e.id,
		"peer":    e.conn.RemoteAddr(),
		"bytes":   len(req),
	}).Debug(strings.ToValidUTF8(string(req), "\uFFFD"))
}

func debugEnabled(log logrus.FieldLogger) bool {
	switch lg := log.(type) {
	case *logrus.Logger:
		return lg.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return lg.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return true
}

func outcomeName(out state.Outcome) string {
	switch out {
	case state.Done:
		return control.OutcomeDone
	case state.Disconnected:
		return control.OutcomeDisconnected
	case state.Failed:
		return control.OutcomeFailed
	case state.Overflowed:
		return control.OutcomeOverflowed
	}
	return out.String()
}

// Tick sweeps the table once in order and returns the positions of
// connections that reached a terminal condition, in ascending order. The
// returned slice is reused by the next Tick. When AbortOnFatal is set and a
// connection fails, the sweep stops early and the error is returned together
// with the positions gathered so far.
func (l *Loop) Tick() ([]int, error) {
	l.terminal = l.terminal[:0]
	l.ticks = l.stats.Tick()
	for i, e := range l.table {
		out := e.machine.Step(e.conn)
		if !out.Terminal() {
			continue
		}
		l.terminal = append(l.terminal, i)
		if out == state.Failed && l.cfg.AbortOnFatal {
			return l.terminal, api.Wrap(api.ErrCodeConnection, "connection failed", e.machine.Err()).
				WithContext("conn_id", e.id).
				WithContext("peer", e.conn.RemoteAddr())
		}
	}
	return l.terminal, nil
}

// Reap removes the connections at positions from the table and closes them.
// Positions are applied from highest to lowest so earlier removals never shift
// a position still waiting to be removed. Duplicates and out-of-range
// positions are ignored.
func (l *Loop) Reap(positions []int) {
	if len(positions) == 0 {
		return
	}
	desc := slices.Clone(positions)
	slices.Sort(desc)
	desc = slices.Compact(desc)
	slices.Reverse(desc)
	for _, i := range desc {
		if i < 0 || i >= len(l.table) {
			l.log.WithField("position", i).Error("reap: position out of range")
			continue
		}
		l.remove(l.table[i])
		l.table = slices.Delete(l.table, i, i+1)
	}
}

func (l *Loop) remove(e *entry) {
	out := e.machine.Outcome()
	phase := e.machine.Phase().Name()
	fields := logrus.Fields{"conn_id": e.id, "peer": e.conn.RemoteAddr(), "phase": phase}
	ev := control.Event{
		ConnID:  e.id,
		Peer:    e.conn.RemoteAddr(),
		Outcome: outcomeName(out),
		Phase:   phase,
		At:      time.Now(),
	}

	switch out {
	case state.Done:
		l.log.WithFields(fields).Debug("response sent")
	case state.Disconnected:
		l.log.WithFields(fields).Warn("client disconnected unexpectedly")
	case state.Overflowed:
		l.log.WithFields(fields).Warn("request exceeded buffer without delimiter")
	case state.Failed:
		ev.Err = fmt.Sprint(e.machine.Err())
		l.log.WithFields(fields).WithError(e.machine.Err()).Error("connection failed")
	}

	if err := e.conn.Close(); err != nil {
		l.log.WithFields(fields).WithError(err).Debug("close")
	}
	l.pool.PutBuffer(e.buf)
	e.buf = nil
	l.stats.Removed(ev)
}

// Step runs one full iteration: AdmitNew, Tick, Reap.
func (l *Loop) Step() error {
	if err := l.AdmitNew(); err != nil {
		return err
	}
	done, err := l.Tick()
	l.Reap(done)
	return err
}

// Run iterates Step without sleeping until ctx is cancelled or an
// unrecoverable error occurs. Live connections are closed on return; the
// listener is left to the caller. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	defer l.Close()
	l.log.WithField("addr", l.ln.Addr()).Info("event loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info("event loop stopped")
			return nil
		case reply := <-l.connsReq:
			reply <- l.Conns()
		default:
		}
		if err := l.Step(); err != nil {
			l.fatal = err
			return err
		}
		if n := l.cfg.StatsInterval; n > 0 && l.ticks%n == 0 {
			snap := l.stats.Snapshot()
			l.log.WithFields(logrus.Fields{
				"live":        snap.Live,
				"accepted":    snap.Accepted,
				"completed":   snap.Completed,
				"peer_closed": snap.PeerClosed,
				"failed":      snap.Failed,
			}).Info("loop stats")
		}
	}
}

// Err returns the error that ended Run, if any.
func (l *Loop) Err() error { return l.fatal }

// Close drops every live connection.
func (l *Loop) Close() {
	for i := len(l.table) - 1; i >= 0; i-- {
		e := l.table[i]
		if err := e.conn.Close(); err != nil {
			l.log.WithField("conn_id", e.id).WithError(err).Debug("close")
		}
		l.pool.PutBuffer(e.buf)
		l.stats.Removed(control.Event{
			ConnID:  e.id,
			Peer:    e.conn.RemoteAddr(),
			Outcome: control.OutcomeShutdown,
			Phase:   e.machine.Phase().Name(),
			At:      time.Now(),
		})
	}
	l.table = l.table[:0]
}
