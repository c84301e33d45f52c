// control/stats.go
// Author: momentics <momentics@gmail.com>
//
// Connection counters and a bounded history of terminal events.
// Counters are written by the loop goroutine and may be read from any other.

package control

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Outcomes recorded in Event.Outcome.
const (
	OutcomeDone         = "done"
	OutcomeDisconnected = "disconnected"
	OutcomeFailed       = "failed"
	OutcomeOverflowed   = "overflowed"
	OutcomeShutdown     = "shutdown"
)

// Event records how one connection left the table.
type Event struct {
	ConnID  uint64    `json:"conn_id"`
	Peer    string    `json:"peer"`
	Outcome string    `json:"outcome"`
	Phase   string    `json:"phase,omitempty"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Stats aggregates loop counters.
type Stats struct {
	accepted     atomic.Uint64
	completed    atomic.Uint64
	peerClosed   atomic.Uint64
	failed       atomic.Uint64
	overflowed   atomic.Uint64
	requestBytes atomic.Uint64
	ticks        atomic.Uint64
	live         atomic.Int64

	mu      sync.Mutex
	history *queue.Queue
	limit   int
}

// NewStats creates counters keeping at most historySize terminal events.
func NewStats(historySize int) *Stats {
	return &Stats{
		history: queue.New(),
		limit:   historySize,
	}
}

// Accepted counts a newly admitted connection.
func (s *Stats) Accepted() {
	s.accepted.Add(1)
	s.live.Add(1)
}

// Request counts the size of a completed request.
func (s *Stats) Request(n int) {
	if n > 0 {
		s.requestBytes.Add(uint64(n))
	}
}

// Tick counts one sweep of the connection table.
func (s *Stats) Tick() uint64 { return s.ticks.Add(1) }

// Removed counts a connection leaving the table and appends it to the history.
func (s *Stats) Removed(ev Event) {
	s.live.Add(-1)
	switch ev.Outcome {
	case OutcomeDone:
		s.completed.Add(1)
	case OutcomeDisconnected:
		s.peerClosed.Add(1)
	case OutcomeFailed:
		s.failed.Add(1)
	case OutcomeOverflowed:
		s.overflowed.Add(1)
	}
	if s.limit <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Add(ev)
	for s.history.Length() > s.limit {
		s.history.Remove()
	}
}

// Live returns the number of connections currently in the table.
func (s *Stats) Live() int64 { return s.live.Load() }

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Accepted     uint64  `json:"accepted"`
	Completed    uint64  `json:"completed"`
	PeerClosed   uint64  `json:"peer_closed"`
	Failed       uint64  `json:"failed"`
	Overflowed   uint64  `json:"overflowed"`
	RequestBytes uint64  `json:"request_bytes"`
	Ticks        uint64  `json:"ticks"`
	Live         int64   `json:"live"`
	Recent       []Event `json:"recent"`
}

// Snapshot copies counters and the history, oldest event first.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Accepted:     s.accepted.Load(),
		Completed:    s.completed.Load(),
		PeerClosed:   s.peerClosed.Load(),
		Failed:       s.failed.Load(),
		Overflowed:   s.overflowed.Load(),
		RequestBytes: s.requestBytes.Load(),
		Ticks:        s.ticks.Load(),
		Live:         s.live.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Recent = make([]Event, 0, s.history.Length())
	for i := 0; i < s.history.Length(); i++ {
		snap.Recent = append(snap.Recent, s.history.Get(i).(Event))
	}
	return snap
}

// MarshalJSON encodes the current snapshot.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
