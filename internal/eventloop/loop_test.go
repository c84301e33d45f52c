package eventloop_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/momentics/busyhttp/api"
	"github.com/momentics/busyhttp/control"
	"github.com/momentics/busyhttp/fake"
	"github.com/momentics/busyhttp/internal/eventloop"
	"github.com/momentics/busyhttp/pool"
	"github.com/momentics/busyhttp/protocol"
)

const request = "GET / HTTP/1.1\r\n\r\n"

var errBoom = errors.New("boom")

func newLoop(t *testing.T, ln api.Listener, cfg eventloop.Config, opts ...eventloop.Option) (*eventloop.Loop, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Response == nil {
		cfg.Response = protocol.Response
	}
	l, err := eventloop.New(ln, cfg, append([]eventloop.Option{eventloop.WithLogger(log)}, opts...)...)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return l, hook
}

// admit pushes conns through the listener and admits them all.
func admit(t *testing.T, l *eventloop.Loop, ln *fake.Listener, conns ...*fake.Conn) {
	t.Helper()
	for _, c := range conns {
		ln.Push(c)
		if err := l.AdmitNew(); err != nil {
			t.Fatalf("admit: %v", err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	ln := fake.NewListener()
	if _, err := eventloop.New(nil, eventloop.Config{BufferSize: 16, Response: protocol.Response}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("nil listener: %v", err)
	}
	if _, err := eventloop.New(ln, eventloop.Config{BufferSize: 3, Response: protocol.Response}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("small buffer: %v", err)
	}
	if _, err := eventloop.New(ln, eventloop.Config{BufferSize: 16}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("empty response: %v", err)
	}
	_, err := eventloop.New(ln, eventloop.Config{BufferSize: 16, Response: protocol.Response}, eventloop.WithPool(pool.NewBytePool(32)))
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("pool size mismatch: %v", err)
	}
}

func TestAdmitNew_WouldBlockIsNoop(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{})
	if err := l.AdmitNew(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("expected empty table, got %d", l.Len())
	}
}

func TestAdmitNew_OnePerCall(t *testing.T) {
	ln := fake.NewListener()
	ln.Push(fake.NewConn("a"), fake.NewConn("b"))
	l, _ := newLoop(t, ln, eventloop.Config{})
	if err := l.AdmitNew(); err != nil {
		t.Fatal(err)
	}
	conns := l.Conns()
	if len(conns) != 1 || conns[0].Peer != "a" || conns[0].Phase != "reading" {
		t.Fatalf("unexpected table %+v", conns)
	}
	if err := l.AdmitNew(); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 || l.Stats().Snapshot().Accepted != 2 {
		t.Errorf("expected 2 admitted, got %d", l.Len())
	}
}

func TestAdmitNew_ListenerFatal(t *testing.T) {
	ln := fake.NewListener()
	ln.SetAcceptError(errBoom)
	l, _ := newLoop(t, ln, eventloop.Config{})
	err := l.AdmitNew()
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected listener error, got %v", err)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Code != api.ErrCodeListener {
		t.Errorf("expected listener error code, got %v", err)
	}
}

func TestTick_SplitRequestAcrossTicks(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{})
	c := fake.NewConn("client").Feed([]byte(request[:10]))
	admit(t, l, ln, c)

	done, err := l.Tick()
	if err != nil || len(done) != 0 {
		t.Fatalf("first tick: done=%v err=%v", done, err)
	}
	l.Reap(done)
	if got := l.Conns()[0].Phase; got != "reading" {
		t.Fatalf("expected reading after first chunk, got %s", got)
	}
	if len(c.Written()) != 0 {
		t.Fatal("response written before the request completed")
	}

	c.Feed([]byte(request[10:]))
	done, err = l.Tick()
	if err != nil || len(done) != 1 || done[0] != 0 {
		t.Fatalf("second tick: done=%v err=%v", done, err)
	}
	l.Reap(done)
	if l.Len() != 0 {
		t.Errorf("expected table empty, got %d", l.Len())
	}
	if !bytes.Equal(c.Written(), protocol.Response) {
		t.Errorf("unexpected response %q", c.Written())
	}
	if !c.Closed() {
		t.Error("connection not closed after reap")
	}
}

func TestTick_OneByteTransportCompletesInOneTick(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{})
	c := fake.NewConn("slow").Feed([]byte(request)).SetReadLimit(1).SetWriteLimit(1)
	admit(t, l, ln, c)

	done, err := l.Tick()
	if err != nil || len(done) != 1 {
		t.Fatalf("expected completion in one tick, done=%v err=%v", done, err)
	}
	l.Reap(done)
	if !bytes.Equal(c.Written(), protocol.Response) {
		t.Errorf("unexpected response %q", c.Written())
	}
}

func TestTick_NoSpuriousCompletion(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{})
	c := fake.NewConn("partial").Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\n"))
	admit(t, l, ln, c)
	for i := 0; i < 100; i++ {
		done, err := l.Tick()
		if err != nil || len(done) != 0 {
			t.Fatalf("tick %d: done=%v err=%v", i, done, err)
		}
	}
	if l.Len() != 1 || l.Conns()[0].Phase != "reading" {
		t.Errorf("expected connection still reading, got %+v", l.Conns())
	}
}

func TestTick_PeerClosedWithoutRequest(t *testing.T) {
	ln := fake.NewListener()
	l, hook := newLoop(t, ln, eventloop.Config{})
	c := fake.NewConn("gone").CloseRead()
	admit(t, l, ln, c)

	done, err := l.Tick()
	if err != nil || len(done) != 1 {
		t.Fatalf("done=%v err=%v", done, err)
	}
	l.Reap(done)
	if c.WriteCalls != 0 || len(c.Written()) != 0 {
		t.Error("no response may be attempted after an early close")
	}
	if !c.Closed() {
		t.Error("connection not closed")
	}
	snap := l.Stats().Snapshot()
	if snap.PeerClosed != 1 || snap.Live != 0 {
		t.Errorf("unexpected stats %+v", snap)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Message != "client disconnected unexpectedly" {
		t.Errorf("expected disconnect warning, got %+v", entry)
	}
}

func TestReap_MultipleInOneTick(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{})
	conns := make([]*fake.Conn, 5)
	for i := range conns {
		conns[i] = fake.NewConn(string(rune('a' + i)))
		if i%2 == 0 {
			conns[i].Feed([]byte(request))
		}
	}
	admit(t, l, ln, conns...)

	done, err := l.Tick()
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 3 || done[0] != 0 || done[1] != 2 || done[2] != 4 {
		t.Fatalf("expected positions [0 2 4], got %v", done)
	}
	l.Reap(done)

	left := l.Conns()
	if len(left) != 2 || left[0].Peer != "b" || left[1].Peer != "d" {
		t.Fatalf("expected b and d to remain, got %+v", left)
	}
	for i, c := range conns {
		if closed := c.Closed(); closed != (i%2 == 0) {
			t.Errorf("conn %d: closed=%v", i, closed)
		}
	}
}

func TestReap_IgnoresDuplicatesAndOutOfRange(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{})
	a, b, c := fake.NewConn("a"), fake.NewConn("b"), fake.NewConn("c")
	admit(t, l, ln, a, b, c)

	l.Reap([]int{2, 0, 2, 7, -1})
	left := l.Conns()
	if len(left) != 1 || left[0].Peer != "b" {
		t.Fatalf("expected only b to remain, got %+v", left)
	}
	if !a.Closed() || b.Closed() || !c.Closed() {
		t.Error("wrong connections closed")
	}
}

func TestTick_EveryConnectionGetsOneAttempt(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{})
	conns := []*fake.Conn{fake.NewConn("a"), fake.NewConn("b"), fake.NewConn("c")}
	admit(t, l, ln, conns...)
	if _, err := l.Tick(); err != nil {
		t.Fatal(err)
	}
	for i, c := range conns {
		if c.ReadCalls != 1 {
			t.Errorf("conn %d: expected 1 read attempt, got %d", i, c.ReadCalls)
		}
	}
}

func TestTick_FatalDroppedByDefault(t *testing.T) {
	ln := fake.NewListener()
	l, hook := newLoop(t, ln, eventloop.Config{})
	bad := fake.NewConn("bad").FeedError(errBoom)
	good := fake.NewConn("good").Feed([]byte(request))
	admit(t, l, ln, bad, good)

	done, err := l.Tick()
	if err != nil {
		t.Fatalf("drop policy must not surface the error: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("expected both terminal, got %v", done)
	}
	l.Reap(done)
	if !bytes.Equal(good.Written(), protocol.Response) {
		t.Error("healthy connection was not served")
	}
	snap := l.Stats().Snapshot()
	if snap.Failed != 1 || snap.Completed != 1 {
		t.Errorf("unexpected stats %+v", snap)
	}
	var sawError bool
	for _, e := range hook.AllEntries() {
		err, _ := e.Data[logrus.ErrorKey].(error)
		if e.Level == logrus.ErrorLevel && errors.Is(err, errBoom) {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected fatal connection error to be logged")
	}
}

func TestTick_FatalAbortPolicy(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{AbortOnFatal: true})
	bad := fake.NewConn("bad").FeedError(errBoom)
	after := fake.NewConn("after").Feed([]byte(request))
	admit(t, l, ln, bad, after)

	done, err := l.Tick()
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected abort error, got %v", err)
	}
	if len(done) != 1 || done[0] != 0 {
		t.Errorf("expected only the failed position, got %v", done)
	}
	if after.ReadCalls != 0 {
		t.Error("sweep must stop at the failed connection")
	}
}

func TestTick_OverflowReaped(t *testing.T) {
	ln := fake.NewListener()
	l, _ := newLoop(t, ln, eventloop.Config{BufferSize: 8}, eventloop.WithPool(pool.NewBytePool(8)))
	c := fake.NewConn("big").Feed([]byte("GET /aaaaaaaaaaaa"))
	admit(t, l, ln, c)
	done, _ := l.Tick()
	l.Reap(done)
	if l.Len() != 0 || l.Stats().Snapshot().Overflowed != 1 {
		t.Errorf("expected overflow reap, stats %+v", l.Stats().Snapshot())
	}
	if len(c.Written()) != 0 {
		t.Error("no response for an overflowing request")
	}
}

func TestRequestHookSeesFirstRequestOnly(t *testing.T) {
	ln := fake.NewListener()
	var got []string
	l, _ := newLoop(t, ln, eventloop.Config{}, eventloop.WithRequestHook(func(id uint64, peer string, req []byte) {
		got = append(got, string(req))
	}))
	admit(t, l, ln, fake.NewConn("p").Feed([]byte(request+"trailing")))
	done, _ := l.Tick()
	l.Reap(done)
	if len(got) != 1 || got[0] != request {
		t.Errorf("unexpected requests %q", got)
	}
}

func TestStep_BuffersReturnedToPool(t *testing.T) {
	ln := fake.NewListener()
	p := pool.NewBytePool(1024)
	l, _ := newLoop(t, ln, eventloop.Config{}, eventloop.WithPool(p))
	for i := 0; i < 3; i++ {
		ln.Push(fake.NewConn("p").Feed([]byte(request)))
		if err := l.Step(); err != nil {
			t.Fatal(err)
		}
	}
	st := p.Stats()
	if st.Gets != 3 || st.Puts != 3 {
		t.Errorf("unexpected pool stats %+v", st)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ln := fake.NewListener()
	st := control.NewStats(4)
	l, _ := newLoop(t, ln, eventloop.Config{StatsInterval: 1000}, eventloop.WithStats(st))
	stalled := fake.NewConn("stalled")
	ln.Push(stalled)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for st.Snapshot().Accepted == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	if !stalled.Closed() {
		t.Error("live connection not closed on shutdown")
	}
	if st.Live() != 0 {
		t.Errorf("expected no live connections, got %d", st.Live())
	}
}

func TestRun_ListenerFatalEndsLoop(t *testing.T) {
	ln := fake.NewListener()
	ln.SetAcceptError(errBoom)
	l, _ := newLoop(t, ln, eventloop.Config{})
	err := l.Run(context.Background())
	if !errors.Is(err, errBoom) || !errors.Is(l.Err(), errBoom) {
		t.Fatalf("expected listener error, got %v", err)
	}
}

func TestRun_FatalAbortEndsLoop(t *testing.T) {
	ln := fake.NewListener()
	st := control.NewStats(4)
	l, _ := newLoop(t, ln, eventloop.Config{AbortOnFatal: true}, eventloop.WithStats(st))
	stalled := fake.NewConn("stalled")
	bad := fake.NewConn("bad").FeedError(errBoom)
	ln.Push(stalled, bad)

	err := l.Run(context.Background())
	if !errors.Is(err, errBoom) || !errors.Is(l.Err(), errBoom) {
		t.Fatalf("expected connection error from Run, got %v", err)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Code != api.ErrCodeConnection {
		t.Fatalf("expected connection error code, got %v", err)
	}
	if apiErr.Context["peer"] != "bad" {
		t.Errorf("expected failing peer in context, got %+v", apiErr.Context)
	}
	if !bad.Closed() || !stalled.Closed() {
		t.Error("every connection must be closed when Run aborts")
	}
	if l.Len() != 0 || st.Live() != 0 {
		t.Errorf("expected empty table, len=%d live=%d", l.Len(), st.Live())
	}
	snap := st.Snapshot()
	if snap.Failed != 1 || len(snap.Recent) != 2 || snap.Recent[1].Outcome != control.OutcomeShutdown {
		t.Errorf("unexpected stats %+v", snap)
	}
}

func TestRequestDone_LogsLossyRequest(t *testing.T) {
	ln := fake.NewListener()
	st := control.NewStats(4)
	l, hook := newLoop(t, ln, eventloop.Config{}, eventloop.WithStats(st))
	raw := "GET /\xff HTTP/1.1\r\n\r\n"
	admit(t, l, ln, fake.NewConn("p").Feed([]byte(raw)))
	done, _ := l.Tick()
	l.Reap(done)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level != logrus.DebugLevel || e.Data["bytes"] != len(raw) {
			continue
		}
		found = true
		if !strings.Contains(e.Message, "\uFFFD") || strings.Contains(e.Message, "\xff") {
			t.Errorf("expected invalid bytes replaced, got %q", e.Message)
		}
	}
	if !found {
		t.Error("expected the request to be logged at debug level")
	}
	if snap := st.Snapshot(); snap.Completed != 1 {
		t.Errorf("unexpected stats %+v", snap)
	}
}

func TestRequestDone_SilentAboveDebug(t *testing.T) {
	ln := fake.NewListener()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.InfoLevel)
	var hooked int
	l, err := eventloop.New(ln, eventloop.Config{BufferSize: 1024, Response: protocol.Response},
		eventloop.WithLogger(log),
		eventloop.WithRequestHook(func(uint64, string, []byte) { hooked++ }),
	)
	if err != nil {
		t.Fatal(err)
	}
	admit(t, l, ln, fake.NewConn("p").Feed([]byte(request)))
	done, _ := l.Tick()
	l.Reap(done)

	if hooked != 1 {
		t.Errorf("request hook must run regardless of log level, got %d calls", hooked)
	}
	for _, e := range hook.AllEntries() {
		if _, ok := e.Data["bytes"]; ok {
			t.Errorf("unexpected request log at info level: %+v", e)
		}
	}
}

func TestRun_RequestConns(t *testing.T) {
	ln := fake.NewListener()
	st := control.NewStats(4)
	l, _ := newLoop(t, ln, eventloop.Config{}, eventloop.WithStats(st))
	ln.Push(fake.NewConn("stalled"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for st.Snapshot().Accepted == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	conns, err := l.RequestConns(reqCtx)
	if err != nil {
		t.Fatalf("request conns: %v", err)
	}
	if len(conns) != 1 || conns[0].Peer != "stalled" || conns[0].Phase != "reading" {
		t.Errorf("unexpected conns %+v", conns)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	if _, err := l.RequestConns(reqCtx); !errors.Is(err, eventloop.ErrStopped) {
		t.Errorf("expected ErrStopped after Run returned, got %v", err)
	}
}
