package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn fed by the test.
type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// send delivers one raw message to the read loop.
func (c *fakeConn) send(t *testing.T, data string) {
	t.Helper()
	select {
	case c.msgs <- []byte(data):
	case <-time.After(time.Second):
		t.Fatal("send timed out")
	}
}

// drop simulates the server closing the connection.
func (c *fakeConn) drop() {
	_ = c.Close()
}

// fakeDialer hands out fakeConns, optionally failing the first failTimes
// dials (or all of them when failTimes < 0).
type fakeDialer struct {
	mu        sync.Mutex
	failTimes int
	conns     []*fakeConn
	calls     int
}

func (d *fakeDialer) dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failTimes < 0 || d.calls <= d.failTimes {
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		t.Fatalf("no connection %d yet (have %d)", i, len(d.conns))
	}
	return d.conns[i]
}

// stateRecorder collects every state transition.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return StateDisconnected
	}
	return r.states[len(r.states)-1]
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

// waitForState polls until the client reaches want or the deadline passes.
func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, still %v", want, c.State())
}

// waitForDials polls until the dialer has been invoked n times. Transient
// states like reconnecting pass too quickly to poll for directly with
// millisecond backoffs.
func waitForDials(t *testing.T, d *fakeDialer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.dialCalls() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d dials, have %d", n, d.dialCalls())
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "ws://caption.test"
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Millisecond
	}
	if cfg.DelayCap == 0 {
		cfg.DelayCap = 4 * time.Millisecond
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = time.Millisecond
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"default endpoint", "", false},
		{"ws scheme", "ws://localhost:8765", false},
		{"wss scheme", "wss://captions.example.com/stream", false},
		{"http scheme", "http://localhost:8765", true},
		{"garbage", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(Config{URL: tt.url})
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClient_ConnectAndReceive(t *testing.T) {
	dialer := &fakeDialer{}
	var events []Event
	var mu sync.Mutex

	c := newTestClient(t, Config{
		Dial: dialer.dial,
		Handler: func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})

	c.Connect(t.Context())
	waitForState(t, c, StateConnected)

	dialer.conn(t, 0).send(t, `{"type":"transcription","language":"en","id":"s1","text":"Hello"}`)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for event")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	got, ok := events[0].(TranscriptionEvent)
	mu.Unlock()
	if !ok {
		t.Fatalf("expected TranscriptionEvent, got %T", events[0])
	}
	if got.ID != "s1" || got.Text != "Hello" || got.Language != "en" {
		t.Errorf("unexpected event: %+v", got)
	}
	if c.Attempt() != 0 {
		t.Errorf("expected attempt counter 0 while connected, got %d", c.Attempt())
	}

	c.Disconnect()
}

func TestClient_ConnectIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestClient(t, Config{Dial: dialer.dial})

	ctx := t.Context()
	c.Connect(ctx)
	c.Connect(ctx)
	c.Connect(ctx)

	waitForState(t, c, StateConnected)
	time.Sleep(10 * time.Millisecond)

	if got := dialer.dialCalls(); got != 1 {
		t.Errorf("expected 1 dial call, got %d", got)
	}

	c.Disconnect()
}

func TestClient_ReconnectAfterDrop(t *testing.T) {
	dialer := &fakeDialer{}
	rec := &stateRecorder{}

	c := newTestClient(t, Config{
		Dial:          dialer.dial,
		OnStateChange: rec.record,
	})

	c.Connect(t.Context())
	waitForState(t, c, StateConnected)

	dialer.conn(t, 0).drop()
	waitForDials(t, dialer, 2)
	waitForState(t, c, StateConnected)

	if got := dialer.dialCalls(); got != 2 {
		t.Errorf("expected 2 dial calls, got %d", got)
	}
	if c.Attempt() != 0 {
		t.Errorf("expected attempt counter reset on success, got %d", c.Attempt())
	}

	c.Disconnect()
}

func TestClient_TerminalFailureAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{failTimes: -1}
	rec := &stateRecorder{}

	c := newTestClient(t, Config{
		Dial:          dialer.dial,
		MaxAttempts:   5,
		OnStateChange: rec.record,
	})

	c.Connect(t.Context())
	waitForState(t, c, StateFailed)

	// One initial dial plus four retries.
	if got := dialer.dialCalls(); got != 5 {
		t.Errorf("expected 5 dial attempts, got %d", got)
	}
	if got, want := c.Status(), "connection failed after 5 attempts"; got != want {
		t.Errorf("expected status %q, got %q", want, got)
	}

	// No further attempts once failed.
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCalls(); got != 5 {
		t.Errorf("expected no dials after terminal failure, got %d", got)
	}
	if c.State() != StateFailed {
		t.Errorf("expected state to stay failed, got %v", c.State())
	}
}

func TestClient_AttemptsSurviveShortLivedConnections(t *testing.T) {
	// Drops on live connections count against the same budget as failed
	// dials: with MaxAttempts=2, one successful connect that drops and one
	// refused dial must exhaust it.
	dialer := &fakeDialer{}
	c := newTestClient(t, Config{
		Dial:        dialer.dial,
		MaxAttempts: 2,
	})

	c.Connect(t.Context())
	waitForState(t, c, StateConnected)

	dialer.conn(t, 0).drop()
	waitForDials(t, dialer, 2)
	waitForState(t, c, StateConnected)

	dialer.conn(t, 1).drop()
	waitForState(t, c, StateFailed)
}

func TestClient_DisconnectIsTerminal(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestClient(t, Config{Dial: dialer.dial})

	c.Connect(t.Context())
	waitForState(t, c, StateConnected)

	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %v", c.State())
	}
	if c.Status() != "" {
		t.Errorf("expected empty status after disconnect, got %q", c.Status())
	}

	// The closed connection's read error must not schedule a retry.
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCalls(); got != 1 {
		t.Errorf("expected no dials after disconnect, got %d", got)
	}

	// Connect after Disconnect is a no-op; a new client is required.
	c.Connect(t.Context())
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCalls(); got != 1 {
		t.Errorf("expected Connect after Disconnect to be a no-op, got %d dials", got)
	}

	// Double disconnect should not panic.
	c.Disconnect()
}

func TestClient_DisconnectCancelsPendingRetry(t *testing.T) {
	dialer := &fakeDialer{failTimes: -1}
	c := newTestClient(t, Config{
		Dial:        dialer.dial,
		BaseDelay:   50 * time.Millisecond,
		DelayCap:    time.Second,
		MaxAttempts: 10,
	})

	c.Connect(t.Context())
	waitForState(t, c, StateReconnecting)

	calls := dialer.dialCalls()
	c.Disconnect()

	// The pending retry timer must not fire another dial.
	time.Sleep(150 * time.Millisecond)
	if got := dialer.dialCalls(); got != calls {
		t.Errorf("expected %d dials after disconnect, got %d", calls, got)
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %v", c.State())
	}
}

func TestClient_MalformedMessagesDoNotDropConnection(t *testing.T) {
	dialer := &fakeDialer{}
	var events []Event
	var mu sync.Mutex

	c := newTestClient(t, Config{
		Dial: dialer.dial,
		Handler: func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})

	c.Connect(t.Context())
	waitForState(t, c, StateConnected)

	conn := dialer.conn(t, 0)
	conn.send(t, `{not json`)
	conn.send(t, `{"type":"transcription","id":"s1","text":"still here"}`)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the valid event")
		}
		time.Sleep(time.Millisecond)
	}

	if c.State() != StateConnected {
		t.Errorf("expected connection to survive malformed payload, got %v", c.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := events[0].(TranscriptionEvent).Text; got != "still here" {
		t.Errorf("unexpected text %q", got)
	}

	c.Disconnect()
}

func TestClient_StateSequenceOnRecovery(t *testing.T) {
	dialer := &fakeDialer{}
	rec := &stateRecorder{}

	c := newTestClient(t, Config{
		Dial:          dialer.dial,
		OnStateChange: rec.record,
	})

	c.Connect(t.Context())
	waitForState(t, c, StateConnected)
	dialer.conn(t, 0).drop()

	// Wait on the recorded transitions rather than the live state so the
	// disconnect below cannot interleave with the recovery callbacks.
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.all()) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Disconnect()

	want := []State{
		StateConnecting,
		StateConnected,
		StateReconnecting,
		StateConnecting,
		StateConnected,
		StateDisconnected,
	}
	got := rec.all()
	if len(got) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: expected %v, got %v (full: %v)", i, want[i], got[i], got)
		}
	}
	if rec.last() != StateDisconnected {
		t.Errorf("expected final state disconnected, got %v", rec.last())
	}
}

func TestClient_BackoffDelay(t *testing.T) {
	c := newTestClient(t, Config{
		Dial:      (&fakeDialer{}).dial,
		BaseDelay: time.Second,
		DelayCap:  30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := c.backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d): expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}
