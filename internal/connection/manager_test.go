package connection

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory transport driven by the test.
type fakeConn struct {
	endpoint string
	autoPong bool

	inbound chan []byte
	drop    chan error
	closed  chan struct{}

	mu        sync.Mutex
	written   [][]byte
	closeCode int
	closeOnce sync.Once
}

func newFakeConn(endpoint string, autoPong bool) *fakeConn {
	return &fakeConn{
		endpoint: endpoint,
		autoPong: autoPong,
		inbound:  make(chan []byte, 64),
		drop:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.drop:
		return nil, err
	case <-c.closed:
		return nil, &CloseError{Code: c.CloseCode()}
	}
}

func (c *fakeConn) WriteMessage(data []byte, _ time.Time) error {
	select {
	case <-c.closed:
		return errors.New("write on closed transport")
	default:
	}

	c.mu.Lock()
	c.written = append(c.written, append([]byte(nil), data...))
	c.mu.Unlock()

	if c.autoPong {
		var msg Message
		if json.Unmarshal(data, &msg) == nil && msg.Type == TypePing {
			select {
			case c.inbound <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Contents returns the "content" of every written frame, skipping pings.
func (c *fakeConn) Contents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, data := range c.written {
		var msg Message
		if json.Unmarshal(data, &msg) != nil || msg.Type == TypePing {
			continue
		}
		out = append(out, msg.Content)
	}
	return out
}

// fakeDialer hands out fakeConns and records every attempt.
type fakeDialer struct {
	mu        sync.Mutex
	endpoints []string
	conns     []*fakeConn
	failures  int           // Upcoming dials that fail
	failAll   bool          // Every dial fails
	autoPong  bool          // Conns answer pings
	gate      chan struct{} // Dials block until closed
}

func (d *fakeDialer) Dial(_ context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.endpoints = append(d.endpoints, endpoint)
	if d.failAll || d.failures > 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	c := newFakeConn(endpoint, d.autoPong)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) Conns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.MaxAttempts = 5
	cfg.Backoff = Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
	return cfg
}

func newTestManager(t *testing.T, cfg Config, d *fakeDialer) *Manager {
	t.Helper()
	m := NewManager(cfg, d, nil, nil)
	t.Cleanup(m.Close)
	return m
}

// statusTrail collects status transitions from events.
type statusTrail struct {
	mu     sync.Mutex
	trail  []Status
	events <-chan Event
	done   chan struct{}
}

func trackStatus(m *Manager) *statusTrail {
	events, _ := m.Subscribe(256)
	st := &statusTrail{events: events, done: make(chan struct{})}
	go func() {
		defer close(st.done)
		for ev := range events {
			if ev.Kind != EventStatus {
				continue
			}
			st.mu.Lock()
			if n := len(st.trail); n == 0 || st.trail[n-1] != ev.Status {
				st.trail = append(st.trail, ev.Status)
			}
			st.mu.Unlock()
		}
	}()
	return st
}

func (st *statusTrail) Get() []Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Status(nil), st.trail...)
}

func equalStatuses(a, b []Status) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestManager_ConnectAndReceive(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	if err := m.Connect("42", "tok"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := m.Status(); got != StatusConnecting && got != StatusConnected {
		t.Errorf("status right after Connect = %s, want connecting or connected", got)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	conn := d.Conn(0)
	if !strings.Contains(conn.endpoint, "user_id=42") || !strings.Contains(conn.endpoint, "token=tok") {
		t.Errorf("endpoint %q missing identity", conn.endpoint)
	}

	conn.inbound <- []byte(`{"type":"chat","chat_id":5,"content":"hey"}`)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind != EventMessage {
				continue
			}
			if ev.Message.Content != "hey" || ev.Message.ChatID == nil || *ev.Message.ChatID != 5 {
				t.Errorf("event message = %+v", ev.Message)
			}
			msg, ok := m.LastMessage()
			if !ok || msg.Content != "hey" {
				t.Errorf("LastMessage() = %+v, %v", msg, ok)
			}
			return
		case <-deadline:
			t.Fatal("no message event")
		}
	}
}

func TestManager_QueueDrainsInOrder(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	if m.SendMessage(ChatMessage(1, "hi")) {
		t.Error("SendMessage while disconnected returned true")
	}
	if m.SendMessage(ChatMessage(1, "there")) {
		t.Error("SendMessage while disconnected returned true")
	}

	select {
	case ev := <-events:
		if ev.Err != MsgQueuedForRetry {
			t.Errorf("event error = %q, want %q", ev.Err, MsgQueuedForRetry)
		}
		if ev.Status != StatusDisconnected {
			t.Errorf("event status = %s, want disconnected", ev.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no event for queued message")
	}

	snap := m.Snapshot()
	if snap.QueueLen != 2 {
		t.Errorf("QueueLen = %d, want 2", snap.QueueLen)
	}
	if snap.LastError != MsgQueuedForRetry {
		t.Errorf("LastError = %q, want %q", snap.LastError, MsgQueuedForRetry)
	}

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	conn := d.Conn(0)
	got := conn.Contents()
	if len(got) != 2 || got[0] != "hi" || got[1] != "there" {
		t.Fatalf("drained = %v, want [hi there]", got)
	}
	if n := m.Snapshot().QueueLen; n != 0 {
		t.Errorf("QueueLen after drain = %d, want 0", n)
	}

	if !m.SendMessage(ChatMessage(1, "later")) {
		t.Error("SendMessage while connected returned false")
	}
	got = conn.Contents()
	if len(got) != 3 || got[2] != "later" {
		t.Errorf("written = %v, want [hi there later]", got)
	}
}

func TestManager_SendFailureQueues(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	// Break writes without the read loop noticing.
	conn := d.Conn(0)
	conn.closeOnce.Do(func() { close(conn.closed) })

	if m.SendMessage(ChatMessage(1, "lost")) {
		t.Error("SendMessage on broken transport returned true")
	}
	waitFor(t, "reconnect", func() bool { return d.Dials() >= 2 && m.Status() == StatusConnected })

	if got := d.Conn(1).Contents(); len(got) != 1 || got[0] != "lost" {
		t.Errorf("second transport received %v, want [lost]", got)
	}
}

func TestManager_DisconnectCancelsReconnect(t *testing.T) {
	d := &fakeDialer{}
	cfg := testConfig()
	cfg.Backoff = Backoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	m := newTestManager(t, cfg, d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	d.Conn(0).drop <- &CloseError{Code: CloseAbnormal}
	waitFor(t, "connecting", func() bool { return m.Status() == StatusConnecting })

	m.Disconnect()
	if got := m.Status(); got != StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", got)
	}

	time.Sleep(250 * time.Millisecond)
	if n := d.Dials(); n != 1 {
		t.Errorf("dials = %d, want 1 (no reconnect after Disconnect)", n)
	}
	snap := m.Snapshot()
	if snap.Status != StatusDisconnected || snap.UserID != "" {
		t.Errorf("snapshot = %+v, want disconnected with no user", snap)
	}
}

func TestManager_DisconnectSendsNormalClose(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	m.Disconnect()
	conn := d.Conn(0)
	if !conn.IsClosed() {
		t.Fatal("transport not closed")
	}
	if code := conn.CloseCode(); code != CloseNormal {
		t.Errorf("close code = %d, want %d", code, CloseNormal)
	}

	time.Sleep(50 * time.Millisecond)
	if n := d.Dials(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestManager_RetryExhaustion(t *testing.T) {
	d := &fakeDialer{failAll: true}
	cfg := testConfig()
	cfg.MaxAttempts = 3
	m := newTestManager(t, cfg, d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "error status", func() bool { return m.Status() == StatusError })

	snap := m.Snapshot()
	if snap.LastError != MsgConnectionLost {
		t.Errorf("LastError = %q, want %q", snap.LastError, MsgConnectionLost)
	}
	if snap.ReconnectAttempts != 3 {
		t.Errorf("ReconnectAttempts = %d, want 3", snap.ReconnectAttempts)
	}

	// One initial dial plus exactly MaxAttempts reconnects.
	time.Sleep(50 * time.Millisecond)
	if n := d.Dials(); n != 4 {
		t.Errorf("dials = %d, want 4", n)
	}
}

func TestManager_AttemptsResetAfterSuccess(t *testing.T) {
	d := &fakeDialer{failures: 2}
	cfg := testConfig()
	cfg.MaxAttempts = 2
	m := newTestManager(t, cfg, d)
	st := trackStatus(m)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })
	if n := m.Snapshot().ReconnectAttempts; n != 0 {
		t.Errorf("ReconnectAttempts after success = %d, want 0", n)
	}

	// With the counter reset a further drop still reconnects.
	d.Conn(0).drop <- &CloseError{Code: 1011}
	waitFor(t, "second transport", func() bool { return d.Conn(1) != nil && m.Status() == StatusConnected })

	want := []Status{StatusConnecting, StatusConnected, StatusConnecting, StatusConnected}
	waitFor(t, "status trail", func() bool { return equalStatuses(st.Get(), want) })
}

func TestManager_StaleHeartbeatMatchesNetworkDrop(t *testing.T) {
	run := func(t *testing.T, cfg Config, trigger func(*fakeConn)) []Status {
		d := &fakeDialer{}
		m := newTestManager(t, cfg, d)

		if err := m.Connect("42", ""); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

		st := trackStatus(m)
		trigger(d.Conn(0))
		waitFor(t, "reconnect", func() bool { return d.Conn(1) != nil && m.Status() == StatusConnected })

		first := d.Conn(0)
		if !first.IsClosed() {
			t.Error("dropped transport left open")
		}
		if code := first.CloseCode(); code == CloseNormal {
			t.Error("dropped transport closed with a normal code")
		}

		waitFor(t, "status trail", func() bool { return len(st.Get()) >= 2 })
		got := st.Get()
		if len(got) > 2 {
			got = got[:2]
		}
		return got
	}

	dropCfg := testConfig()
	dropped := run(t, dropCfg, func(c *fakeConn) { c.drop <- &CloseError{Code: CloseAbnormal} })

	staleCfg := testConfig()
	staleCfg.HeartbeatInterval = 10 * time.Millisecond
	staleCfg.StaleAfter = 30 * time.Millisecond
	stale := run(t, staleCfg, func(*fakeConn) {})

	want := []Status{StatusConnecting, StatusConnected}
	if !equalStatuses(dropped, want) {
		t.Errorf("network drop trail = %v, want %v", dropped, want)
	}
	if !equalStatuses(stale, want) {
		t.Errorf("stale trail = %v, want %v", stale, want)
	}
}

func TestManager_HeartbeatKeepsLinkAlive(t *testing.T) {
	d := &fakeDialer{autoPong: true}
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.StaleAfter = 40 * time.Millisecond
	m := newTestManager(t, cfg, d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	time.Sleep(150 * time.Millisecond)
	if n := d.Dials(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
	if got := m.Status(); got != StatusConnected {
		t.Errorf("status = %s, want connected", got)
	}
	if _, ok := m.LastMessage(); ok {
		t.Error("pong surfaced as an inbound message")
	}

	conn := d.Conn(0)
	conn.mu.Lock()
	pings := 0
	for _, data := range conn.written {
		if string(data) == `{"type":"ping"}` {
			pings++
		}
	}
	conn.mu.Unlock()
	if pings == 0 {
		t.Error("no ping probes written")
	}
}

func TestManager_SwitchUser(t *testing.T) {
	gate := make(chan struct{})
	d := &fakeDialer{gate: gate}
	m := newTestManager(t, testConfig(), d)

	if err := m.Connect("A", ""); err != nil {
		t.Fatalf("Connect(A) failed: %v", err)
	}
	if err := m.Connect("B", ""); err != nil {
		t.Fatalf("Connect(B) failed: %v", err)
	}
	close(gate)

	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })
	waitFor(t, "both dials", func() bool { return d.Dials() == 2 })
	waitFor(t, "stale transport closed", func() bool {
		open := 0
		for _, c := range d.Conns() {
			if !c.IsClosed() {
				open++
			}
		}
		return open == 1
	})

	for _, c := range d.Conns() {
		isB := strings.Contains(c.endpoint, "user_id=B")
		if isB && c.IsClosed() {
			t.Errorf("transport for B closed")
		}
		if !isB && !c.IsClosed() {
			t.Errorf("transport for %s still open", c.endpoint)
		}
	}
	if id := m.Snapshot().UserID; id != "B" {
		t.Errorf("UserID = %q, want B", id)
	}
}

func TestManager_SwitchUserKeepsQueuesApart(t *testing.T) {
	gate := make(chan struct{})
	d := &fakeDialer{gate: gate}
	m := newTestManager(t, testConfig(), d)

	if err := m.Connect("alice", "ta"); err != nil {
		t.Fatalf("Connect(alice) failed: %v", err)
	}
	m.SendMessage(ChatMessage(1, "from-alice"))

	if err := m.Connect("bob", "tb"); err != nil {
		t.Fatalf("Connect(bob) failed: %v", err)
	}
	m.SendMessage(ChatMessage(1, "from-bob"))
	close(gate)

	waitFor(t, "bob connected", func() bool { return m.Status() == StatusConnected })

	connFor := func(user string) *fakeConn {
		for _, c := range d.Conns() {
			if strings.Contains(c.endpoint, "user_id="+user) && !c.IsClosed() {
				return c
			}
		}
		return nil
	}

	bob := connFor("bob")
	if bob == nil {
		t.Fatal("no open transport for bob")
	}
	if got := bob.Contents(); len(got) != 1 || got[0] != "from-bob" {
		t.Errorf("bob received %v, want [from-bob]", got)
	}
	if n := m.Snapshot().QueueLen; n != 0 {
		t.Errorf("QueueLen for bob = %d, want 0", n)
	}

	if err := m.Connect("alice", "ta"); err != nil {
		t.Fatalf("reconnect alice failed: %v", err)
	}
	waitFor(t, "alice drained", func() bool {
		c := connFor("alice")
		if c == nil {
			return false
		}
		got := c.Contents()
		return len(got) == 1 && got[0] == "from-alice"
	})
}

func TestManager_UnownedQueueGoesToFirstUser(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	m.SendMessage(ChatMessage(1, "early"))
	if n := m.Snapshot().QueueLen; n != 1 {
		t.Fatalf("QueueLen = %d, want 1", n)
	}

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	if got := d.Conn(0).Contents(); len(got) != 1 || got[0] != "early" {
		t.Errorf("drained = %v, want [early]", got)
	}
	if n := m.Snapshot().QueueLen; n != 0 {
		t.Errorf("QueueLen after drain = %d, want 0", n)
	}
}

func TestManager_ConnectIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	epoch := m.Snapshot().Epoch
	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })
	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("third Connect failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if n := d.Dials(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
	if got := m.Snapshot().Epoch; got != epoch {
		t.Errorf("epoch changed from %d to %d", epoch, got)
	}
}

func TestManager_ConstructionFailure(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		userID string
	}{
		{name: "empty user", url: "ws://localhost:8000/ws", userID: ""},
		{name: "bad scheme", url: "ftp://localhost/ws", userID: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDialer{}
			cfg := testConfig()
			cfg.URL = tt.url
			m := newTestManager(t, cfg, d)

			err := m.Connect(tt.userID, "")
			if !errors.Is(err, ErrConstruct) {
				t.Fatalf("Connect error = %v, want ErrConstruct", err)
			}
			if got := m.Status(); got != StatusError {
				t.Errorf("status = %s, want error", got)
			}

			time.Sleep(20 * time.Millisecond)
			if n := d.Dials(); n != 0 {
				t.Errorf("dials = %d, want 0", n)
			}
		})
	}
}

func TestManager_MalformedFramesDropped(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	conn := d.Conn(0)
	conn.inbound <- []byte(`not json`)
	conn.inbound <- []byte(`{"content":"no type"}`)
	conn.inbound <- []byte(`{"type":"notification","content":"ok"}`)

	waitFor(t, "valid message", func() bool {
		msg, ok := m.LastMessage()
		return ok && msg.Content == "ok"
	})
	if got := m.Status(); got != StatusConnected {
		t.Errorf("status = %s, want connected", got)
	}
	if n := d.Dials(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestManager_ServerNormalClose(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, testConfig(), d)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	d.Conn(0).drop <- &CloseError{Code: CloseNormal, Text: "bye"}
	waitFor(t, "disconnected", func() bool { return m.Status() == StatusDisconnected })

	time.Sleep(30 * time.Millisecond)
	if n := d.Dials(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}

	// The session can be resumed explicitly.
	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "reconnected", func() bool { return m.Status() == StatusConnected && d.Dials() == 2 })
}

func TestManager_Close(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(testConfig(), d, nil, nil)

	events, _ := m.Subscribe(4)

	if err := m.Connect("42", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status() == StatusConnected })

	m.Close()
	m.Close()

	for range events {
	}
	if err := m.Connect("42", ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
	if !d.Conn(0).IsClosed() {
		t.Error("transport left open after Close")
	}
}

func TestManager_UnsubscribeStopsDelivery(t *testing.T) {
	m := NewManager(testConfig(), &fakeDialer{}, nil, nil)
	defer m.Close()

	events, unsubscribe := m.Subscribe(4)
	unsubscribe()
	unsubscribe()

	m.SendMessage(ChatMessage(1, "x"))

	if _, ok := <-events; ok {
		t.Error("received event after unsubscribe")
	}
}
