package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns one session: a single transport, its heartbeat and
// reconnection, and the outbound queue.
//
// Every state change happens under mu. Goroutines and timers capture the
// epoch (bumped by Connect and Disconnect) and the link they were started
// for, and do nothing once either is stale.
type Manager struct {
	cfg    Config
	dialer Dialer
	queue  Queue
	logger *slog.Logger

	// Messages sent before any user connected. The next user to connect
	// drains them after their own entries.
	unowned *MemoryQueue

	mu             sync.Mutex
	closed         bool
	epoch          uint64
	userID         string
	token          string
	endpoint       string
	status         Status
	lastErr        string
	attempts       int
	lastPongAt     time.Time
	last           *Message
	link           *link
	ctx            context.Context
	cancel         context.CancelFunc
	reconnectTimer *time.Timer

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// link is one open transport.
type link struct {
	conn     Conn
	epoch    uint64
	endpoint string
	done     chan struct{} // Closed when the link is torn down
}

// NewManager creates a Manager. A nil dialer uses gorilla/websocket and a
// nil queue keeps messages in memory.
func NewManager(cfg Config, dialer Dialer, queue Queue, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if dialer == nil {
		dialer = NewWebSocketDialer(cfg)
	}
	if queue == nil {
		queue = NewMemoryQueue()
	}

	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		queue:   queue,
		logger:  logger,
		unowned: NewMemoryQueue(),
		status:  StatusDisconnected,
		subs:   make(map[int]chan Event),
	}
}

// Connect starts a session for userID. It returns once the status is
// connecting; the handshake completes in the background.
//
// Calling Connect again for the same user while connecting or connected is a
// no-op. A different user replaces the current session.
func (m *Manager) Connect(userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if userID != "" && userID == m.userID &&
		(m.status == StatusConnecting || m.status == StatusConnected) {
		return nil
	}

	if m.userID != "" && m.userID != userID {
		m.logger.Info("switching session user", "from", m.userID, "to", userID)
	}
	m.epoch++
	m.teardownLocked("session replaced")

	m.userID = userID
	m.token = token
	m.attempts = 0
	m.lastErr = ""

	endpoint, err := BuildURL(m.cfg.URL, userID, token)
	if err != nil {
		m.logger.Error("cannot construct transport", "user_id", userID, "error", err)
		m.lastErr = err.Error()
		m.setStatusLocked(StatusError)
		return err
	}
	m.endpoint = endpoint
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.setStatusLocked(StatusConnecting)
	m.dialLocked()
	return nil
}

// Disconnect closes the transport with a normal closure, cancels pending
// timers and clears the session identity. It never triggers a reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

// Close disconnects and closes every subscriber channel.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.disconnectLocked()
	m.closed = true
	m.mu.Unlock()

	m.subsMu.Lock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.subsMu.Unlock()
}

// SendMessage writes msg if the transport is open. Otherwise, or if the write
// fails, msg is queued for the next connection and false is returned.
func (m *Manager) SendMessage(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("dropping unencodable message", "type", msg.Type, "error", err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l := m.link; l != nil && m.status == StatusConnected {
		// Anything still queued goes first.
		err := m.drainLocked(l)
		if err == nil {
			err = m.write(l, data)
		}
		if err == nil {
			return true
		}
		m.logger.Warn("send failed, queueing", "type", msg.Type, "error", err)
	}

	m.enqueueLocked(msg)
	return false
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastMessage returns the most recent non-liveness inbound message.
func (m *Manager) LastMessage() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Message{}, false
	}
	return *m.last, true
}

// Snapshot returns a copy of the session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UserID:            m.userID,
		Status:            m.status,
		ReconnectAttempts: m.attempts,
		LastPongAt:        m.lastPongAt,
		LastError:         m.lastErr,
		Epoch:             m.epoch,
	}

	ctx, cancel := m.queueContext()
	defer cancel()
	if m.userID != "" {
		if n, err := m.queue.Len(ctx, m.userID); err == nil {
			snap.QueueLen = n
		}
	}
	n, _ := m.unowned.Len(ctx, "")
	snap.QueueLen += n
	return snap
}

// Subscribe registers an observer. Events are dropped for subscribers whose
// buffer is full. The returned func unregisters and closes the channel.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

func (m *Manager) disconnectLocked() {
	m.epoch++
	m.teardownLocked("client disconnect")

	if m.userID != "" {
		m.logger.Info("disconnected", "user_id", m.userID)
	}
	m.userID = ""
	m.token = ""
	m.endpoint = ""
	m.attempts = 0
	m.lastErr = ""
	m.setStatusLocked(StatusDisconnected)
}

// teardownLocked cancels timers and the session context and closes the
// current link with a normal closure.
func (m *Manager) teardownLocked(reason string) {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if l := m.link; l != nil {
		m.link = nil
		close(l.done)
		if err := l.conn.Close(CloseNormal, reason); err != nil {
			m.logger.Debug("close transport", "error", err)
		}
	}
}

func (m *Manager) dialLocked() {
	go m.dial(m.ctx, m.epoch, m.endpoint)
}

// dial runs the handshake outside the lock and installs the link if the
// session is still current.
func (m *Manager) dial(ctx context.Context, epoch uint64, endpoint string) {
	dialCtx := ctx
	if m.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, err := m.dialer.Dial(dialCtx, endpoint)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || epoch != m.epoch || m.link != nil {
		if conn != nil {
			_ = conn.Close(CloseNormal, "stale session")
		}
		return
	}
	if err != nil {
		m.logger.Warn("handshake failed",
			"user_id", m.userID,
			"attempt", m.attempts,
			"error", err,
		)
		m.lastErr = err.Error()
		m.handleDropLocked()
		return
	}

	l := &link{
		conn:     conn,
		epoch:    epoch,
		endpoint: endpoint,
		done:     make(chan struct{}),
	}
	m.link = l
	m.attempts = 0
	m.lastPongAt = time.Now()
	m.lastErr = ""
	m.setStatusLocked(StatusConnected)

	m.logger.Info("websocket connected", "user_id", m.userID)

	if err := m.drainLocked(l); err != nil {
		m.logger.Warn("outbound queue drain interrupted", "error", err)
	}

	go m.readLoop(l)
	go m.heartbeatLoop(l)
}

// reconnect fires from the backoff timer.
func (m *Manager) reconnect(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || epoch != m.epoch || m.link != nil || m.status != StatusConnecting {
		return
	}
	m.reconnectTimer = nil

	m.logger.Info("attempting reconnection",
		"user_id", m.userID,
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxAttempts,
	)
	m.dialLocked()
}

// readLoop reads frames until the link fails.
func (m *Manager) readLoop(l *link) {
	for {
		data, err := l.conn.ReadMessage()
		if err != nil {
			m.handleClose(l, CloseCodeOf(err), err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("dropping malformed frame", "error", err, "bytes", len(data))
			continue
		}
		if msg.Type == "" {
			m.logger.Warn("dropping frame without type", "bytes", len(data))
			continue
		}

		m.handleInbound(l, msg)
	}
}

func (m *Manager) handleInbound(l *link, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != l {
		return
	}
	if msg.Type == TypePong {
		m.lastPongAt = time.Now()
		return
	}

	m.last = &msg
	m.emitLocked(EventMessage)
}

// heartbeatLoop probes the link and forces a reconnect when pongs stop.
func (m *Manager) heartbeatLoop(l *link) {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if !m.probe(l) {
				return
			}
		}
	}
}

// probe reports whether the link is still alive.
func (m *Manager) probe(l *link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != l {
		return false
	}

	staleAfter := m.cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 3 * m.cfg.HeartbeatInterval
	}
	if since := time.Since(m.lastPongAt); since > staleAfter {
		m.logger.Warn("no pong received, connection stale",
			"user_id", m.userID,
			"last_pong", m.lastPongAt,
			"timeout", staleAfter,
		)
		m.dropLinkLocked(l, CloseAbnormal, ErrStaleConnection)
		return false
	}

	data, _ := json.Marshal(Message{Type: TypePing})
	if err := m.write(l, data); err != nil {
		m.logger.Debug("failed to send ping", "error", err)
	}
	return true
}

func (m *Manager) handleClose(l *link, code int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLinkLocked(l, code, err)
}

// dropLinkLocked handles the end of l exactly once.
func (m *Manager) dropLinkLocked(l *link, code int, cause error) {
	if m.link != l {
		return
	}
	m.link = nil
	close(l.done)
	_ = l.conn.Close(code, "")

	if code == CloseNormal {
		m.logger.Info("server closed connection", "user_id", m.userID)
		m.setStatusLocked(StatusDisconnected)
		return
	}

	m.logger.Warn("connection dropped",
		"user_id", m.userID,
		"code", code,
		"error", cause,
	)
	if cause != nil {
		m.lastErr = cause.Error()
	}
	m.handleDropLocked()
}

// handleDropLocked schedules the next attempt or gives up.
func (m *Manager) handleDropLocked() {
	if m.attempts >= m.cfg.MaxAttempts {
		m.logger.Error("giving up reconnecting",
			"user_id", m.userID,
			"attempts", m.attempts,
			"error", ErrRetriesExhausted,
		)
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.lastErr = MsgConnectionLost
		m.setStatusLocked(StatusError)
		return
	}

	m.attempts++
	delay := m.cfg.Backoff.Next(m.attempts)
	m.setStatusLocked(StatusConnecting)

	m.logger.Info("scheduling reconnection",
		"user_id", m.userID,
		"attempt", m.attempts,
		"delay", delay,
	)

	epoch := m.epoch
	m.reconnectTimer = time.AfterFunc(delay, func() { m.reconnect(epoch) })
}

// drainLocked sends the current user's queued messages over l in order,
// then any messages queued before a user was known.
func (m *Manager) drainLocked(l *link) error {
	ctx, cancel := m.queueContext()
	defer cancel()

	send := func(q QueuedMessage) error {
		data, err := json.Marshal(q.Message)
		if err != nil {
			return fmt.Errorf("encode queued message %s: %w", q.ID, err)
		}
		return m.write(l, data)
	}

	sent, err := m.queue.Drain(ctx, m.userID, send)
	if err == nil {
		var n int
		n, err = m.unowned.Drain(ctx, "", send)
		sent += n
	}
	if sent > 0 {
		m.logger.Info("drained outbound queue", "user_id", m.userID, "count", sent)
	}
	return err
}

func (m *Manager) enqueueLocked(msg Message) {
	q := QueuedMessage{
		ID:         uuid.New(),
		EnqueuedAt: time.Now(),
		Message:    msg,
	}

	ctx, cancel := m.queueContext()
	defer cancel()

	var err error
	if m.userID == "" {
		err = m.unowned.Push(ctx, "", q)
	} else {
		err = m.queue.Push(ctx, m.userID, q)
	}
	if err != nil {
		m.logger.Error("failed to queue message", "id", q.ID, "type", msg.Type, "error", err)
		return
	}
	m.logger.Debug("message queued", "id", q.ID, "type", msg.Type, "user_id", m.userID, "status", m.status)

	m.lastErr = MsgQueuedForRetry
	m.emitErrorLocked()
}

func (m *Manager) write(l *link, data []byte) error {
	deadline := time.Time{}
	if m.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(m.cfg.WriteTimeout)
	}
	return l.conn.WriteMessage(data, deadline)
}

func (m *Manager) queueContext() (context.Context, context.CancelFunc) {
	if m.cfg.WriteTimeout > 0 {
		return context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	}
	return context.WithCancel(context.Background())
}

func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.logger.Debug("status changed", "from", m.status, "to", s)
	m.status = s
	m.emitLocked(EventStatus)
}

// emitErrorLocked reports a new error without a status change.
func (m *Manager) emitErrorLocked() {
	m.emitLocked(EventStatus)
}

func (m *Manager) emitLocked(kind EventKind) {
	ev := Event{
		Kind:   kind,
		Status: m.status,
		Err:    m.lastErr,
		At:     time.Now(),
	}
	if kind == EventMessage && m.last != nil {
		ev.Message = *m.last
	}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("subscriber buffer full, dropping event", "subscriber", id, "kind", kind)
		}
	}
}
