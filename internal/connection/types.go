package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no pong)")
	ErrClosed           = errors.New("manager closed")
	ErrConstruct        = errors.New("cannot construct transport")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// User-facing error messages recorded on the session.
const (
	MsgQueuedForRetry = "message queued for retry"
	MsgConnectionLost = "connection lost, please refresh"
)

// Reserved message types for the liveness protocol.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Close codes (RFC 6455).
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Status is the connection status of a session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Message is the wire shape used in both directions.
type Message struct {
	Type    string          `json:"type"`
	ChatID  *int64          `json:"chat_id,omitempty"`
	Content string          `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ChatMessage builds a "chat" message addressed to chatID.
func ChatMessage(chatID int64, content string) Message {
	return Message{Type: "chat", ChatID: &chatID, Content: content}
}

// QueuedMessage is an outbound message accepted while the transport was unavailable.
type QueuedMessage struct {
	ID         uuid.UUID `json:"id"`          // Local bookkeeping only, never sent
	EnqueuedAt time.Time `json:"enqueued_at"` // When SendMessage accepted it
	Message    Message   `json:"message"`
}

// EventKind discriminates Event values.
type EventKind uint8

const (
	// EventStatus reports a status transition.
	EventStatus EventKind = iota + 1
	// EventMessage reports a new inbound message.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind    EventKind
	Status  Status    // Status after the transition (EventStatus), current status otherwise
	Message Message   // Set for EventMessage
	Err     string    // Last recorded error, if any
	At      time.Time // When the event was emitted
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	UserID            string
	Status            Status
	ReconnectAttempts int
	LastPongAt        time.Time
	LastError         string
	Epoch             uint64
	QueueLen          int
}

// Backoff defines reconnect backoff behavior.
type Backoff struct {
	Base   time.Duration // Delay before the first attempt
	Max    time.Duration // Upper bound for any single delay
	Factor float64       // Multiplier per attempt
	Jitter float64       // Randomization as a fraction of the delay (0-1)
}

// Config configures the Manager.
type Config struct {
	URL               string        // WebSocket endpoint (e.g., ws://localhost:8000/ws)
	HeartbeatInterval time.Duration // Interval between ping probes
	StaleAfter        time.Duration // Max time without pong before forcing a reconnect
	HandshakeTimeout  time.Duration // Dial + upgrade deadline
	WriteTimeout      time.Duration // Write deadline for sends
	MaxAttempts       int           // Reconnect attempts before giving up
	Backoff           Backoff
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8000/ws",
		HeartbeatInterval: 30 * time.Second,
		StaleAfter:        90 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		MaxAttempts:       5,
		Backoff:           DefaultBackoff(),
	}
}
