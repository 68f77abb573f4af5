package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Config holds recorder settings.
type Config struct {
	UserID        string        // Session the recorded messages belong to
	BatchSize     int           // Flush when this many records are pending
	FlushInterval time.Duration // Flush at least this often
	FlushTimeout  time.Duration // Deadline for a single store write
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		FlushTimeout:  10 * time.Second,
	}
}

// Record is one stored inbound message.
type Record struct {
	ID         uuid.UUID
	UserID     string
	ChatID     *int64
	Type       string
	Content    string
	Payload    json.RawMessage // Full message as received
	ReceivedAt time.Time
}

// Stats counts recorder activity.
type Stats struct {
	Received  int64
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// Store persists records.
type Store interface {
	// Insert writes rows and reports how many were already present.
	Insert(ctx context.Context, rows []Record) (conflicts int, err error)

	// Recent returns up to limit records in chronological order.
	// A chatID of 0 matches every chat.
	Recent(ctx context.Context, chatID int64, limit int) ([]Record, error)
}
