package connection

import (
	"context"
	"sync"
)

// Queue holds outbound messages until a transport is usable. Entries are
// kept per user and a drain for one user never sees another user's entries.
//
// Implementations must preserve insertion order and remove an entry only
// after send has returned nil for it.
type Queue interface {
	// Push appends msg to the tail of userID's entries.
	Push(ctx context.Context, userID string, msg QueuedMessage) error

	// Drain hands userID's entries to send in FIFO order until none are left
	// or send fails. The failing entry stays at the head. Returns how many
	// entries were sent.
	Drain(ctx context.Context, userID string, send func(QueuedMessage) error) (int, error)

	// Len returns the number of entries queued for userID.
	Len(ctx context.Context, userID string) (int, error)
}

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string][]QueuedMessage
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string][]QueuedMessage)}
}

func (q *MemoryQueue) Push(_ context.Context, userID string, msg QueuedMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[userID] = append(q.items[userID], msg)
	return nil
}

func (q *MemoryQueue) Drain(ctx context.Context, userID string, send func(QueuedMessage) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items[userID]
	sent := 0
	defer func() {
		if len(items) == 0 {
			delete(q.items, userID)
			return
		}
		q.items[userID] = items
	}()

	for len(items) > 0 {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := send(items[0]); err != nil {
			return sent, err
		}
		items[0] = QueuedMessage{}
		items = items[1:]
		sent++
	}
	return sent, nil
}

func (q *MemoryQueue) Len(_ context.Context, userID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[userID]), nil
}
