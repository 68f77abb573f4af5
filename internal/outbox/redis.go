package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuslink/realtime/internal/connection"
)

// DefaultKeyPrefix namespaces per-user outbox lists.
const DefaultKeyPrefix = "campuslink:outbox:"

// Config holds Redis connection settings for the outbox.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	KeyPrefix   string
	MaxLen      int64 // Oldest entries are trimmed beyond this; 0 keeps everything
}

// Open creates a Redis client and verifies it with PING.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Key returns the list key for userID.
func Key(prefix, userID string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + userID
}

// RedisQueue implements connection.Queue with one Redis list per user.
// The head of each list is the oldest entry.
type RedisQueue struct {
	client *redis.Client
	prefix string
	maxLen int64
	logger *slog.Logger
}

// Option configures a RedisQueue.
type Option func(*RedisQueue)

// WithMaxLen bounds each list's length, dropping the oldest entries.
func WithMaxLen(n int64) Option {
	return func(q *RedisQueue) {
		q.maxLen = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *RedisQueue) {
		q.logger = logger
	}
}

// NewRedisQueue creates a queue whose lists live under prefix.
func NewRedisQueue(client *redis.Client, prefix string, opts ...Option) *RedisQueue {
	q := &RedisQueue{
		client: client,
		prefix: prefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var _ connection.Queue = (*RedisQueue)(nil)

// Key returns the list key holding userID's entries.
func (q *RedisQueue) Key(userID string) string {
	return Key(q.prefix, userID)
}

// Push appends msg to the tail of userID's list.
func (q *RedisQueue) Push(ctx context.Context, userID string, msg connection.QueuedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode queued message: %w", err)
	}

	key := q.Key(userID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if q.maxLen > 0 {
		pipe.LTrim(ctx, key, -q.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// Drain peeks at the head, sends it, and pops it only once send succeeds.
// Entries that cannot be decoded are discarded.
func (q *RedisQueue) Drain(ctx context.Context, userID string, send func(connection.QueuedMessage) error) (int, error) {
	key := q.Key(userID)
	sent := 0
	for {
		raw, err := q.client.LIndex(ctx, key, 0).Bytes()
		if errors.Is(err, redis.Nil) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("peek %s: %w", key, err)
		}

		var msg connection.QueuedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			q.logger.Warn("discarding corrupt outbox entry", "key", key, "error", err)
			if err := q.client.LPop(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
				return sent, fmt.Errorf("pop %s: %w", key, err)
			}
			continue
		}

		if err := send(msg); err != nil {
			return sent, err
		}
		if err := q.client.LPop(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return sent, fmt.Errorf("pop %s: %w", key, err)
		}
		sent++
	}
}

// Len returns the length of userID's list.
func (q *RedisQueue) Len(ctx context.Context, userID string) (int, error) {
	key := q.Key(userID)
	n, err := q.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return int(n), nil
}

// Clear removes every entry queued for userID.
func (q *RedisQueue) Clear(ctx context.Context, userID string) error {
	key := q.Key(userID)
	if err := q.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}
