package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuslink/realtime/internal/api"
	"github.com/campuslink/realtime/internal/config"
	"github.com/campuslink/realtime/internal/connection"
	"github.com/campuslink/realtime/internal/health"
	"github.com/campuslink/realtime/internal/outbox"
)

var errNoUser = errors.New("user id is required (--user or CAMPUSLINK_USER_ID)")

// session bundles a Manager with the resources behind its queue.
type session struct {
	Manager *connection.Manager
	UserID  string
	Token   string

	redis  *redis.Client
	outbox *outbox.RedisQueue
}

// openSession builds a Manager for the configured user. The outbound queue
// lives in Redis when the outbox is enabled and in memory otherwise.
func openSession(ctx context.Context, flags *Flags) (*session, error) {
	cfg := flags.Config
	if cfg.Connection.UserID == "" {
		return nil, errNoUser
	}

	s := &session{
		UserID: cfg.Connection.UserID,
		Token:  cfg.API.Token,
	}

	var queue connection.Queue
	if cfg.Outbox.Enabled {
		rdb, err := outbox.Open(ctx, outboxConfig(cfg.Outbox))
		if err != nil {
			return nil, fmt.Errorf("open outbox: %w", err)
		}
		s.redis = rdb
		s.outbox = outbox.NewRedisQueue(rdb, cfg.Outbox.KeyPrefix,
			outbox.WithMaxLen(cfg.Outbox.MaxLen),
			outbox.WithLogger(flags.Logger),
		)
		queue = s.outbox
	}

	logger := flags.Logger.With("component", "connection")
	s.Manager = connection.NewManager(managerConfig(cfg.Connection), nil, queue, logger)
	return s, nil
}

// Pingers returns the session's external dependencies for health checks.
func (s *session) Pingers() map[string]health.Pinger {
	deps := make(map[string]health.Pinger)
	if s.redis != nil {
		rdb := s.redis
		deps["redis"] = health.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return deps
}

// Close shuts the manager down and releases the queue backend.
func (s *session) Close() {
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

func managerConfig(cc config.ConnectionConfig) connection.Config {
	return connection.Config{
		URL:               cc.URL,
		HeartbeatInterval: cc.Heartbeat(),
		StaleAfter:        cc.StaleAfter,
		HandshakeTimeout:  cc.HandshakeTimeout,
		WriteTimeout:      cc.WriteTimeout,
		MaxAttempts:       cc.MaxReconnectAttempts,
		Backoff: connection.Backoff{
			Base:   cc.ReconnectBaseDelay,
			Max:    cc.ReconnectMaxDelay,
			Factor: 2.0,
			Jitter: cc.ReconnectJitter,
		},
	}
}

func outboxConfig(oc config.OutboxConfig) outbox.Config {
	return outbox.Config{
		Addr:        oc.Addr,
		Password:    oc.Password,
		DB:          oc.DB,
		PoolSize:    oc.PoolSize,
		DialTimeout: oc.DialTimeout,
		KeyPrefix:   oc.KeyPrefix,
		MaxLen:      oc.MaxLen,
	}
}

func newAPIClient(flags *Flags) *api.Client {
	cfg := flags.Config
	return api.NewClient(
		cfg.API.BaseURL,
		cfg.API.Token,
		api.WithLogger(flags.Logger.With("component", "api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.Retries(), time.Second),
	)
}
