package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPIURL               = "http://localhost:8000/api"
	DefaultWSURL                = "ws://localhost:8000/ws"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultOutboxAddr           = "localhost:6379"
	DefaultOutboxPoolSize       = 4
	DefaultOutboxDialTimeout    = 5 * time.Second
	DefaultOutboxKeyPrefix      = "campuslink:outbox:"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultBatchSize            = 100
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 1000
	DefaultHealthAddr           = ":8081"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.API.MaxRetries = &retries
	}

	// Connection defaults
	if c.Connection.URL == "" {
		c.Connection.URL = DefaultWSURL
	}
	if c.Connection.HeartbeatInterval == nil {
		hb := DefaultHeartbeatInterval
		c.Connection.HeartbeatInterval = &hb
	}
	if c.Connection.StaleAfter == 0 {
		c.Connection.StaleAfter = 3 * c.Connection.Heartbeat()
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Outbox defaults
	if c.Outbox.Addr == "" {
		c.Outbox.Addr = DefaultOutboxAddr
	}
	if c.Outbox.PoolSize == 0 {
		c.Outbox.PoolSize = DefaultOutboxPoolSize
	}
	if c.Outbox.DialTimeout == 0 {
		c.Outbox.DialTimeout = DefaultOutboxDialTimeout
	}
	if c.Outbox.KeyPrefix == "" {
		c.Outbox.KeyPrefix = DefaultOutboxKeyPrefix
	}

	// History defaults
	applyDBDefaults(&c.History.Database)
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultFlushInterval
	}
	if c.History.BufferSize == 0 {
		c.History.BufferSize = DefaultBufferSize
	}

	// Health defaults
	if c.Health.Addr == "" {
		c.Health.Addr = DefaultHealthAddr
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
