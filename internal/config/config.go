package config

import "time"

// Config is the root configuration for the campuslink client.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Connection ConnectionConfig `yaml:"connection"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	History    HistoryConfig    `yaml:"history"`
	Health     HealthConfig     `yaml:"health"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"` // Bearer token, also sent on the WebSocket query
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"` // 0 disables retries
}

// Retries returns MaxRetries, or DefaultMaxRetries when unset.
func (a APIConfig) Retries() int {
	if a.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *a.MaxRetries
}

// ConnectionConfig holds real-time connection settings.
type ConnectionConfig struct {
	URL                  string         `yaml:"url"`
	UserID               string         `yaml:"user_id"`
	HeartbeatInterval    *time.Duration `yaml:"heartbeat_interval"` // 0 disables the ping probe
	StaleAfter           time.Duration  `yaml:"stale_after"`
	HandshakeTimeout     time.Duration  `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration  `yaml:"write_timeout"`
	MaxReconnectAttempts int            `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration  `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration  `yaml:"reconnect_max_delay"`
	ReconnectJitter      float64        `yaml:"reconnect_jitter"`
}

// Heartbeat returns HeartbeatInterval, or DefaultHeartbeatInterval when unset.
func (cc ConnectionConfig) Heartbeat() time.Duration {
	if cc.HeartbeatInterval == nil {
		return DefaultHeartbeatInterval
	}
	return *cc.HeartbeatInterval
}

// OutboxConfig holds the Redis-backed outbound queue settings.
type OutboxConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	KeyPrefix   string        `yaml:"key_prefix"`
	MaxLen      int64         `yaml:"max_len"`
}

// HistoryConfig holds inbound message recording settings.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	URL      string `yaml:"url"` // Full connection URL; overrides the fields below
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}
