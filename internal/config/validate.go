package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.Retries() < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if err := c.Connection.validate("connection"); err != nil {
		return err
	}

	if c.Outbox.Enabled {
		if c.Outbox.Addr == "" {
			return errors.New("outbox.addr is required when outbox is enabled")
		}
		if c.Outbox.MaxLen < 0 {
			return errors.New("outbox.max_len must be >= 0")
		}
	}

	if c.History.Enabled {
		if err := c.History.Database.validate("history.database"); err != nil {
			return err
		}
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
		if c.History.BufferSize < 1 {
			return errors.New("history.buffer_size must be >= 1")
		}
	}

	if c.Health.Enabled && c.Health.Addr == "" {
		return errors.New("health.addr is required when health is enabled")
	}

	return nil
}

func (cc *ConnectionConfig) validate(prefix string) error {
	if err := validateURL(prefix+".url", cc.URL, "ws", "wss"); err != nil {
		return err
	}
	if cc.MaxReconnectAttempts < 1 {
		return fmt.Errorf("%s.max_reconnect_attempts must be >= 1", prefix)
	}
	heartbeat := cc.Heartbeat()
	if heartbeat < 0 {
		return fmt.Errorf("%s.heartbeat_interval must be >= 0", prefix)
	}
	if heartbeat > 0 && cc.StaleAfter < heartbeat {
		return fmt.Errorf("%s.stale_after (%s) must be >= heartbeat_interval (%s)",
			prefix, cc.StaleAfter, heartbeat)
	}
	if cc.ReconnectBaseDelay > cc.ReconnectMaxDelay {
		return fmt.Errorf("%s.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			prefix, cc.ReconnectBaseDelay, cc.ReconnectMaxDelay)
	}
	if cc.ReconnectJitter < 0 || cc.ReconnectJitter > 1 {
		return fmt.Errorf("%s.reconnect_jitter must be between 0 and 1, got %g", prefix, cc.ReconnectJitter)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.URL != "" {
		return db.validatePool(prefix)
	}
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	return db.validatePool(prefix)
}

func (db *DBConfig) validatePool(prefix string) error {
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s has no host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %v, got %q", field, schemes, u.Scheme)
}
