package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
// It expects defaults to have been applied.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := validateURL("api.ws_url", c.API.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("api.http_url", c.API.HTTPURL, "http", "https"); err != nil {
		return err
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	for i, topic := range c.Topics {
		if topic == "" {
			return fmt.Errorf("topics[%d] is empty", i)
		}
	}

	if c.Session.KeepAliveInterval <= 0 {
		return errors.New("session.keepalive_interval must be > 0")
	}
	if c.Session.ReconnectBaseDelay > c.Session.ReconnectMaxDelay {
		return fmt.Errorf("session.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Session.ReconnectBaseDelay, c.Session.ReconnectMaxDelay)
	}
	if c.Session.BufferSize < 1 {
		return errors.New("session.buffer_size must be >= 1")
	}

	if c.Stats.TTL <= 0 {
		return errors.New("stats.ttl must be > 0")
	}
	if c.Stats.CacheSize < 1 {
		return errors.New("stats.cache_size must be >= 1")
	}
	switch c.Stats.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Stats.Redis.Addr == "" {
			return errors.New("stats.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("stats.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Stats.Backend)
	}

	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
		if c.Writers.BatchSize < 1 {
			return errors.New("writers.batch_size must be >= 1")
		}
		if c.Writers.BufferSize < 1 {
			return errors.New("writers.buffer_size must be >= 1")
		}
	}

	if c.Notify.WebhookURL != "" {
		if err := validateURL("notify.webhook_url", c.Notify.WebhookURL, "http", "https"); err != nil {
			return err
		}
	} else if len(c.Notify.Patterns) > 0 {
		return errors.New("notify.patterns requires notify.webhook_url")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
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
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %v URL, got %q", field, schemes, raw)
}
