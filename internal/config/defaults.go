package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "wss://api.tensor.so/graphql"
	DefaultHTTPURL            = "https://api.tensor.so/graphql"
	DefaultAPIKeyHeader       = "X-TENSOR-API-KEY"
	DefaultSubprotocol        = "graphql-transport-ws"
	DefaultAPITimeout         = 30 * time.Second
	DefaultRetryBackoff       = 500 * time.Millisecond
	DefaultKeepAliveInterval  = 30 * time.Second
	DefaultAckTimeout         = 10 * time.Second
	DefaultPongTimeout        = 90 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultSessionBuffer      = 1000
	DefaultStatsTTL           = 5 * time.Minute
	DefaultStatsCacheSize     = 1024
	DefaultStatsBackend       = BackendMemory
	DefaultBreakerFailures    = 5
	DefaultBreakerOpenTimeout = 30 * time.Second
	DefaultPollInterval       = 4 * time.Minute
	DefaultPollConcurrency    = 8
	DefaultPollTimeout        = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultNotifyTimeout      = 10 * time.Second
)

// Stats cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// API defaults
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.HTTPURL == "" {
		c.API.HTTPURL = DefaultHTTPURL
	}
	if c.API.APIKeyHeader == "" {
		c.API.APIKeyHeader = DefaultAPIKeyHeader
	}
	if c.API.Subprotocol == "" {
		c.API.Subprotocol = DefaultSubprotocol
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Session defaults
	if c.Session.KeepAliveInterval == 0 {
		c.Session.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.Session.AckTimeout == 0 {
		c.Session.AckTimeout = DefaultAckTimeout
	}
	if c.Session.PongTimeout == 0 {
		c.Session.PongTimeout = DefaultPongTimeout
	}
	if c.Session.ReconnectBaseDelay == 0 {
		c.Session.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Session.ReconnectMaxDelay == 0 {
		c.Session.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.Session.BufferSize == 0 {
		c.Session.BufferSize = DefaultSessionBuffer
	}

	// Stats defaults
	if c.Stats.TTL == 0 {
		c.Stats.TTL = DefaultStatsTTL
	}
	if c.Stats.CacheSize == 0 {
		c.Stats.CacheSize = DefaultStatsCacheSize
	}
	if c.Stats.Backend == "" {
		c.Stats.Backend = DefaultStatsBackend
	}
	if c.Stats.Breaker.MaxFailures == 0 {
		c.Stats.Breaker.MaxFailures = DefaultBreakerFailures
	}
	if c.Stats.Breaker.OpenTimeout == 0 {
		c.Stats.Breaker.OpenTimeout = DefaultBreakerOpenTimeout
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Notify defaults
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = DefaultNotifyTimeout
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
