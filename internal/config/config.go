package config

import "time"

// Config is the root configuration of a salesfeed instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Topics   []string       `yaml:"topics"` // Collection slugs to subscribe to
	Stats    StatsConfig    `yaml:"stats"`
	Poller   PollerConfig   `yaml:"poller"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Notify   NotifyConfig   `yaml:"notify"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this instance in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds endpoint and credential settings shared by the
// subscription socket and the stats call.
type APIConfig struct {
	WSURL        string        `yaml:"ws_url"`
	HTTPURL      string        `yaml:"http_url"`
	APIKey       string        `yaml:"api_key"`
	APIKeyHeader string        `yaml:"api_key_header"`
	Subprotocol  string        `yaml:"subprotocol"`
	Timeout      time.Duration `yaml:"timeout"`     // Stats request timeout
	MaxRetries   int           `yaml:"max_retries"` // Stats retries on server errors, off by default
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// SessionConfig holds subscription session settings.
type SessionConfig struct {
	KeepAliveInterval  time.Duration `yaml:"keepalive_interval"`
	AckTimeout         time.Duration `yaml:"ack_timeout"`
	PongTimeout        time.Duration `yaml:"pong_timeout"` // Negative disables the liveness check
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// StatsConfig holds stats cache settings.
type StatsConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	CacheSize int           `yaml:"cache_size"`
	Backend   string        `yaml:"backend"` // "memory" or "redis"
	Redis     RedisConfig   `yaml:"redis"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// RedisConfig holds the shared cache connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BreakerConfig holds circuit breaker settings for the stats call.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// PollerConfig holds stats poller settings.
type PollerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the optional sales database.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// NotifyConfig holds webhook notification settings.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Patterns   []string      `yaml:"patterns"` // Router patterns to notify on
	Enrich     bool          `yaml:"enrich"`   // Attach collection stats to each message
	Timeout    time.Duration `yaml:"timeout"`
}

// HealthConfig holds the health endpoint. An empty Addr disables it.
type HealthConfig struct {
	Addr string `yaml:"addr"` // e.g. ":8080"
}
