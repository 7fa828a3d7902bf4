package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-feed
api:
  ws_url: wss://example.test/graphql
  api_key: key-123
topics:
  - alpha
  - beta
session:
  keepalive_interval: 15s
stats:
  backend: redis
  redis:
    addr: localhost:6379
    db: 2
notify:
  webhook_url: https://hooks.example.test/abc
  patterns: ["*", "TENSORSWAP:SALE_BUY_NOW"]
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-feed" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-feed")
	}
	if cfg.API.WSURL != "wss://example.test/graphql" {
		t.Errorf("API.WSURL = %q, want %q", cfg.API.WSURL, "wss://example.test/graphql")
	}
	if len(cfg.Topics) != 2 || cfg.Topics[1] != "beta" {
		t.Errorf("Topics = %v, want [alpha beta]", cfg.Topics)
	}
	if cfg.Session.KeepAliveInterval != 15*time.Second {
		t.Errorf("Session.KeepAliveInterval = %v, want 15s", cfg.Session.KeepAliveInterval)
	}
	if cfg.Stats.Redis.DB != 2 {
		t.Errorf("Stats.Redis.DB = %d, want 2", cfg.Stats.Redis.DB)
	}
	if len(cfg.Notify.Patterns) != 2 || cfg.Notify.Patterns[0] != "*" {
		t.Errorf("Notify.Patterns = %v, want [* TENSORSWAP:SALE_BUY_NOW]", cfg.Notify.Patterns)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret123")

	yaml := `
instance:
  id: test-feed
api:
  api_key: ${TEST_API_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.APIKey != "secret123" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "secret123")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-feed
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.WSURL != DefaultWSURL {
		t.Errorf("API.WSURL = %q, want default %q", cfg.API.WSURL, DefaultWSURL)
	}
	if cfg.API.Subprotocol != DefaultSubprotocol {
		t.Errorf("API.Subprotocol = %q, want default %q", cfg.API.Subprotocol, DefaultSubprotocol)
	}
	if cfg.API.MaxRetries != 0 {
		t.Errorf("API.MaxRetries = %d, want 0", cfg.API.MaxRetries)
	}
	if cfg.Health.Addr != "" {
		t.Errorf("Health.Addr = %q, want empty", cfg.Health.Addr)
	}
	if cfg.Session.KeepAliveInterval != 30*time.Second {
		t.Errorf("Session.KeepAliveInterval = %v, want 30s", cfg.Session.KeepAliveInterval)
	}
	if cfg.Stats.TTL != 5*time.Minute {
		t.Errorf("Stats.TTL = %v, want 5m", cfg.Stats.TTL)
	}
	if cfg.Stats.Backend != BackendMemory {
		t.Errorf("Stats.Backend = %q, want %q", cfg.Stats.Backend, BackendMemory)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Poller.Interval >= cfg.Stats.TTL {
		t.Errorf("Poller.Interval = %v, want less than Stats.TTL %v", cfg.Poller.Interval, cfg.Stats.TTL)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: test-feed\n")
	if _, err := LoadAndValidate(path); err != nil {
		t.Errorf("LoadAndValidate failed: %v", err)
	}

	path = writeTempFile(t, "api:\n  api_key: x\n")
	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected validation error for missing instance.id")
	}
}

func validConfig() Config {
	cfg := Config{Instance: InstanceConfig{ID: "test"}}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "http ws url",
			mutate:  func(c *Config) { c.API.WSURL = "https://example.test/graphql" },
			wantErr: `api.ws_url must be a [ws wss] URL, got "https://example.test/graphql"`,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.API.MaxRetries = -1 },
			wantErr: "api.max_retries must be >= 0",
		},
		{
			name:    "empty topic",
			mutate:  func(c *Config) { c.Topics = []string{"alpha", ""} },
			wantErr: "topics[1] is empty",
		},
		{
			name: "reconnect delays inverted",
			mutate: func(c *Config) {
				c.Session.ReconnectBaseDelay = time.Minute
				c.Session.ReconnectMaxDelay = time.Second
			},
			wantErr: "session.reconnect_base_delay (1m0s) cannot exceed reconnect_max_delay (1s)",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Stats.Backend = "memcached" },
			wantErr: `stats.backend must be "memory" or "redis", got "memcached"`,
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Stats.Backend = BackendRedis },
			wantErr: "stats.redis.addr is required for the redis backend",
		},
		{
			name: "database enabled without host",
			mutate: func(c *Config) {
				c.Database.Enabled = true
			},
			wantErr: "database.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Postgres = validDB
				c.Database.Postgres.MinConns = 20
			},
			wantErr: "database.postgres.min_conns (20) cannot exceed max_conns (10)",
		},
		{
			name:    "patterns without webhook",
			mutate:  func(c *Config) { c.Notify.Patterns = []string{"*"} },
			wantErr: "notify.patterns requires notify.webhook_url",
		},
		{
			name: "database disabled skips postgres checks",
			mutate: func(c *Config) {
				c.Database.Postgres = DBConfig{}
			},
		},
		{
			name: "valid full config",
			mutate: func(c *Config) {
				c.Topics = []string{"alpha"}
				c.Stats.Backend = BackendRedis
				c.Stats.Redis.Addr = "localhost:6379"
				c.Database.Enabled = true
				c.Database.Postgres = validDB
				c.Notify.WebhookURL = "https://hooks.example.test/abc"
				c.Notify.Patterns = []string{"*"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
