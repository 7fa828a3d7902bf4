package stats

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/salesfeed/internal/cache"
)

// DefaultTTL is how long fetched stats stay cached.
const DefaultTTL = 5 * time.Minute

// DefaultAPIKeyHeader carries the API key on stats requests.
const DefaultAPIKeyHeader = "X-TENSOR-API-KEY"

// Client fetches collection statistics.
type Client struct {
	endpoint     string
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
	logger       *slog.Logger
	maxRetries   int
	retryBackoff time.Duration

	store      Store
	ttl        time.Duration
	group      singleflight.Group
	breakerCfg BreakerConfig
	breaker    *gobreaker.CircuitBreaker

	// Stats
	hits     atomic.Int64
	misses   atomic.Int64
	fetches  atomic.Int64
	failures atomic.Int64
}

// ClientStats contains client statistics.
type ClientStats struct {
	Hits         int64
	Misses       int64
	Fetches      int64 // successful network calls
	Failures     int64
	BreakerState string
}

// BreakerConfig configures the circuit breaker around the network call.
type BreakerConfig struct {
	MaxFailures uint32        // Consecutive failures that open the breaker (0 = never open)
	OpenTimeout time.Duration // Time spent open before a trial request
}

// DefaultBreakerConfig returns default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a stats client posting to endpoint.
func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:     endpoint,
		apiKey:       apiKey,
		apiKeyHeader: DefaultAPIKeyHeader,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		retryBackoff: time.Second,
		ttl:          DefaultTTL,
		breakerCfg:   DefaultBreakerConfig(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		// cache.DefaultSize is positive, so this cannot fail.
		c.store, _ = NewMemoryStore(cache.DefaultSize)
	}
	c.breaker = newBreaker(c.breakerCfg, c.logger)

	return c
}

// WithRetries retries server errors up to max times with jittered
// exponential backoff starting at backoff. Retries are off by default.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStore sets the cache backend.
func WithStore(s Store) ClientOption {
	return func(c *Client) {
		c.store = s
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithAPIKeyHeader sets the header carrying the API key.
func WithAPIKeyHeader(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.apiKeyHeader = name
		}
	}
}

// WithBreaker sets the circuit breaker configuration.
func WithBreaker(cfg BreakerConfig) ClientOption {
	return func(c *Client) {
		c.breakerCfg = cfg
	}
}

// Stats returns current client statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Fetches:      c.fetches.Load(),
		Failures:     c.failures.Load(),
		BreakerState: c.breaker.State().String(),
	}
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "stats",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.MaxFailures > 0 && counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Client errors say nothing about the health of the endpoint.
			apiErr, ok := err.(*APIError)
			return err == nil || (ok && !apiErr.IsServerError())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}
