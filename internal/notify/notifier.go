package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rickgao/salesfeed/internal/model"
	"github.com/rickgao/salesfeed/internal/router"
	"github.com/rickgao/salesfeed/internal/version"
)

const DefaultTimeout = 10 * time.Second

// StatsFetcher looks up collection stats for a topic. Satisfied by *stats.Client.
type StatsFetcher interface {
	FetchStats(ctx context.Context, topic string) (model.CollectionStats, error)
}

// WebhookError is a non-2xx response from the webhook endpoint.
type WebhookError struct {
	StatusCode int
	Body       []byte
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// NotifierStats contains runtime statistics.
type NotifierStats struct {
	Sent           int64
	Failed         int64
	EnrichFailures int64
}

// Notifier posts sales to a webhook.
type Notifier struct {
	url        string
	username   string
	httpClient *http.Client
	stats      StatsFetcher
	logger     *slog.Logger

	sent           atomic.Int64
	failed         atomic.Int64
	enrichFailures atomic.Int64
}

// Option configures a Notifier.
type Option func(*Notifier)

// NewNotifier creates a notifier posting to url.
func NewNotifier(url string, opts ...Option) *Notifier {
	n := &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "notifier")
	return n
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		n.httpClient.Timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = hc
	}
}

// WithStats enables enrichment with collection stats.
func WithStats(f StatsFetcher) Option {
	return func(n *Notifier) {
		n.stats = f
	}
}

// WithUsername overrides the webhook's display name.
func WithUsername(name string) Option {
	return func(n *Notifier) {
		n.username = name
	}
}

// Listener returns a router listener that posts every event it receives.
// Errors are logged and counted.
func (n *Notifier) Listener() router.Listener {
	return func(ctx context.Context, ev router.Event) {
		if err := n.Notify(ctx, ev); err != nil {
			n.logger.Warn("notify failed",
				"topic", ev.Topic,
				"tx_key", ev.Sale.Tx.TxKey,
				"error", err,
			)
		}
	}
}

// Notify posts one sale, enriching it first when a stats fetcher is set.
func (n *Notifier) Notify(ctx context.Context, ev router.Event) error {
	var cs *model.CollectionStats
	if n.stats != nil {
		s, err := n.stats.FetchStats(ctx, ev.Topic)
		if err != nil {
			n.enrichFailures.Add(1)
			n.logger.Debug("stats unavailable, posting without enrichment", "topic", ev.Topic, "error", err)
		} else {
			cs = &s
		}
	}

	msg := BuildMessage(ev, cs)
	msg.Username = n.username

	if err := n.post(ctx, msg); err != nil {
		n.failed.Add(1)
		return err
	}
	n.sent.Add(1)
	return nil
}

// Stats returns current statistics.
func (n *Notifier) Stats() NotifierStats {
	return NotifierStats{
		Sent:           n.sent.Load(),
		Failed:         n.failed.Load(),
		EnrichFailures: n.enrichFailures.Load(),
	}
}

func (n *Notifier) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &WebhookError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return nil
}
