package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/salesfeed/internal/model"
)

// TopicSource provides the topics to refresh.
type TopicSource interface {
	Topics() []string
}

// StatsRefresher fetches a topic's stats bypassing any cached copy.
type StatsRefresher interface {
	Refresh(ctx context.Context, topic string) (model.CollectionStats, error)
}

// StatsHandler receives refreshed stats.
type StatsHandler interface {
	HandleStats(topic string, stats model.CollectionStats) error
}

// StatsHandlerFunc is a function adapter for StatsHandler.
type StatsHandlerFunc func(string, model.CollectionStats) error

func (f StatsHandlerFunc) HandleStats(topic string, s model.CollectionStats) error {
	return f(topic, s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Refresh interval (default: 4m, under the 5m stats TTL)
	Concurrency int           // Max concurrent requests (default: 8)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    4 * time.Minute,
		Concurrency: 8,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically refreshes stats for every topic of a TopicSource.
type Poller struct {
	cfg     Config
	client  StatsRefresher
	topics  TopicSource
	handler StatsHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles atomic.Int64
}

// New creates a new Poller. handler may be nil.
func New(cfg Config, client StatsRefresher, topics TopicSource, handler StatsHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		topics:  topics,
		handler: handler,
		logger:  logger.With("component", "poller"),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("stats poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("stats poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cycles returns the number of completed poll cycles.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll refreshes every topic with at most Concurrency requests in flight.
func (p *Poller) pollAll() {
	start := time.Now()

	topics := p.topics.Topics()
	if len(topics) == 0 {
		p.logger.Debug("no topics to poll")
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	var refreshed, failed atomic.Int64

	for _, topic := range topics {
		if p.ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.pollTopic(topic); err != nil {
				p.logger.Warn("failed to refresh stats",
					"topic", topic,
					"error", err,
				)
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}

	g.Wait()
	p.cycles.Add(1)

	p.logger.Info("poll cycle complete",
		"topics", len(topics),
		"refreshed", refreshed.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollTopic refreshes and handles one topic's stats.
func (p *Poller) pollTopic(topic string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	s, err := p.client.Refresh(ctx, topic)
	if err != nil {
		return err
	}

	if p.handler != nil {
		return p.handler.HandleStats(topic, s)
	}
	return nil
}
