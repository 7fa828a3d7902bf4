package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/salesfeed/internal/model"
)

// Router fans decoded sales out to listeners registered by pattern.
type Router interface {
	// On registers l for pattern. The returned func removes the registration.
	On(pattern string, l Listener) (cancel func())

	// HasListeners reports whether at least one listener is registered for pattern.
	HasListeners(pattern string) bool

	// Dispatch queues sale for every matching listener and returns the number
	// of invocations queued. It never waits for listeners.
	Dispatch(topic string, sale model.Sale) int

	// Start begins delivering queued events.
	Start(ctx context.Context) error

	// Stop delivers what is already queued and shuts down.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

type registration struct {
	id uint64
	fn Listener
}

// router is the internal implementation.
type router struct {
	cfg    RouterConfig
	logger *slog.Logger

	// Pattern registry
	lmu       sync.RWMutex
	listeners map[string][]registration
	nextID    uint64

	// Ordered delivery
	queue *Queue[delivery]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	received   atomic.Int64
	unmatched  atomic.Int64
	deliveries atomic.Int64
	panics     atomic.Int64
}

// NewRouter creates a new event router.
func NewRouter(cfg RouterConfig, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultRouterConfig().QueueSize
	}

	return &router{
		cfg:       cfg,
		logger:    logger.With("component", "router"),
		listeners: make(map[string][]registration),
		queue:     NewQueue[delivery](cfg.QueueSize),
	}
}

// On registers a listener for pattern.
func (r *router) On(pattern string, l Listener) func() {
	r.lmu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners[pattern] = append(r.listeners[pattern], registration{id: id, fn: l})
	r.lmu.Unlock()

	r.logger.Debug("listener registered", "pattern", pattern)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(pattern, id) })
	}
}

func (r *router) remove(pattern string, id uint64) {
	r.lmu.Lock()
	defer r.lmu.Unlock()

	regs := r.listeners[pattern]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}
		// Copy so snapshots taken by Dispatch stay intact.
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(r.listeners, pattern)
		} else {
			r.listeners[pattern] = next
		}
		return
	}
}

// HasListeners reports whether pattern has a registered listener.
func (r *router) HasListeners(pattern string) bool {
	r.lmu.RLock()
	defer r.lmu.RUnlock()
	return len(r.listeners[pattern]) > 0
}

// Dispatch matches sale against the registry and queues one delivery.
func (r *router) Dispatch(topic string, sale model.Sale) int {
	r.received.Add(1)

	var targets []target
	r.lmu.RLock()
	for _, pattern := range Patterns(sale.Tx) {
		regs := r.listeners[pattern]
		if len(regs) == 0 {
			continue
		}
		for _, reg := range regs {
			targets = append(targets, target{pattern: pattern, fn: reg.fn})
		}
	}
	r.lmu.RUnlock()

	if len(targets) == 0 {
		r.unmatched.Add(1)
		return 0
	}

	if !r.queue.Push(delivery{topic: topic, sale: sale, targets: targets}) {
		r.logger.Warn("router stopped, dropping event",
			"topic", topic,
			"tx_key", sale.Tx.TxKey,
		)
		return 0
	}

	return len(targets)
}

// Start begins delivering queued events. Listeners receive a context that
// carries ctx's values but is cancelled only by Stop, after the queue is drained.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	r.wg.Add(1)
	go r.deliverLoop()

	r.logger.Info("event router started", "queue_size", r.cfg.QueueSize)
	return nil
}

// Stop closes the queue, waits for queued deliveries to finish and cancels
// the listener context.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping event router")

	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped")
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out", "pending", r.queue.Len())
	}

	if r.cancel != nil {
		r.cancel()
	}

	return nil
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.lmu.RLock()
	n := 0
	for _, regs := range r.listeners {
		n += len(regs)
	}
	r.lmu.RUnlock()

	return RouterStats{
		EventsReceived: r.received.Load(),
		Unmatched:      r.unmatched.Load(),
		Deliveries:     r.deliveries.Load(),
		ListenerPanics: r.panics.Load(),
		Listeners:      n,
		Queue:          r.queue.Stats(),
	}
}

// deliverLoop is the single delivery goroutine.
func (r *router) deliverLoop() {
	defer r.wg.Done()

	for {
		d, ok := r.queue.Pop()
		if !ok {
			return
		}
		for _, t := range d.targets {
			r.invoke(t, Event{Topic: d.topic, Pattern: t.pattern, Sale: d.sale})
		}
	}
}

// invoke runs one listener, recovering a panic so later listeners still run.
func (r *router) invoke(t target, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.logger.Error("listener panicked",
				"pattern", t.pattern,
				"topic", ev.Topic,
				"panic", p,
			)
		}
	}()

	t.fn(r.ctx, ev)
	r.deliveries.Add(1)
}
