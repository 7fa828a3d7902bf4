package router

import (
	"context"

	"github.com/rickgao/salesfeed/internal/model"
)

// RouterConfig holds configuration for the event router.
type RouterConfig struct {
	QueueSize int // Initial delivery queue capacity. Default: 1000
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		QueueSize: 1000,
	}
}

// Event is one sale delivered to a listener.
type Event struct {
	Topic   string     // Topic the sale was subscribed under
	Pattern string     // Pattern the listener was registered for
	Sale    model.Sale // Decoded sale
}

// Listener handles one event. Listeners run on the router's delivery
// goroutine and must handle their own errors.
type Listener func(ctx context.Context, ev Event)

// RouterStats contains runtime statistics.
type RouterStats struct {
	EventsReceived int64 // Dispatch calls
	Unmatched      int64 // Events no listener was registered for
	Deliveries     int64 // Listener invocations completed
	ListenerPanics int64
	Listeners      int
	Queue          QueueStats
}

// delivery is one event with the listeners it matched, in invocation order.
type delivery struct {
	topic   string
	sale    model.Sale
	targets []target
}

type target struct {
	pattern string
	fn      Listener
}
