package connection

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry maps each subscribed topic to the request identifier of its live
// subscription, and back. Both indexes are updated under one lock so they
// never disagree.
type Registry struct {
	mu        sync.RWMutex
	byTopic   map[string]string // topic → request ID
	byRequest map[string]string // request ID → topic
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTopic:   make(map[string]string),
		byRequest: make(map[string]string),
	}
}

// Lookup returns the active request ID for topic.
func (r *Registry) Lookup(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTopic[topic]
	return id, ok
}

// Assign generates a fresh request ID for topic, replacing any previous one.
// The previous ID no longer resolves.
func (r *Registry) Assign(topic string) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byTopic[topic]; ok {
		delete(r.byRequest, old)
	}
	r.byTopic[topic] = id
	r.byRequest[id] = topic

	return id
}

// Resolve returns the topic whose live subscription carries request ID id.
func (r *Registry) Resolve(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topic, ok := r.byRequest[id]
	return topic, ok
}

// Topics returns all registered topics in sorted order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	topics := make([]string, 0, len(r.byTopic))
	for t := range r.byTopic {
		topics = append(topics, t)
	}
	r.mu.RUnlock()

	sort.Strings(topics)
	return topics
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTopic)
}
