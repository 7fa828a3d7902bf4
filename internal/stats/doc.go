// Package stats fetches collection statistics over a one-shot
// request/response call and caches them per topic.
//
// Results are cached for DefaultTTL (5 minutes) under "stats:<topic>".
// Concurrent misses for the same topic share one call, and calls pass
// through a circuit breaker. Failed calls are never cached or retried.
package stats
