// Package cache provides a bounded, time-boxed memoization cache for expensive lookups.
//
// Entries carry their own absolute expiry. A read after expiry is a miss and
// removes the entry; capacity is bounded by least-recently-used eviction.
package cache
