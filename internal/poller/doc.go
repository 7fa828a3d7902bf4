// Package poller keeps collection stats fresh.
//
// On every interval the poller refreshes the stats of each subscribed topic,
// with bounded concurrency, so listeners enriching sales hit a warm cache.
package poller
