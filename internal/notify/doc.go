// Package notify posts routed sales to a chat webhook as embeds.
//
// A Notifier is registered as a router listener. When a stats fetcher is
// attached, each message also carries the collection's floor and listing
// count; a failed stats lookup never blocks the post.
package notify
