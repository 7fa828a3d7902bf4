// Package writer persists routed sales to PostgreSQL.
//
// The sale writer is a router listener backed by an unbounded buffer. Rows
// are batched and inserted with ON CONFLICT DO NOTHING, so a sale delivered
// twice (for example after a resubscribe) is written once.
package writer
