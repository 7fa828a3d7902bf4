// Package router delivers decoded sales to listeners registered by pattern.
//
// A sale from source S with type T matches, in firing order:
//
//	*        every sale
//	S:T      exact source and type
//	S:*      any type from S
//	*:T      T from any source
//	T        bare type
//
// Dispatch only queues; a single goroutine invokes listeners in match order,
// then registration order.
package router
