// Package model defines shared data types used across the sales feed.
//
// Conventions:
//   - Amounts: shopspring decimal in the smallest on-chain unit as received (e.g. lamports)
//   - Timestamps: time.Time in UTC, decoded from epoch milliseconds
//   - Topics: collection slugs as plain strings
package model
