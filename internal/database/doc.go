// Package database provides the PostgreSQL connection pool and the schema
// of the sales table written by the sale writer.
package database
