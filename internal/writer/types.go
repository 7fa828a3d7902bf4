package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// WriterConfig holds configuration for batch writers.
type WriterConfig struct {
	BatchSize     int           // Rows per insert batch. Default: 500
	FlushInterval time.Duration // Max time between flushes. Default: 1s
	BufferSize    int           // Initial input buffer capacity. Default: 1000
}

// DefaultWriterConfig returns default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// WriterMetrics contains runtime statistics.
type WriterMetrics struct {
	Received  int64 // Events accepted into the input buffer
	Dropped   int64 // Events rejected because the writer was stopped
	Inserts   int64 // Rows inserted
	Conflicts int64 // Rows skipped because the tx_key already existed
	Errors    int64 // Failed batches
	Flushes   int64
}

// BatchSender executes a pgx batch. Satisfied by *pgxpool.Pool and *pgx.Conn.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// saleRow is one row of the sales table.
type saleRow struct {
	TxKey       string
	Topic       string
	Source      string
	TxType      string
	TxID        string
	Mint        string
	MintName    string
	GrossAmount pgtype.Numeric
	AmountUnit  string
	Price       pgtype.Numeric // Whole units
	Buyer       string
	Seller      string
	RarityRank  *int
	TxAt        time.Time
	ReceivedAt  time.Time
}
