package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the sales table. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS sales (
		tx_key       TEXT PRIMARY KEY,
		topic        TEXT NOT NULL,
		source       TEXT NOT NULL,
		tx_type      TEXT NOT NULL,
		tx_id        TEXT NOT NULL,
		mint         TEXT NOT NULL,
		mint_name    TEXT NOT NULL,
		gross_amount NUMERIC NOT NULL,
		amount_unit  TEXT NOT NULL,
		price        NUMERIC NOT NULL,
		buyer        TEXT NOT NULL,
		seller       TEXT NOT NULL,
		rarity_rank  INTEGER,
		tx_at        TIMESTAMPTZ NOT NULL,
		received_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sales_topic_tx_at_idx ON sales (topic, tx_at DESC)`,
}

// Execer runs a statement. Satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema applies Schema in order.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
