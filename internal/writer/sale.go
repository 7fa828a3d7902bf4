package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/rickgao/salesfeed/internal/router"
)

const insertSale = `
	INSERT INTO sales (tx_key, topic, source, tx_type, tx_id, mint, mint_name,
		gross_amount, amount_unit, price, buyer, seller, rarity_rank, tx_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (tx_key) DO NOTHING
`

// SaleWriter persists routed sales to the sales table.
//
// Register Listener with the router; events are queued on an unbounded
// queue so the router's delivery goroutine never waits on the database.
type SaleWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the router listener
	input *router.Queue[router.Event]

	db  BatchSender
	now func() time.Time

	// Batching
	batch       []saleRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics, guarded by batchMu
	metrics WriterMetrics
}

// NewSaleWriter creates a new SaleWriter.
func NewSaleWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *SaleWriter {
	defaults := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SaleWriter{
		cfg:    cfg,
		input:  router.NewQueue[router.Event](cfg.BufferSize),
		db:     db,
		now:    time.Now,
		logger: logger.With("component", "sale_writer"),
		batch:  make([]saleRow, 0, cfg.BatchSize),
	}
}

// Listener returns the router listener that feeds this writer.
func (w *SaleWriter) Listener() router.Listener {
	return func(_ context.Context, ev router.Event) {
		ok := w.input.Push(ev)

		w.batchMu.Lock()
		if ok {
			w.metrics.Received++
		} else {
			w.metrics.Dropped++
		}
		w.batchMu.Unlock()
	}
}

// Start begins consuming events and writing to the database. Cancelling ctx
// does not abort in-flight inserts; Stop ends the writer.
func (w *SaleWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("sale writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, drains whatever is still queued and flushes it
// using ctx.
func (w *SaleWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping sale writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("sale writer stop timed out")
		return ctx.Err()
	}

	for _, ev := range w.input.Drain(0) {
		w.append(w.transform(ev))
	}
	w.flush(ctx)

	w.logger.Info("sale writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *SaleWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *SaleWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		ev, ok := w.input.TryPop()
		if !ok {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		if w.append(w.transform(ev)) {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *SaleWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// append adds a row and reports whether the batch is full.
func (w *SaleWriter) append(row saleRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a routed sale to a saleRow.
func (w *SaleWriter) transform(ev router.Event) saleRow {
	tx, mint := ev.Sale.Tx, ev.Sale.Mint

	row := saleRow{
		TxKey:       tx.TxKey,
		Topic:       ev.Topic,
		Source:      tx.Source,
		TxType:      tx.TxType,
		TxID:        tx.TxID,
		Mint:        mint.OnchainID,
		MintName:    mint.Name,
		GrossAmount: numeric(tx.GrossAmount),
		AmountUnit:  tx.GrossAmountUnit,
		Price:       numeric(tx.Amount()),
		Buyer:       tx.BuyerID,
		Seller:      tx.SellerID,
		TxAt:        tx.TxAt,
		ReceivedAt:  w.now(),
	}
	if rank, ok := mint.Rank(); ok {
		row.RarityRank = &rank
	}
	return row
}

// flush writes the current batch to the database.
func (w *SaleWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]saleRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed sales",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *SaleWriter) batchInsert(ctx context.Context, rows []saleRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSale,
			r.TxKey, r.Topic, r.Source, r.TxType, r.TxID, r.Mint, r.MintName,
			r.GrossAmount, r.AmountUnit, r.Price, r.Buyer, r.Seller, r.RarityRank,
			r.TxAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
