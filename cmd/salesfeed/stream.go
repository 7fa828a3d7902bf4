package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/salesfeed/internal/config"
	"github.com/rickgao/salesfeed/internal/connection"
	"github.com/rickgao/salesfeed/internal/router"
	"github.com/rickgao/salesfeed/internal/stats"
)

// streamLine is one printed sale.
type streamLine struct {
	Topic    string `json:"topic"`
	Pattern  string `json:"pattern"`
	TxKey    string `json:"tx_key"`
	Source   string `json:"source"`
	TxType   string `json:"tx_type"`
	Mint     string `json:"mint"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Unit     string `json:"unit"`
	TxAt     string `json:"tx_at"`
	Floor    string `json:"floor,omitempty"`
	Listed   *int   `json:"listed,omitempty"`
	StatsErr string `json:"stats_error,omitempty"`
}

func streamCmd() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Print live sales to stdout as JSON lines",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "topic",
				Usage: "topic to subscribe to (repeatable, overrides config topics)",
			},
			&cli.StringFlag{
				Name:  "pattern",
				Value: router.AnyTransaction,
				Usage: "router pattern to print, e.g. TENSORSWAP:SALE_BUY_NOW",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "attach collection stats to each line",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "stop after this long (0 runs until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			logger, err := newLogger(c)
			if err != nil {
				return err
			}

			cfg, err := config.LoadAndValidate(c.String("config"))
			if err != nil {
				return err
			}
			topics := cfg.Topics
			if t := c.StringSlice("topic"); len(t) > 0 {
				topics = t
			}
			if len(topics) == 0 {
				return errors.New("no topics: set topics in config or pass --topic")
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if d := c.Duration("duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			var fetcher *stats.Client
			if c.Bool("stats") {
				store, err := stats.NewMemoryStore(cfg.Stats.CacheSize)
				if err != nil {
					return err
				}
				fetcher = stats.NewClient(cfg.API.HTTPURL, cfg.API.APIKey,
					stats.WithLogger(logger),
					stats.WithTimeout(cfg.API.Timeout),
					stats.WithAPIKeyHeader(cfg.API.APIKeyHeader),
					stats.WithTTL(cfg.Stats.TTL),
					stats.WithStore(store),
				)
			}

			r := router.NewRouter(router.DefaultRouterConfig(), logger)
			r.On(c.String("pattern"), printListener(os.Stdout, fetcher))
			if err := r.Start(ctx); err != nil {
				return err
			}

			session := connection.NewSession(sessionConfig(cfg), r, logger)
			if err := session.Connect(ctx); err != nil {
				return fmt.Errorf("connect session: %w", err)
			}
			if err := session.Subscribe(topics...); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}

			logger.Info("streaming sales", "topics", topics, "pattern", c.String("pattern"))
			<-ctx.Done()

			session.Close()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			r.Stop(stopCtx)

			ss := session.Stats()
			logger.Info("stream stopped",
				"events", ss.EventsRouted,
				"parse_errors", ss.ParseErrors,
				"reconnects", ss.Reconnects,
			)
			return nil
		},
	}
}

// printListener writes each event as one JSON line. fetcher may be nil.
func printListener(out io.Writer, fetcher *stats.Client) router.Listener {
	var mu sync.Mutex
	enc := json.NewEncoder(out)

	return func(ctx context.Context, ev router.Event) {
		tx, mint := ev.Sale.Tx, ev.Sale.Mint
		line := streamLine{
			Topic:   ev.Topic,
			Pattern: ev.Pattern,
			TxKey:   tx.TxKey,
			Source:  tx.Source,
			TxType:  tx.TxType,
			Mint:    mint.OnchainID,
			Name:    mint.Name,
			Price:   tx.Amount().String(),
			Unit:    tx.AmountUnit(),
			TxAt:    tx.TxAt.UTC().Format(time.RFC3339),
		}

		if fetcher != nil {
			s, err := fetcher.FetchStats(ctx, ev.Topic)
			if err != nil {
				line.StatsErr = err.Error()
			} else {
				if floor, ok := s.FloorPrice(); ok {
					line.Floor = floor.String()
				}
				listed := s.NumListed
				line.Listed = &listed
			}
		}

		mu.Lock()
		defer mu.Unlock()
		enc.Encode(line)
	}
}
