package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-geyser-stream/internal/geyser"
	"solana-geyser-stream/internal/ingestion"
	"solana-geyser-stream/internal/observability"
	"solana-geyser-stream/internal/storage"
	chstore "solana-geyser-stream/internal/storage/clickhouse"
	"solana-geyser-stream/internal/storage/memory"
	"solana-geyser-stream/internal/storage/migrations"
	pgstore "solana-geyser-stream/internal/storage/postgres"
)

func main() {
	endpoint := flag.String("endpoint", "", "Streaming service websocket URL")
	token := flag.String("token", "", "Access token for the streaming service")
	streamID := flag.String("stream-id", "default", "Logical stream name for the resume cursor")
	commitmentName := flag.String("commitment", "confirmed", "Commitment level: processed, confirmed, or finalized")
	accounts := flag.String("accounts", "", "Comma-separated account pubkeys to subscribe to")
	owners := flag.String("owners", "", "Comma-separated owner program pubkeys to subscribe to")
	withTransactions := flag.Bool("transactions", false, "Subscribe to non-vote transactions")
	withSlots := flag.Bool("slots", true, "Subscribe to slot progression")
	withBlockMeta := flag.Bool("block-meta", true, "Subscribe to block metadata")
	resume := flag.Bool("resume", true, "Resume from the stored cursor slot")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of databases")
	batchSize := flag.Int("batch-size", ingestion.DefaultBatchSize, "Columnar insert batch size")
	flushInterval := flag.Duration("flush-interval", ingestion.DefaultFlushInterval, "Partial batch flush interval")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *endpoint == "" {
		logger.Fatal("--endpoint is required")
	}

	commitment, err := geyser.ParseCommitment(*commitmentName)
	if err != nil {
		logger.Fatal("invalid commitment", zap.Error(err))
	}

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.Stringer("signal", sig))
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, forcing exit", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, options{
		endpoint:         *endpoint,
		token:            *token,
		streamID:         *streamID,
		commitment:       commitment,
		accounts:         splitList(*accounts),
		owners:           splitList(*owners),
		withTransactions: *withTransactions,
		withSlots:        *withSlots,
		withBlockMeta:    *withBlockMeta,
		resume:           *resume,
		postgresDSN:      *postgresDSN,
		clickhouseDSN:    *clickhouseDSN,
		useMemory:        *useMemory,
		batchSize:        *batchSize,
		flushInterval:    *flushInterval,
	})

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("ingestion failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

type options struct {
	endpoint         string
	token            string
	streamID         string
	commitment       geyser.CommitmentLevel
	accounts         []string
	owners           []string
	withTransactions bool
	withSlots        bool
	withBlockMeta    bool
	resume           bool
	postgresDSN      string
	clickhouseDSN    string
	useMemory        bool
	batchSize        int
	flushInterval    time.Duration
}

func run(ctx context.Context, logger *zap.Logger, opts options) error {
	if !opts.useMemory && opts.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Stores
	var accountStore storage.AccountSnapshotStore = memory.NewAccountSnapshotStore()
	var txStore storage.TransactionEventStore = memory.NewTransactionEventStore()
	var slotStore storage.SlotStatusStore = memory.NewSlotStatusStore()
	var blockStore storage.BlockMetaStore = memory.NewBlockMetaStore()
	var cursorStore storage.CursorStore = memory.NewCursorStore()

	if !opts.useMemory {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		accountStore = pgstore.NewAccountSnapshotStore(pool)
		txStore = pgstore.NewTransactionEventStore(pool)
		cursorStore = pgstore.NewCursorStore(pool)

		if opts.clickhouseDSN != "" {
			conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
			if err != nil {
				return fmt.Errorf("run clickhouse migrations: %w", err)
			}
			defer conn.Close()

			slotStore = chstore.NewSlotStatusStore(conn)
			blockStore = chstore.NewBlockMetaStore(conn)
		}
	}

	// Subscription
	builder := geyser.NewRequestBuilder()
	if len(opts.accounts) > 0 || len(opts.owners) > 0 {
		err := builder.AddAccountFilter("ingest", geyser.AccountFilter{
			Account: opts.accounts,
			Owner:   opts.owners,
		})
		if err != nil {
			return fmt.Errorf("account filter: %w", err)
		}
	}
	if opts.withTransactions {
		vote := false
		err := builder.AddTransactionFilter("ingest", geyser.TransactionFilter{Vote: &vote})
		if err != nil {
			return fmt.Errorf("transaction filter: %w", err)
		}
	}
	if opts.withSlots {
		if err := builder.AddSlotFilter("ingest", geyser.SlotFilter{}); err != nil {
			return fmt.Errorf("slot filter: %w", err)
		}
	}
	if opts.withBlockMeta {
		if err := builder.AddBlockMetaFilter("ingest", geyser.BlockMetaFilter{}); err != nil {
			return fmt.Errorf("block meta filter: %w", err)
		}
	}
	if builder.Empty() {
		return fmt.Errorf("nothing to subscribe to; enable at least one filter")
	}

	if opts.resume {
		cur, err := cursorStore.Load(ctx, opts.streamID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return fmt.Errorf("load resume cursor: %w", err)
		default:
			logger.Info("resuming from cursor", zap.Uint64("slot", cur.Slot))
			builder.SetFromSlot(&cur.Slot)
		}
	}

	obs := observability.NewStreamObserver(nil)
	client, err := geyser.Connect(ctx, geyser.Config{
		Endpoint: opts.endpoint,
		Token:    opts.token,
		Gate: geyser.NewGate(
			geyser.WithKindPolicy(geyser.KindSlot, geyser.MonotonicSlot),
			geyser.WithGateObserver(obs)),
		Observer: obs,
		Logger:   logger,
	}, builder, opts.commitment)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer client.Close()

	logger.Info("stream connected",
		zap.String("endpoint", opts.endpoint),
		zap.Stringer("commitment", opts.commitment))

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Updates:       client.Updates(),
		Accounts:      accountStore,
		Transactions:  txStore,
		Slots:         slotStore,
		BlockMeta:     blockStore,
		Cursors:       cursorStore,
		StreamID:      opts.streamID,
		BatchSize:     opts.batchSize,
		FlushInterval: opts.flushInterval,
		Logger:        logger,
	})

	if err := runner.Run(ctx); err != nil {
		return err
	}
	return client.Err()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serveMetrics(logger *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", zap.Error(err))
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
