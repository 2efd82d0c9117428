package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"solana-geyser-stream/internal/geyser"
)

// stream subscribes to the streaming service and tails admitted updates as
// JSON lines on stdout. Useful for eyeballing a subscription before wiring
// it into ingestion.
func main() {
	endpoint := flag.String("endpoint", "", "Streaming service websocket URL")
	token := flag.String("token", "", "Access token")
	commitmentName := flag.String("commitment", "confirmed", "Commitment level: processed, confirmed, or finalized")
	accounts := flag.String("accounts", "", "Comma-separated account pubkeys to subscribe to")
	owners := flag.String("owners", "", "Comma-separated owner program pubkeys to subscribe to")
	withTransactions := flag.Bool("transactions", false, "Subscribe to non-vote transactions")
	withSlots := flag.Bool("slots", false, "Subscribe to slot progression")
	withBlocks := flag.Bool("blocks", false, "Subscribe to full blocks")
	withBlockMeta := flag.Bool("block-meta", false, "Subscribe to block metadata")
	withEntries := flag.Bool("entries", false, "Subscribe to ledger entries")
	fromSlot := flag.Uint64("from-slot", 0, "Replay from this slot (0 disables)")
	limit := flag.Int("limit", 0, "Stop after this many updates (0 runs forever)")

	flag.Parse()

	logger, err := zap.NewDevelopment()
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

	builder := geyser.NewRequestBuilder()
	if lists := splitList(*accounts); len(lists) > 0 || len(splitList(*owners)) > 0 {
		err := builder.AddAccountFilter("tail", geyser.AccountFilter{
			Account: lists,
			Owner:   splitList(*owners),
		})
		if err != nil {
			logger.Fatal("account filter", zap.Error(err))
		}
	}
	if *withTransactions {
		vote := false
		if err := builder.AddTransactionFilter("tail", geyser.TransactionFilter{Vote: &vote}); err != nil {
			logger.Fatal("transaction filter", zap.Error(err))
		}
	}
	if *withSlots {
		if err := builder.AddSlotFilter("tail", geyser.SlotFilter{}); err != nil {
			logger.Fatal("slot filter", zap.Error(err))
		}
	}
	if *withBlocks {
		if err := builder.AddBlockFilter("tail", geyser.BlockFilter{}); err != nil {
			logger.Fatal("block filter", zap.Error(err))
		}
	}
	if *withBlockMeta {
		if err := builder.AddBlockMetaFilter("tail", geyser.BlockMetaFilter{}); err != nil {
			logger.Fatal("block meta filter", zap.Error(err))
		}
	}
	if *withEntries {
		if err := builder.AddEntryFilter("tail", geyser.EntryFilter{}); err != nil {
			logger.Fatal("entry filter", zap.Error(err))
		}
	}
	if *fromSlot > 0 {
		builder.SetFromSlot(fromSlot)
	}
	if builder.Empty() {
		logger.Fatal("nothing to subscribe to; enable at least one filter")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := geyser.Connect(ctx, geyser.Config{
		Endpoint: *endpoint,
		Token:    *token,
		Logger:   logger,
	}, builder, commitment)
	if err != nil {
		logger.Fatal("connect stream", zap.Error(err))
	}
	defer client.Close()

	enc := json.NewEncoder(os.Stdout)
	seen := 0

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted",
				zap.Int("updates", seen),
				zap.Uint64("decode_failures", client.DecodeFailures()))
			return

		case u, ok := <-client.Updates():
			if !ok {
				if err := client.Err(); err != nil {
					logger.Fatal("stream terminated", zap.Error(err))
				}
				return
			}
			if err := enc.Encode(u); err != nil {
				logger.Fatal("encode update", zap.Error(err))
			}
			seen++
			if *limit > 0 && seen >= *limit {
				logger.Info("limit reached", zap.Int("updates", seen))
				return
			}
		}
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
