package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"solana-geyser-stream/internal/geyser"
)

// query issues a single unary call against the streaming service's RPC
// surface and prints the result.
func main() {
	endpoint := flag.String("endpoint", "", "RPC HTTP URL")
	token := flag.String("token", "", "Access token")
	commitmentName := flag.String("commitment", "confirmed", "Commitment level: processed, confirmed, or finalized")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-call timeout")
	blockhash := flag.String("blockhash", "", "Blockhash for the is-blockhash-valid operation")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <operation>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Operations: slot, block-height, latest-blockhash, is-blockhash-valid, health, version")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *endpoint == "" || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	commitment, err := geyser.ParseCommitment(*commitmentName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid commitment: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := geyser.NewQueryClient(*endpoint, *token, geyser.WithQueryTimeout(*timeout))

	switch op := flag.Arg(0); op {
	case "slot":
		slot, err := client.GetSlot(ctx, commitment)
		exitOn(err)
		fmt.Println(slot)

	case "block-height":
		height, err := client.GetBlockHeight(ctx, commitment)
		exitOn(err)
		fmt.Println(height)

	case "latest-blockhash":
		bh, err := client.GetLatestBlockhash(ctx, commitment)
		exitOn(err)
		fmt.Printf("blockhash: %s\nlast valid block height: %d\nslot: %d\n",
			bh.Blockhash, bh.LastValidBlockHeight, bh.Slot)

	case "is-blockhash-valid":
		if *blockhash == "" {
			fmt.Fprintln(os.Stderr, "--blockhash is required for is-blockhash-valid")
			os.Exit(2)
		}
		valid, err := client.IsBlockhashValid(ctx, *blockhash, commitment)
		exitOn(err)
		fmt.Println(valid)

	case "health":
		status, err := client.GetHealth(ctx)
		exitOn(err)
		fmt.Println(status)

	case "version":
		version, err := client.GetVersion(ctx)
		exitOn(err)
		fmt.Println(version)

	default:
		fmt.Fprintf(os.Stderr, "unknown operation %q\n", op)
		flag.Usage()
		os.Exit(2)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
