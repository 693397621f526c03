// Consensus
//
// Command-line front end and server for the negotiation engine.
//
// Usage:
//
//	go run ./cmd/consensus negotiate scenario.yaml --oracle offline
//	go run ./cmd/consensus serve --grpc-addr :50051 --http-addr :8080
//	go build -o consensus ./cmd/consensus && ./consensus --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
