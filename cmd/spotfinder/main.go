package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SpotFinder/internal/config"
	"SpotFinder/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	root := rootCommand(&cfg, logger)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
