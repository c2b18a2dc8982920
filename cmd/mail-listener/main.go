// Command mail-listener polls the configured mailbox and imports
// spreadsheet attachments onto the canvas.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dataclean/internal/config"
	"dataclean/internal/listener"
	"dataclean/internal/metrics"
	"dataclean/internal/pipeline"
	"dataclean/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logger := cfg.NewLogger(os.Stderr)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	svc, err := pipeline.FromConfig(db, cfg, logger)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	must(listener.NewService(db, cfg, svc, nil, logger).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
