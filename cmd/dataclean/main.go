package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dataclean/internal/config"
	"dataclean/internal/metrics"
	"dataclean/internal/pipeline"
	"dataclean/internal/storage"
)

var version = "dev"

// app is what every subcommand runs against. It is filled in by the root
// command's pre-run hook.
type app struct {
	cfg    config.Config
	db     *storage.DB
	svc    *pipeline.Service
	logger *slog.Logger
}

func main() {
	a := &app{}
	root := newRootCommand(a)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	cancel()
	if a.db != nil {
		_ = a.db.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dataclean",
		Short:         "Infer spreadsheet structure and extract data by plain-language command",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open()
		},
	}

	root.AddCommand(
		newImportCommand(a),
		newListCommand(a),
		newRemoveCommand(a),
		newFlowsCommand(a),
		newUnlinkCommand(a),
		newRunCommand(a),
		newAnalyzeCommand(a),
		newExportCommand(a),
		newRunsCommand(a),
		newMailFetchCommand(a),
		newMailIngestCommand(a),
		newMailListenCommand(a),
		newMCPServeCommand(a),
	)
	return root
}

func (a *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(os.Stderr)
	slog.SetDefault(a.logger)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	a.db = db
	a.svc, err = pipeline.FromConfig(db, cfg, a.logger)
	return err
}

// serveMetrics starts the metrics endpoint for long-running commands when
// METRICS_ADDR is set.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger); err != nil {
			a.logger.Error("metrics server failed", "err", err)
		}
	}()
}
