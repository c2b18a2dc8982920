// Package listener polls a mailbox, imports spreadsheet attachments onto
// the canvas and optionally runs a follow-up command on them.
package listener

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"dataclean/internal/apperr"
	"dataclean/internal/config"
	"dataclean/internal/connectors"
	"dataclean/internal/pipeline"
	"dataclean/internal/storage"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	pipeline  *pipeline.Service
	connector connectors.MailConnector
	logger    *slog.Logger
}

// CycleResult summarizes one poll.
type CycleResult struct {
	Fetched  int
	Ingested int
	Imported int
	// Command is the follow-up result, nil when no command ran.
	Command *apperr.Result
}

// NewService wires a listener. A nil connector is built from the
// configured provider on the first cycle.
func NewService(db *storage.DB, cfg config.Config, svc *pipeline.Service, connector connectors.MailConnector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, cfg: cfg, pipeline: svc, connector: connector, logger: logger}
}

func (s *Service) provider() string {
	return strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
}

// Run polls until ctx is done. Cycle errors are logged, not fatal.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("mail listener started", "provider", s.provider(), "mailbox", s.cfg.MailListenerLabel, "interval", interval)
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("listener cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("mail listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle fetches new mail, ingests pending messages and, when anything
// was imported, runs the configured command over the canvas.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	if s.connector == nil {
		c, err := connectors.New(s.cfg, s.provider())
		if err != nil {
			return CycleResult{}, err
		}
		s.connector = c
	}

	fetcher := connectors.NewFetcher(s.db, s.cfg.RawMailDir, s.connector, s.logger)
	fetched, err := fetcher.Fetch(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}
	emails, files, err := s.pipeline.IngestPending(ctx, s.cfg.MailListenerProcessBatch, s.provider())
	if err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Fetched: fetched.Fetched, Ingested: emails, Imported: files}

	if cmd := strings.TrimSpace(s.cfg.MailListenerCommand); cmd != "" && files > 0 {
		out := s.pipeline.Run(ctx, cmd)
		res.Command = &out
		if !out.Success {
			s.logger.Warn("listener command failed", "command", cmd, "code", out.ErrorCode, "message", out.Message)
		}
	}

	s.logger.Info("listener cycle done",
		"provider", s.provider(),
		"fetched", res.Fetched,
		"new", fetched.New,
		"ingested", res.Ingested,
		"imported", res.Imported,
	)
	return res, nil
}
