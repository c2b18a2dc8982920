// Package pipeline runs user commands against the files on the canvas:
// parse the intent, decide whether to act, then extract, analyze or
// transform sheets into derived files linked back to their sources.
package pipeline

import (
	"errors"
	"log/slog"
	"path/filepath"

	"dataclean/internal/analysis"
	"dataclean/internal/config"
	"dataclean/internal/intent"
	"dataclean/internal/llm"
	"dataclean/internal/metrics"
	"dataclean/internal/sheets"
	"dataclean/internal/storage"
)

const (
	derivedOffsetX = 150
	derivedStepY   = 100
	cardWidth      = 500
	cardHeight     = 350

	gridColumns = 3
	gridOriginX = 100
	gridOriginY = 100
	gridStepX   = 600
	gridStepY   = 450

	// rawGridRows bounds the grid kept on an imported sheet for inference.
	rawGridRows = 200
)

// Options carries the collaborators a Service can be given. Zero fields get
// local defaults: heuristic-only analysis and the default intent policy.
type Options struct {
	Analyzer *analysis.Analyzer
	Parser   *intent.Parser
	Reader   *sheets.Reader
	Writer   *sheets.Writer
	Logger   *slog.Logger
}

type Service struct {
	db       *storage.DB
	cfg      config.Config
	analyzer *analysis.Analyzer
	parser   *intent.Parser
	reader   *sheets.Reader
	writer   *sheets.Writer
	logger   *slog.Logger
}

func NewService(db *storage.DB, cfg config.Config, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Analyzer == nil {
		opts.Analyzer = analysis.New(analysis.Config{
			PreviewRows: cfg.AnalysisPreviewRows,
			Logger:      opts.Logger,
		})
	}
	if opts.Parser == nil {
		opts.Parser = intent.NewParser(intent.DefaultPolicy())
	}
	if opts.Reader == nil {
		opts.Reader = sheets.NewReader()
	}
	if opts.Writer == nil {
		opts.Writer = sheets.NewWriter()
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = 100
	}
	return &Service{
		db:       db,
		cfg:      cfg,
		analyzer: opts.Analyzer,
		parser:   opts.Parser,
		reader:   opts.Reader,
		writer:   opts.Writer,
		logger:   opts.Logger,
	}
}

// FromConfig builds a Service the way the binaries run it: the intent
// policy from config, and a metered text-generation provider when one is
// configured. A provider without an API key falls back to local analysis.
func FromConfig(db *storage.DB, cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := intent.PolicyFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	var provider llm.Provider
	if cfg.AIEnabled() {
		client, err := llm.New(cfg)
		switch {
		case errors.Is(err, llm.ErrNoAPIKey):
			logger.Warn("no API key, using local analysis", "provider", cfg.AIProvider)
		case err != nil:
			return nil, err
		default:
			provider = metrics.InstrumentProvider(client)
			logger.Info("structure analysis provider", "provider", client.Name())
		}
	}

	return NewService(db, cfg, Options{
		Analyzer: analysis.New(analysis.Config{
			Provider:    provider,
			PreviewRows: cfg.AnalysisPreviewRows,
			MaxTokens:   cfg.AIMaxTokens,
			Temperature: cfg.AITemperature,
			Logger:      logger,
		}),
		Parser: intent.NewParser(policy),
		Logger: logger,
	}), nil
}

// Policy is the banding policy commands are judged against.
func (s *Service) Policy() intent.Policy {
	return s.parser.Policy()
}
