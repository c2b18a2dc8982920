// Package metrics exposes Prometheus counters for analysis, extraction, mail
// fetches and text-generation calls, and the /metrics endpoint serving them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dataclean/internal"
	"dataclean/internal/llm"
)

var (
	// commandsTotal counts executed commands.
	// Labels: intent (extract, analyze, transform, unknown), band (execute, disclose, clarify), outcome (ok, error)
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataclean",
		Subsystem: "agent",
		Name:      "commands_total",
		Help:      "Commands handled by intent, confidence band and outcome",
	}, []string{"intent", "band", "outcome"})

	commandSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dataclean",
		Subsystem: "agent",
		Name:      "command_seconds",
		Help:      "End-to-end command latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"intent"})

	extractedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dataclean",
		Subsystem: "agent",
		Name:      "extracted_rows_total",
		Help:      "Rows written to derived files",
	})

	// sheetAnalysesTotal counts per-sheet analysis outcomes.
	// Labels: source (ai, heuristic), status (completed, failed)
	sheetAnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataclean",
		Subsystem: "analysis",
		Name:      "sheets_total",
		Help:      "Sheet structure analyses by source and final status",
	}, []string{"source", "status"})

	// mailMessagesTotal counts messages pulled from a mailbox.
	// Labels: provider (imap, gmail)
	mailMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataclean",
		Subsystem: "mail",
		Name:      "messages_total",
		Help:      "Messages fetched per provider",
	}, []string{"provider"})

	// llmCallsTotal counts text-generation calls.
	// Labels: provider, status (ok, error)
	llmCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataclean",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Text-generation calls by provider and status",
	}, []string{"provider", "status"})

	llmLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dataclean",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Text-generation call latency",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})
)

func RecordCommand(intent internal.IntentType, band string, ok bool, elapsed time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	commandsTotal.WithLabelValues(string(intent), band, outcome).Inc()
	commandSeconds.WithLabelValues(string(intent)).Observe(elapsed.Seconds())
}

func RecordExtractedRows(n int) {
	if n > 0 {
		extractedRowsTotal.Add(float64(n))
	}
}

func RecordSheetAnalysis(source string, status internal.AnalysisStatus) {
	sheetAnalysesTotal.WithLabelValues(source, string(status)).Inc()
}

func RecordMailFetched(provider string, n int) {
	if n > 0 {
		mailMessagesTotal.WithLabelValues(provider).Add(float64(n))
	}
}

// instrumented wraps a provider with call counts and latency.
type instrumented struct {
	next llm.Provider
}

// InstrumentProvider returns p with metrics attached. Nil stays nil.
func InstrumentProvider(p llm.Provider) llm.Provider {
	if p == nil {
		return nil
	}
	return instrumented{next: p}
}

func (i instrumented) Name() string { return i.next.Name() }

func (i instrumented) Complete(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()
	out, err := i.next.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmCallsTotal.WithLabelValues(i.next.Name(), status).Inc()
	llmLatencySeconds.WithLabelValues(i.next.Name()).Observe(time.Since(start).Seconds())
	return out, err
}

func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve runs the metrics endpoint until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
