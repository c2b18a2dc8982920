package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dataclean/internal"
	"dataclean/internal/apperr"
	"dataclean/internal/intent"
	"dataclean/internal/metrics"
	"dataclean/internal/storage"
)

// Run executes command against every file currently stored.
func (s *Service) Run(ctx context.Context, command string) apperr.Result {
	files, err := s.db.ListFiles()
	if err != nil {
		return apperr.FromError(err, apperr.SystemUnknown)
	}
	return s.Execute(ctx, command, files)
}

// Execute parses command, applies the confidence bands and, when the intent
// is clear enough, runs its handler over files. Candidates are handled one
// at a time; derived files created before a later failure are kept.
func (s *Service) Execute(ctx context.Context, command string, files []internal.File) apperr.Result {
	return s.dispatch(ctx, command, s.parser.Parse(command), files)
}

// Extract runs extraction for an explicit target without parsing a command.
func (s *Service) Extract(ctx context.Context, target string, files []internal.File) apperr.Result {
	in := internal.Intent{Type: internal.IntentExtract, Target: target, Confidence: 1, Reason: "指定目标: " + target}
	return s.dispatch(ctx, "extract_data "+target, in, files)
}

// Analyze profiles every visible sheet of files.
func (s *Service) Analyze(ctx context.Context, label string, files []internal.File) apperr.Result {
	in := internal.Intent{Type: internal.IntentAnalyze, Confidence: 1, Reason: "指定分析: " + label}
	return s.dispatch(ctx, "analyze_data "+label, in, files)
}

func (s *Service) dispatch(ctx context.Context, command string, in internal.Intent, files []internal.File) apperr.Result {
	start := time.Now()
	traceID := uuid.NewString()
	log := s.logger.With("trace_id", traceID)

	band := s.parser.Policy().Band(in.Confidence)
	log.Info("intent parsed",
		"intent", in.Type,
		"target", in.Target,
		"confidence", in.Confidence,
		"band", band.String(),
		"reason", in.Reason,
	)

	counts := map[string]int{"files": len(files)}
	var res apperr.Result
	switch band {
	case intent.BandClarify:
		res = apperr.Result{Success: false, Message: intent.Clarification(in)}
	default:
		res = s.executeByIntent(ctx, &run{command: command, intent: in, files: files, counts: counts, log: log})
		if band == intent.BandDisclose && res.Success {
			res.Message += intent.Disclosure(in)
		}
	}

	elapsed := time.Since(start)
	metrics.RecordCommand(in.Type, band.String(), res.Success, elapsed)
	err := s.db.InsertRun(storage.RunRecord{
		TraceID: traceID,
		Command: command,
		Intent:  in,
		Success: res.Success,
		Timings: map[string]float64{"totalMs": float64(elapsed.Milliseconds())},
		Counts:  counts,
	})
	if err != nil {
		log.Warn("run not recorded", "err", err)
	}
	log.Info("command finished", "success", res.Success, "error_code", res.ErrorCode, "elapsed", elapsed)
	return res
}

func (s *Service) executeByIntent(ctx context.Context, r *run) apperr.Result {
	switch r.intent.Type {
	case internal.IntentExtract:
		return s.handleExtract(ctx, r)
	case internal.IntentAnalyze:
		return s.handleAnalyze(ctx, r)
	case internal.IntentTransform:
		return s.handleTransform(ctx, r)
	default:
		return apperr.Result{Success: false, Message: intent.UnsupportedMessage}
	}
}
