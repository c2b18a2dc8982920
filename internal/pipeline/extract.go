package pipeline

import (
	"context"
	"fmt"

	"dataclean/internal/apperr"
)

const (
	extractLabel  = "提取"
	defaultPrefix = "数据"
)

func (s *Service) handleExtract(_ context.Context, r *run) apperr.Result {
	log, in, files, counts := r.log, r.intent, r.files, r.counts
	if len(files) == 0 {
		return apperr.Fail(apperr.FileNotFound, apperr.Details{Suggestion: "请先拖拽上传 Excel 或 CSV 文件"})
	}

	targets := findTargetSheets(in.Target, files)
	counts["candidates"] = len(targets)
	if len(targets) == 0 {
		return apperr.Fail(apperr.TargetNotFound, apperr.Details{
			Target:           in.Target,
			AvailableTargets: s.parser.Policy().TargetLabels(),
			AvailableSheets:  listAllSheets(files),
		})
	}

	prefix := in.Target
	if prefix == "" {
		prefix = defaultPrefix
	}

	results := []DerivedSheet{}
	for i, c := range targets {
		attrs := []any{"file", c.file.Name, "sheet", c.sheet.Name, "step", fmt.Sprintf("%d/%d", i+1, len(targets))}
		if c.file.Path == "" {
			log.Info("skipping sheet without path", attrs...)
			continue
		}
		full, err := s.readCandidate(c)
		if err != nil {
			log.Error("read sheet failed", append(attrs, "err", err)...)
			continue
		}
		if len(full.Rows) == 0 {
			log.Info("skipping empty sheet", attrs...)
			continue
		}

		name := derivedName(prefix, c.file, c.sheet.Name, outputJSON)
		derived, err := s.derive(c.file, full, i, name, outputJSON, extractLabel)
		if err != nil {
			log.Error("extract failed", append(attrs, "err", err)...)
			continue
		}
		results = append(results, DerivedSheet{
			FileName:  c.file.Name,
			SheetName: c.sheet.Name,
			NewFileID: derived.ID,
			RowCount:  len(full.Rows),
		})
		log.Info("sheet extracted", append(attrs, "rows", len(full.Rows), "header_row", full.HeaderRowUsed, "new_file", derived.ID)...)
	}

	counts["extracted"] = len(results)
	if len(results) == 0 {
		return apperr.Fail(apperr.AgentExecutionFailed, apperr.Details{Suggestion: "请检查文件是否可以正常打开，或尝试重新上传文件。"})
	}

	total := totalRows(results)
	counts["rows"] = total
	var message string
	if len(results) == 1 {
		message = fmt.Sprintf("已提取 %s 的 %d 行数据", results[0].SheetName, results[0].RowCount)
	} else {
		message = fmt.Sprintf("已成功提取 %d 个文件，共 %d 行数据：\n%s", len(results), total, breakdown(results))
	}
	return apperr.OK(message, map[string]any{
		"results":   results,
		"totalRows": total,
		"count":     len(results),
	})
}
