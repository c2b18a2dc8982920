package pipeline

import (
	"context"
	"fmt"
	"strings"

	"dataclean/internal"
	"dataclean/internal/apperr"
)

const transformLabel = "转换"

// formatFromCommand picks the requested output format, JSON unless the
// command names CSV or Excel.
func formatFromCommand(command string) outputFormat {
	lower := strings.ToLower(command)
	switch {
	case strings.Contains(lower, "csv"):
		return outputCSV
	case strings.Contains(lower, "xlsx"), strings.Contains(lower, "excel"), strings.Contains(command, "表格"):
		return outputXLSX
	default:
		return outputJSON
	}
}

// largestSheets returns each file's biggest visible sheet.
func largestSheets(files []internal.File) []candidate {
	out := []candidate{}
	for _, f := range files {
		best := -1
		for i, sh := range f.Sheets {
			if sh.Hidden {
				continue
			}
			if best < 0 || sh.RowCount > f.Sheets[best].RowCount {
				best = i
			}
		}
		if best >= 0 {
			out = append(out, candidate{file: f, sheet: f.Sheets[best]})
		}
	}
	return out
}

func (s *Service) handleTransform(_ context.Context, r *run) apperr.Result {
	log, in, files, counts := r.log, r.intent, r.files, r.counts
	if len(files) == 0 {
		return apperr.Fail(apperr.FileNotFound, apperr.Details{Suggestion: "请先拖拽上传 Excel 或 CSV 文件"})
	}
	format := formatFromCommand(r.command)

	var targets []candidate
	if in.Target != "" {
		targets = findTargetSheets(in.Target, files)
	} else {
		targets = largestSheets(files)
	}
	counts["candidates"] = len(targets)
	if len(targets) == 0 {
		return apperr.Fail(apperr.TargetNotFound, apperr.Details{
			Target:           in.Target,
			AvailableTargets: s.parser.Policy().TargetLabels(),
			AvailableSheets:  listAllSheets(files),
		})
	}

	results := []DerivedSheet{}
	for i, c := range targets {
		if c.file.Path == "" {
			log.Info("skipping sheet without path", "file", c.file.Name, "sheet", c.sheet.Name)
			continue
		}
		full, err := s.readCandidate(c)
		if err != nil {
			log.Error("read sheet failed", "file", c.file.Name, "sheet", c.sheet.Name, "err", err)
			continue
		}
		if len(full.Rows) == 0 {
			continue
		}
		name := derivedName("", c.file, c.sheet.Name, format)
		derived, err := s.derive(c.file, full, i, name, format, transformLabel)
		if err != nil {
			log.Error("transform failed", "file", c.file.Name, "sheet", c.sheet.Name, "err", err)
			continue
		}
		results = append(results, DerivedSheet{
			FileName:  c.file.Name,
			SheetName: c.sheet.Name,
			NewFileID: derived.ID,
			RowCount:  len(full.Rows),
		})
	}

	counts["converted"] = len(results)
	if len(results) == 0 {
		return apperr.Fail(apperr.AgentExecutionFailed, apperr.Details{Suggestion: "请检查文件是否可以正常打开，或尝试重新上传文件。"})
	}
	total := totalRows(results)
	counts["rows"] = total
	label := strings.ToUpper(string(format))
	var message string
	if len(results) == 1 {
		message = fmt.Sprintf("已将 %s/%s 转换为 %s，共 %d 行数据", results[0].FileName, results[0].SheetName, label, results[0].RowCount)
	} else {
		message = fmt.Sprintf("已转换 %d 个工作表为 %s，共 %d 行数据：\n%s", len(results), label, total, breakdown(results))
	}
	return apperr.OK(message, map[string]any{
		"results":   results,
		"totalRows": total,
		"count":     len(results),
		"format":    format,
	})
}
