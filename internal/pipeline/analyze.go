package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dataclean/internal"
	"dataclean/internal/apperr"
	"dataclean/internal/sheets"
)

// SheetReport is the analyze handler's view of one sheet.
type SheetReport struct {
	FileID        string                `json:"fileId"`
	FileName      string                `json:"fileName"`
	SheetName     string                `json:"sheetName"`
	RowCount      int                   `json:"rowCount"`
	Quality       int                   `json:"quality"`
	EmptyRatio    float64               `json:"emptyRatio"`
	DuplicateRows int                   `json:"duplicateRows"`
	ColumnTypes   []internal.ColumnType `json:"columnTypes"`
	SheetType     internal.SheetType    `json:"sheetType,omitempty"`
	Confidence    float64               `json:"confidence"`
	// Sampled is set when the file could not be reopened and the stored
	// sample rows were profiled instead.
	Sampled bool `json:"sampled,omitempty"`
}

func (s *Service) handleAnalyze(_ context.Context, r *run) apperr.Result {
	log, in, files, counts := r.log, r.intent, r.files, r.counts
	if len(files) == 0 {
		return apperr.Fail(apperr.FileNotFound, apperr.Details{Suggestion: "请先拖拽上传 Excel 或 CSV 文件"})
	}

	var targets []candidate
	if in.Target != "" {
		targets = findTargetSheets(in.Target, files)
		if len(targets) == 0 {
			return apperr.Fail(apperr.TargetNotFound, apperr.Details{
				Target:           in.Target,
				AvailableTargets: s.parser.Policy().TargetLabels(),
				AvailableSheets:  listAllSheets(files),
			})
		}
	} else {
		for _, f := range files {
			for _, sh := range f.Sheets {
				if !sh.Hidden {
					targets = append(targets, candidate{file: f, sheet: sh})
				}
			}
		}
	}

	reports := make([]SheetReport, 0, len(targets))
	for _, c := range targets {
		reports = append(reports, s.reportSheet(log, c))
	}
	counts["analyzed"] = len(reports)
	if len(reports) == 0 {
		return apperr.Fail(apperr.DataEmpty, apperr.Details{SheetName: "所有文件"})
	}

	lines := make([]string, len(reports))
	for i, r := range reports {
		line := fmt.Sprintf("- %s/%s: %d 行，质量 %d 分，空值率 %.1f%%，重复行 %d",
			r.FileName, r.SheetName, r.RowCount, r.Quality, r.EmptyRatio*100, r.DuplicateRows)
		if r.SheetType != "" {
			line += fmt.Sprintf("，结构 %s (置信度 %.0f%%)", r.SheetType, r.Confidence*100)
		}
		lines[i] = line
	}
	message := fmt.Sprintf("数据分析结果（%d 个工作表）：\n%s", len(reports), strings.Join(lines, "\n"))
	return apperr.OK(message, map[string]any{"sheets": reports, "count": len(reports)})
}

// reportSheet profiles the full sheet when its file can be reopened and the
// stored samples otherwise.
func (s *Service) reportSheet(log *slog.Logger, c candidate) SheetReport {
	r := SheetReport{
		FileID:    c.file.ID,
		FileName:  c.file.Name,
		SheetName: c.sheet.Name,
		RowCount:  c.sheet.RowCount,
	}
	if a := c.sheet.StructureAnalysis; a != nil && a.Status == internal.StatusCompleted {
		r.SheetType = a.SheetType
		r.Confidence = a.Confidence
	}

	headers := c.sheet.Headers
	values := c.sheet.SampleRows
	r.Sampled = true
	if c.file.Path != "" {
		full, err := s.readCandidate(c)
		if err == nil {
			headers = full.Headers
			values = sheets.RowValues(full.Headers, full.Rows)
			r.RowCount = len(full.Rows)
			r.Sampled = false
		} else {
			log.Warn("profiling samples only", "file", c.file.Name, "sheet", c.sheet.Name, "err", err)
		}
	}

	st := sheets.Profile(values)
	r.Quality = st.Quality
	r.EmptyRatio = st.EmptyRatio()
	r.DuplicateRows = st.DuplicateRows
	r.ColumnTypes = sheets.ColumnTypes(headers, values)
	return r
}
