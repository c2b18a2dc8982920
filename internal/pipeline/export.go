package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dataclean/internal"
	"dataclean/internal/apperr"
	"dataclean/internal/util"
)

// ExportResult is the data of a successful Export.
type ExportResult struct {
	FileID   string `json:"fileId"`
	Path     string `json:"path"`
	Format   string `json:"format"`
	RowCount int    `json:"rowCount"`
}

// Export re-reads a file's active sheet and writes it as format. An empty
// outputPath lands in the export directory.
func (s *Service) Export(fileID, format, outputPath string) apperr.Result {
	out, ok := parseOutputFormat(format)
	if !ok {
		return apperr.Fail(apperr.FileFormatInvalid, apperr.Details{Format: format})
	}
	f, err := s.db.GetFile(fileID)
	if err != nil {
		return apperr.FromError(err, apperr.SystemUnknown)
	}
	if f == nil {
		return apperr.Fail(apperr.FileNotFound, apperr.Details{FileName: fileID})
	}
	if f.Path == "" {
		return apperr.Fail(apperr.FilePathMissing, apperr.Details{})
	}
	if _, err := os.Stat(f.Path); err != nil {
		return apperr.Fail(apperr.FileNotFound, apperr.Details{FileName: f.Name})
	}

	sheet, ok := activeSheet(*f)
	if !ok {
		return apperr.Fail(apperr.SheetNotFound, apperr.Details{SheetName: f.ActiveSheet, AvailableSheets: listAllSheets([]internal.File{*f})})
	}
	full, err := s.readCandidate(candidate{file: *f, sheet: sheet})
	if err != nil {
		s.logger.Error("export read failed", "file", f.Name, "sheet", sheet.Name, "err", err)
		return apperr.Fail(apperr.FileReadError, apperr.Details{FileName: f.Name})
	}
	if len(full.Rows) == 0 {
		return apperr.Fail(apperr.DataEmpty, apperr.Details{SheetName: sheet.Name})
	}

	if strings.TrimSpace(outputPath) == "" {
		outputPath = filepath.Join(s.cfg.ExportDir, fmt.Sprintf("%s_%s.%s", util.TrimExt(f.Name), util.SanitizeName(sheet.Name), out))
	}
	written, err := s.write(out, full, outputPath)
	if err != nil {
		return apperr.FromError(err, apperr.AgentExecutionFailed)
	}
	s.logger.Info("file exported", "file", f.Name, "sheet", sheet.Name, "rows", len(full.Rows), "path", written.Path)
	return apperr.OK(fmt.Sprintf("已导出 %d 行数据到 %s", len(full.Rows), written.Path), ExportResult{
		FileID:   f.ID,
		Path:     written.Path,
		Format:   string(out),
		RowCount: len(full.Rows),
	})
}

func activeSheet(f internal.File) (internal.Sheet, bool) {
	for _, sh := range f.Sheets {
		if sh.Name == f.ActiveSheet {
			return sh, true
		}
	}
	if f.ActiveSheet == "" && len(f.Sheets) > 0 {
		return f.Sheets[0], true
	}
	return internal.Sheet{}, false
}
