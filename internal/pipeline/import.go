package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"dataclean/internal"
	"dataclean/internal/analysis"
	"dataclean/internal/apperr"
	"dataclean/internal/metrics"
	"dataclean/internal/sheets"
)

// Import loads path as a new file card: per-sheet headers, counts, types and
// samples, then a structure analysis over every sheet. New cards are laid out
// three to a row.
func (s *Service) Import(ctx context.Context, path string) (internal.File, error) {
	start := time.Now()
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return internal.File{}, apperr.New(apperr.FileNotFound, apperr.Details{FileName: name}, err)
	}
	if limit := s.cfg.MaxFileMB; limit > 0 && info.Size() > int64(limit)<<20 {
		sizeMB := math.Round(float64(info.Size())/(1<<20)*10) / 10
		return internal.File{}, apperr.New(apperr.FileTooLarge, apperr.Details{FileName: name, SizeMB: sizeMB, LimitMB: float64(limit)}, nil)
	}

	wb, err := sheets.Load(path, sheets.LoadOptions{})
	switch {
	case errors.Is(err, sheets.ErrUnsupportedFormat):
		return internal.File{}, apperr.New(apperr.FileFormatInvalid, apperr.Details{Format: filepath.Ext(path)}, err)
	case errors.Is(err, sheets.ErrEmptyFile):
		return internal.File{}, apperr.New(apperr.DataEmpty, apperr.Details{SheetName: name}, err)
	case err != nil:
		return internal.File{}, apperr.New(apperr.FileReadError, apperr.Details{FileName: name}, err)
	}

	existing, err := s.db.ListFiles()
	if err != nil {
		return internal.File{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	f := internal.File{
		Name:     name,
		Type:     wb.FileType(),
		Path:     abs,
		Position: gridPosition(len(existing)),
		Size:     internal.Size{Width: cardWidth, Height: cardHeight},
	}
	qualitySum := 0
	for _, ls := range wb.Sheets {
		sh, quality := s.profileSheet(ls)
		f.Sheets = append(f.Sheets, sh)
		f.RowCount += sh.RowCount
		qualitySum += quality
	}
	f.Quality = int(math.Round(float64(qualitySum) / float64(len(f.Sheets))))

	analysis.Pending(f.Sheets)
	results := s.analyzer.AnalyzeSheets(ctx, f.Sheets, func(current, total int, label string) {
		s.logger.Debug("analysis progress", "file", name, "current", current, "total", total, "label", label)
	})
	// Every imported sheet carries a grid, so results line up with f.Sheets.
	for i, r := range results {
		metrics.RecordSheetAnalysis(string(r.Source), f.Sheets[i].StructureAnalysis.Status)
	}

	saved, err := s.db.AddFile(f)
	if err != nil {
		return internal.File{}, err
	}
	s.logger.Info("file imported",
		"file", name,
		"id", saved.ID,
		"sheets", len(saved.Sheets),
		"rows", saved.RowCount,
		"quality", saved.Quality,
		"elapsed", time.Since(start),
	)
	return saved, nil
}

// profileSheet takes the first row as headers and the rest as data, and
// scores the data rows.
func (s *Service) profileSheet(ls sheets.LoadedSheet) (internal.Sheet, int) {
	sh := internal.Sheet{Name: ls.Name, Hidden: ls.Hidden, Headers: []string{}}
	cells := ls.Grid.Cells
	if len(cells) > 0 {
		sh.Headers = sheets.UniqueHeaders(cells[0])
	}
	values := sheets.GridValues(ls.Grid)
	rows := [][]any{}
	if len(values) > 1 {
		rows = values[1:]
	}
	sh.RowCount = len(rows)
	sh.ColumnTypes = sheets.ColumnTypes(sh.Headers, rows)
	samples := rows
	if len(samples) > s.cfg.SampleRows {
		samples = samples[:s.cfg.SampleRows]
	}
	sh.SampleRows = samples
	raw := truncateGrid(ls.Grid, rawGridRows)
	sh.RawData = &raw
	return sh, sheets.Quality(rows)
}

// truncateGrid keeps the first n rows and the merges that start inside them.
func truncateGrid(grid internal.RawSheetData, n int) internal.RawSheetData {
	if len(grid.Cells) <= n {
		return grid
	}
	out := internal.RawSheetData{Cells: grid.Cells[:n], Merges: []internal.MergeRange{}}
	for _, m := range grid.Merges {
		if m.StartRow < n {
			out.Merges = append(out.Merges, m)
		}
	}
	return out
}

func gridPosition(k int) internal.Position {
	return internal.Position{
		X: float64(gridOriginX + (k%gridColumns)*gridStepX),
		Y: float64(gridOriginY + (k/gridColumns)*gridStepY),
	}
}
