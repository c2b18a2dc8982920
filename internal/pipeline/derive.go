package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"dataclean/internal"
	"dataclean/internal/metrics"
	"dataclean/internal/sheets"
	"dataclean/internal/util"
)

// minDetailRows is the row count a sheet must exceed to be picked without a
// target.
const minDetailRows = 10

// run is one command in flight.
type run struct {
	command string
	intent  internal.Intent
	files   []internal.File
	counts  map[string]int
	log     *slog.Logger
}

type candidate struct {
	file  internal.File
	sheet internal.Sheet
}

// findTargetSheets lists visible sheets whose name contains target, or every
// visible sheet with more than minDetailRows rows when target is empty.
// Larger sheets come first; ties keep file then sheet order.
func findTargetSheets(target string, files []internal.File) []candidate {
	lowered := strings.ToLower(target)
	out := []candidate{}
	for _, f := range files {
		for _, sh := range f.Sheets {
			if sh.Hidden {
				continue
			}
			if target != "" {
				if strings.Contains(sh.Name, target) || strings.Contains(strings.ToLower(sh.Name), lowered) {
					out = append(out, candidate{file: f, sheet: sh})
				}
				continue
			}
			if sh.RowCount > minDetailRows {
				out = append(out, candidate{file: f, sheet: sh})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].sheet.RowCount > out[j].sheet.RowCount
	})
	return out
}

func listAllSheets(files []internal.File) []string {
	out := []string{}
	for _, f := range files {
		for _, sh := range f.Sheets {
			if !sh.Hidden {
				out = append(out, sh.Name)
			}
		}
	}
	return out
}

// outputFormat is the on-disk shape of a derived file.
type outputFormat string

const (
	outputJSON outputFormat = "json"
	outputCSV  outputFormat = "csv"
	outputXLSX outputFormat = "xlsx"
)

func parseOutputFormat(s string) (outputFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return outputJSON, true
	case "csv":
		return outputCSV, true
	case "xlsx", "excel", "xls":
		return outputXLSX, true
	}
	return "", false
}

func (f outputFormat) fileType() internal.FileType {
	switch f {
	case outputCSV:
		return internal.FileCSV
	case outputXLSX:
		return internal.FileExcel
	default:
		return internal.FileJSON
	}
}

// headerHint is the header row inference settled on, if any.
func headerHint(sh internal.Sheet) *int {
	if sh.StructureAnalysis == nil || sh.StructureAnalysis.HeaderRow < 0 {
		return nil
	}
	row := sh.StructureAnalysis.HeaderRow
	return &row
}

func (s *Service) readCandidate(c candidate) (sheets.FullSheet, error) {
	return s.reader.ReadFullSheet(c.file.Path, c.sheet.Name, headerHint(c.sheet))
}

// derivedSheet is the sheet name a written file reads back under.
const derivedSheet = "Data"

// sheetName is the name the loader reports for the single sheet of a file
// written as f at path.
func (f outputFormat) sheetName(path string) string {
	if f == outputCSV {
		return sheets.CSVSheetName(path)
	}
	return derivedSheet
}

func (s *Service) write(format outputFormat, full sheets.FullSheet, path string) (sheets.WriteResult, error) {
	switch format {
	case outputCSV:
		return s.writer.WriteCSV(full.Rows, path, full.Headers...)
	case outputXLSX:
		return s.writer.WriteXLSX(full.Rows, path, derivedSheet, full.Headers...)
	default:
		return s.writer.WriteJSON(full.Rows, path, full.Headers...)
	}
}

// derivedName is "{prefix}_{source base}_{sheet}.{ext}" with the sheet name
// reduced to letters, digits and CJK. An empty prefix is left out.
func derivedName(prefix string, src internal.File, sheetName string, format outputFormat) string {
	name := fmt.Sprintf("%s_%s.%s", util.TrimExt(src.Name), util.SanitizeName(sheetName), format)
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// derive writes full as a new file beside src and links the two. index
// staggers cards derived from the same run.
func (s *Service) derive(src internal.File, full sheets.FullSheet, index int, name string, format outputFormat, label string) (internal.File, error) {
	path := filepath.Join(s.cfg.ExportDir, name)
	if _, err := s.write(format, full, path); err != nil {
		return internal.File{}, fmt.Errorf("write %s: %w", name, err)
	}

	values := sheets.RowValues(full.Headers, full.Rows)
	samples := values
	if len(samples) > s.cfg.SampleRows {
		samples = samples[:s.cfg.SampleRows]
	}
	sheetName := format.sheetName(path)
	derived, err := s.db.AddFile(internal.File{
		Name: name,
		Type: format.fileType(),
		Path: path,
		Sheets: []internal.Sheet{{
			Name:        sheetName,
			Headers:     full.Headers,
			RowCount:    len(full.Rows),
			ColumnTypes: sheets.ColumnTypes(full.Headers, samples),
			SampleRows:  samples,
		}},
		ActiveSheet: sheetName,
		Position: internal.Position{
			X: src.Position.X + src.Size.Width + derivedOffsetX,
			Y: src.Position.Y + float64(index*derivedStepY),
		},
		Size:     internal.Size{Width: cardWidth, Height: cardHeight},
		Quality:  sheets.Quality(values),
		RowCount: len(full.Rows),
	})
	if err != nil {
		return internal.File{}, err
	}
	if _, err := s.db.AddFlow(src.ID, derived.ID, label, internal.FlowTransform); err != nil {
		return derived, err
	}
	metrics.RecordExtractedRows(len(full.Rows))
	return derived, nil
}

// DerivedSheet describes one derived file produced by a command.
type DerivedSheet struct {
	FileName  string `json:"fileName"`
	SheetName string `json:"sheetName"`
	NewFileID string `json:"newFileId"`
	RowCount  int    `json:"rowCount"`
}

func totalRows(results []DerivedSheet) int {
	n := 0
	for _, r := range results {
		n += r.RowCount
	}
	return n
}

func breakdown(results []DerivedSheet) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("- %s/%s: %d 行", r.FileName, r.SheetName, r.RowCount)
	}
	return strings.Join(lines, "\n")
}
