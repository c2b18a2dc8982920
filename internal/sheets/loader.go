// Package sheets turns spreadsheet-like files into cell grids and back.
//
// Load reads any supported format into a Workbook of raw grids. Reader is the
// full-fidelity read used by extraction, and Writer materializes derived
// files as JSON, CSV or XLSX.
package sheets

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dataclean/internal"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrSheetNotFound     = errors.New("sheet not found")
	ErrEmptyFile         = errors.New("file has no data")
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// LoadedSheet is one tab of a workbook as a raw grid.
type LoadedSheet struct {
	Name   string
	Hidden bool
	Grid   internal.RawSheetData
}

type Workbook struct {
	Format Format
	Sheets []LoadedSheet
}

func (w Workbook) Sheet(name string) (LoadedSheet, error) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, nil
		}
	}
	return LoadedSheet{}, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
}

func (w Workbook) SheetNames() []string {
	out := make([]string, 0, len(w.Sheets))
	for _, s := range w.Sheets {
		out = append(out, s.Name)
	}
	return out
}

// FileType maps the on-disk format to the canvas file type.
func (w Workbook) FileType() internal.FileType {
	switch w.Format {
	case FormatCSV:
		return internal.FileCSV
	case FormatJSON:
		return internal.FileJSON
	default:
		return internal.FileExcel
	}
}

type LoadOptions struct {
	// MaxRows caps the rows kept per sheet. Zero keeps everything.
	MaxRows int
	// Formulas attaches formula text to xlsx cells.
	Formulas bool
}

// Detect picks a format from the extension, sniffing .xls files since many
// "xls" exports are HTML tables.
func Detect(path string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx":
		return FormatXLSX, nil
	case ".xls":
		if looksLikeHTML(head) {
			return FormatHTML, nil
		}
		if bytes.HasPrefix(head, []byte("PK")) {
			return FormatXLSX, nil
		}
		return "", fmt.Errorf("%w: legacy binary .xls", ErrUnsupportedFormat)
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func looksLikeHTML(head []byte) bool {
	trimmed := bytes.ToLower(bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))))
	return bytes.HasPrefix(trimmed, []byte("<")) || bytes.Contains(trimmed, []byte("<table"))
}

func Load(path string, opts LoadOptions) (Workbook, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Workbook{}, err
	}
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	format, err := Detect(path, head)
	if err != nil {
		return Workbook{}, err
	}
	return LoadBytes(content, format, path, opts)
}

// LoadBytes parses content already in memory. name is only used for
// delimiter detection and sheet naming.
func LoadBytes(content []byte, format Format, name string, opts LoadOptions) (Workbook, error) {
	var sheets []LoadedSheet
	var err error
	switch format {
	case FormatXLSX:
		sheets, err = loadXLSX(content, opts)
	case FormatCSV:
		sheets, err = loadCSV(content, name, opts)
	case FormatJSON:
		sheets, err = loadJSON(content, opts)
	case FormatHTML:
		sheets, err = loadHTML(content, opts)
	case FormatPDF:
		sheets, err = loadPDF(content, opts)
	default:
		return Workbook{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Workbook{}, err
	}
	if len(sheets) == 0 {
		return Workbook{}, ErrEmptyFile
	}
	return Workbook{Format: format, Sheets: sheets}, nil
}

// gridFromValues pads ragged rows to a rectangle.
func gridFromValues(values [][]any, maxRows int) internal.RawSheetData {
	if maxRows > 0 && len(values) > maxRows {
		values = values[:maxRows]
	}
	width := 0
	for _, row := range values {
		if len(row) > width {
			width = len(row)
		}
	}
	cells := make([][]internal.Cell, len(values))
	for r, row := range values {
		cells[r] = make([]internal.Cell, width)
		for c, v := range row {
			cells[r][c] = internal.Cell{Value: v}
		}
	}
	return internal.RawSheetData{Cells: cells, Merges: []internal.MergeRange{}}
}

// markMerges tags every cell inside a merge with the merge's id.
func markMerges(grid *internal.RawSheetData) {
	for _, m := range grid.Merges {
		id := fmt.Sprintf("%d:%d", m.StartRow, m.StartCol)
		for r := max(m.StartRow, 0); r <= m.EndRow && r < len(grid.Cells); r++ {
			for c := max(m.StartCol, 0); c <= m.EndCol && c < len(grid.Cells[r]); c++ {
				grid.Cells[r][c].MergeID = id
			}
		}
	}
}
