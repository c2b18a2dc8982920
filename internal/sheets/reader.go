package sheets

import (
	"fmt"

	"dataclean/internal"
	"dataclean/internal/util"
)

// headerScanRows is how far DefaultHeaderRow looks for a header.
const headerScanRows = 10

// FullSheet is a sheet read end to end with object rows keyed by header.
type FullSheet struct {
	Headers       []string
	Rows          []map[string]any
	HeaderRowUsed int
}

// Reader loads whole sheets from disk. It is the read side extraction relies
// on, so it never truncates.
type Reader struct{}

func NewReader() *Reader { return &Reader{} }

// ReadFullSheet reads sheetName from path. A non-nil hint pins the header
// row; otherwise DefaultHeaderRow decides.
func (r *Reader) ReadFullSheet(path, sheetName string, hint *int) (FullSheet, error) {
	wb, err := Load(path, LoadOptions{})
	if err != nil {
		return FullSheet{}, err
	}
	sheet, err := wb.Sheet(sheetName)
	if err != nil {
		return FullSheet{}, err
	}
	return SheetRows(sheet.Grid, hint), nil
}

// SheetRows converts a grid into header-keyed rows.
func SheetRows(grid internal.RawSheetData, hint *int) FullSheet {
	headerRow := DefaultHeaderRow(grid)
	if hint != nil && *hint >= 0 {
		headerRow = *hint
	}
	if headerRow >= len(grid.Cells) {
		return FullSheet{Headers: []string{}, Rows: []map[string]any{}, HeaderRowUsed: headerRow}
	}

	headers := UniqueHeaders(grid.Cells[headerRow])
	used := make(map[string]bool, len(headers))
	for _, h := range headers {
		used[h] = true
	}
	rows := []map[string]any{}
	for _, cells := range grid.Cells[headerRow+1:] {
		if blankRow(cells) {
			continue
		}
		for len(headers) < len(cells) {
			headers = append(headers, claimName(used, fmt.Sprintf("列%d", len(headers)+1)))
		}
		row := make(map[string]any, len(headers))
		for i, h := range headers {
			var v any
			if i < len(cells) {
				v = cells[i].Value
			}
			row[h] = v
		}
		rows = append(rows, row)
	}
	return FullSheet{Headers: headers, Rows: rows, HeaderRowUsed: headerRow}
}

// DefaultHeaderRow is the first row within the first ten that has at least
// three non-empty cells, or 0.
func DefaultHeaderRow(grid internal.RawSheetData) int {
	for r := 0; r < len(grid.Cells) && r < headerScanRows; r++ {
		filled := 0
		for _, c := range grid.Cells[r] {
			if !util.IsBlank(c.Value) {
				filled++
			}
		}
		if filled >= 3 {
			return r
		}
	}
	return 0
}

// UniqueHeaders names a header row: empty cells become 列N and repeats get a
// numeric suffix. No two columns end up with the same name.
func UniqueHeaders(cells []internal.Cell) []string {
	used := map[string]bool{}
	out := make([]string, len(cells))
	for i, c := range cells {
		name := util.NormalizeSpaces(util.CellString(c.Value))
		if name == "" {
			name = fmt.Sprintf("列%d", i+1)
		}
		out[i] = claimName(used, name)
	}
	return out
}

// claimName returns name, or name_2, name_3 ... whichever is still free,
// and marks it used.
func claimName(used map[string]bool, name string) string {
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[candidate] = true
	return candidate
}

func blankRow(cells []internal.Cell) bool {
	for _, c := range cells {
		if !util.IsBlank(c.Value) {
			return false
		}
	}
	return true
}
