package sheets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"dataclean/internal/util"
)

// WriteResult reports where a derived file landed.
type WriteResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

type Writer struct{}

func NewWriter() *Writer { return &Writer{} }

// WriteJSON writes rows as a pretty JSON array. When order is given, object
// keys follow it; remaining keys are appended alphabetically.
func (w *Writer) WriteJSON(rows []map[string]any, path string, order ...string) (WriteResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteResult{}, err
	}
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for j, key := range rowKeys(row, order) {
			if j > 0 {
				buf.WriteString(",")
			}
			k, _ := json.Marshal(key)
			v, err := json.Marshal(row[key])
			if err != nil {
				return WriteResult{}, fmt.Errorf("encode %q: %w", key, err)
			}
			buf.WriteString("\n    ")
			buf.Write(k)
			buf.WriteString(": ")
			buf.Write(v)
		}
		buf.WriteString("\n  }")
	}
	if len(rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Success: true, Path: path}, nil
}

// WriteCSV writes a UTF-8 BOM so spreadsheet apps detect the encoding, then
// the header row and one line per row with every cell quoted.
func (w *Writer) WriteCSV(rows []map[string]any, path string, order ...string) (WriteResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteResult{}, err
	}
	headers := columnOrder(rows, order)
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	writeQuoted(&buf, headers)
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = util.CellString(row[h])
		}
		writeQuoted(&buf, cells)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Success: true, Path: path}, nil
}

func writeQuoted(buf *bytes.Buffer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(c, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteString("\r\n")
}

// WriteXLSX writes a single-sheet workbook.
func (w *Writer) WriteXLSX(rows []map[string]any, path, sheetName string, order ...string) (WriteResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteResult{}, err
	}
	if sheetName == "" {
		sheetName = "Data"
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return WriteResult{}, err
	}

	headers := columnOrder(rows, order)
	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &head); err != nil {
		return WriteResult{}, err
	}
	for r, row := range rows {
		values := make([]any, len(headers))
		for i, h := range headers {
			values[i] = row[h]
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return WriteResult{}, err
		}
		if err := f.SetSheetRow(sheetName, axis, &values); err != nil {
			return WriteResult{}, err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Success: true, Path: path}, nil
}

// rowKeys lists row's keys: those named in order first, the rest sorted.
func rowKeys(row map[string]any, order []string) []string {
	keys := make([]string, 0, len(row))
	used := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := row[k]; ok && !used[k] {
			keys = append(keys, k)
			used[k] = true
		}
	}
	rest := make([]string, 0, len(row)-len(keys))
	for k := range row {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// columnOrder is the union of keys across rows, honouring order first.
func columnOrder(rows []map[string]any, order []string) []string {
	cols := []string{}
	seen := map[string]bool{}
	for _, k := range order {
		if !seen[k] {
			seen[k] = true
			cols = append(cols, k)
		}
	}
	for _, row := range rows {
		for _, k := range rowKeys(row, nil) {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}
