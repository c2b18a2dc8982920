package analysis

import (
	"strings"

	"dataclean/internal"
	"dataclean/internal/util"
)

const maxHeaderDepth = 3

// attachHierarchy fills HeaderRegion, RawHeaders and FieldHierarchy. A header
// spans several rows when the analysis says data starts later, or when a
// row holds horizontal merges acting as group titles for the row below.
func attachHierarchy(a *internal.StructureAnalysis, grid internal.RawSheetData) {
	if a.HeaderRow < 0 || a.HeaderRow >= len(grid.Cells) || len(a.Fields) == 0 {
		return
	}
	start := a.HeaderRow
	end := headerEnd(grid, start, a.DataStartRow)
	width := len(grid.Cells[start])

	a.HeaderRegion = &internal.HeaderRegion{StartRow: start, EndRow: end, StartCol: 0, EndCol: width - 1}
	a.RawHeaders = make([][]string, 0, end-start+1)
	for r := start; r <= end; r++ {
		row := make([]string, width)
		for c := 0; c < width; c++ {
			row[c] = headerText(grid, r, c)
		}
		a.RawHeaders = append(a.RawHeaders, row)
	}

	a.FieldHierarchy = []internal.FieldHierarchy{}
	for c := 0; c < width; c++ {
		parts := []string{}
		for _, row := range a.RawHeaders {
			p := row[c]
			if p == "" || (len(parts) > 0 && parts[len(parts)-1] == p) {
				continue
			}
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			continue
		}
		a.FieldHierarchy = append(a.FieldHierarchy, internal.FieldHierarchy{
			FullPath:    strings.Join(parts, "."),
			DisplayName: parts[len(parts)-1],
			Parent:      strings.Join(parts[:len(parts)-1], "."),
			ColumnIndex: c,
			Level:       len(parts) - 1,
		})
	}
}

func headerEnd(grid internal.RawSheetData, start, dataStart int) int {
	limit := min(start+maxHeaderDepth-1, len(grid.Cells)-1)
	if dataStart-1 > start {
		return min(dataStart-1, limit)
	}
	end := start
	for end < limit && hasGroupMerge(grid, end) && nonEmptyCount(grid.Cells[end+1]) > 0 {
		end++
	}
	return end
}

// hasGroupMerge reports a merge confined to row r spanning several columns.
func hasGroupMerge(grid internal.RawSheetData, r int) bool {
	for _, m := range grid.Merges {
		if m.StartRow == r && m.EndRow == r && m.EndCol > m.StartCol {
			return true
		}
	}
	return false
}

// headerText is the cell text, taking merged cells' value from the merge
// origin.
func headerText(grid internal.RawSheetData, r, c int) string {
	for _, m := range grid.Merges {
		if m.Contains(r, c) && m.StartRow >= 0 && m.StartRow < len(grid.Cells) && m.StartCol >= 0 && m.StartCol < len(grid.Cells[m.StartRow]) {
			return strings.TrimSpace(util.CellString(grid.Cells[m.StartRow][m.StartCol].Value))
		}
	}
	if c >= len(grid.Cells[r]) || util.IsBlank(grid.Cells[r][c].Value) {
		return ""
	}
	return strings.TrimSpace(util.CellString(grid.Cells[r][c].Value))
}
