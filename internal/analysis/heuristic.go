// Package analysis infers where a sheet's header sits and which fields it
// has, either by a fixed heuristic or by asking a text-generation service and
// normalizing whatever comes back.
package analysis

import (
	"strings"

	"dataclean/internal"
	"dataclean/internal/util"
)

const (
	heuristicScanRows   = 5
	heuristicConfidence = 0.4
)

// Infer is the deterministic fallback. It never fails and always reports
// StatusCompleted.
func Infer(grid internal.RawSheetData) internal.StructureAnalysis {
	headerRow := 0
	for r := 0; r < len(grid.Cells) && r < heuristicScanRows; r++ {
		if nonEmptyCount(grid.Cells[r]) > 0 {
			headerRow = r
			break
		}
	}

	fields := rowFields(grid, headerRow)
	sheetType, reason := internal.SheetIrregular, "Too few columns"
	if len(fields) > 1 {
		sheetType, reason = internal.SheetStandard, "Based on default inference"
	}

	out := internal.StructureAnalysis{
		SheetType:    sheetType,
		Reason:       reason,
		HeaderRow:    headerRow,
		DataStartRow: headerRow + 1,
		Fields:       fields,
		Confidence:   heuristicConfidence,
		Status:       internal.StatusCompleted,
	}
	attachHierarchy(&out, grid)
	return out
}

// inferResult is Infer shaped as an analyzer result.
func inferResult(name string, grid internal.RawSheetData) SheetAnalysisResult {
	a := Infer(grid)
	return SheetAnalysisResult{
		Name:         name,
		Type:         a.SheetType,
		TypeReason:   a.Reason,
		HeaderRow:    a.HeaderRow,
		DataStartRow: a.DataStartRow,
		Fields:       a.Fields,
		Confidence:   a.Confidence,
		Source:       SourceHeuristic,
	}
}

// rowFields returns the trimmed, non-empty values of row r.
func rowFields(grid internal.RawSheetData, r int) []string {
	fields := []string{}
	if r < 0 || r >= len(grid.Cells) {
		return fields
	}
	for _, c := range grid.Cells[r] {
		if util.IsBlank(c.Value) {
			continue
		}
		if s := strings.TrimSpace(util.CellString(c.Value)); s != "" {
			fields = append(fields, s)
		}
	}
	return fields
}

func nonEmptyCount(cells []internal.Cell) int {
	n := 0
	for _, c := range cells {
		if !util.IsBlank(c.Value) {
			n++
		}
	}
	return n
}
