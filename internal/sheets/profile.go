package sheets

import (
	"encoding/json"
	"math"
	"time"

	"dataclean/internal"
	"dataclean/internal/util"
)

// ColumnTypes classifies each header's column over rows.
func ColumnTypes(headers []string, rows [][]any) []internal.ColumnType {
	out := make([]internal.ColumnType, len(headers))
	for i := range headers {
		seen := map[internal.ColumnType]bool{}
		for _, row := range rows {
			if i >= len(row) || util.IsBlank(row[i]) {
				continue
			}
			seen[valueType(row[i])] = true
		}
		switch len(seen) {
		case 0:
			out[i] = internal.ColumnEmpty
		case 1:
			for t := range seen {
				out[i] = t
			}
		default:
			out[i] = internal.ColumnMixed
		}
	}
	return out
}

func valueType(v any) internal.ColumnType {
	switch t := v.(type) {
	case bool:
		return internal.ColumnBoolean
	case int, int64, float64, float32:
		return internal.ColumnNumber
	case time.Time:
		return internal.ColumnDate
	case string:
		if _, ok := util.ParseDate(t); ok {
			return internal.ColumnDate
		}
	}
	return internal.ColumnString
}

// Stats summarizes the fill and duplication of a row set.
type Stats struct {
	Rows          int `json:"rows"`
	Cells         int `json:"cells"`
	EmptyCells    int `json:"emptyCells"`
	DuplicateRows int `json:"duplicateRows"`
	Quality       int `json:"quality"`
}

// EmptyRatio is the share of blank cells, 0 when there are no cells.
func (s Stats) EmptyRatio() float64 {
	if s.Cells == 0 {
		return 0
	}
	return float64(s.EmptyCells) / float64(s.Cells)
}

// Profile counts blank cells and repeated rows. Quality is 60 points for
// filled cells plus 40 for distinct rows; no rows scores 100.
func Profile(rows [][]any) Stats {
	st := Stats{Rows: len(rows), Quality: 100}
	if len(rows) == 0 {
		return st
	}
	seen := map[string]bool{}
	for _, row := range rows {
		key, _ := json.Marshal(row)
		if seen[string(key)] {
			st.DuplicateRows++
		} else {
			seen[string(key)] = true
		}
		for _, c := range row {
			st.Cells++
			if util.IsBlank(c) {
				st.EmptyCells++
			}
		}
	}
	emptyScore := 60.0
	if st.Cells > 0 {
		emptyScore = float64(st.Cells-st.EmptyCells) / float64(st.Cells) * 60
	}
	dupScore := float64(len(rows)-st.DuplicateRows) / float64(len(rows)) * 40
	st.Quality = int(math.Round(emptyScore + dupScore))
	return st
}

func Quality(rows [][]any) int {
	return Profile(rows).Quality
}

// RowValues lays object rows out in header order.
func RowValues(headers []string, rows []map[string]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(headers))
		for j, h := range headers {
			vals[j] = row[h]
		}
		out[i] = vals
	}
	return out
}

// GridValues flattens a grid to plain values.
func GridValues(grid internal.RawSheetData) [][]any {
	out := make([][]any, len(grid.Cells))
	for r, cells := range grid.Cells {
		row := make([]any, len(cells))
		for c, cell := range cells {
			row[c] = cell.Value
		}
		out[r] = row
	}
	return out
}
