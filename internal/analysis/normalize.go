package analysis

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"dataclean/internal"
	"dataclean/internal/util"
)

// Key aliases seen in service replies, tried in order.
var (
	sheetEnvelopes   = []string{"analysis", "data"}
	nameKeys         = []string{"name", "sheet_name"}
	typeKeys         = []string{"type", "sheet_type", "role"}
	headerRowKeys    = []string{"headerRow", "header_row", "header_rows"}
	nullHeaderKeys   = []string{"headerRow", "header_row"}
	dataStartRowKeys = []string{"dataStartRow", "data_start_row"}
	fieldKeys        = []string{"fields", "header_columns", "columns_list", "columns"}
	reasonKeys       = []string{"typeReason", "note", "purpose"}
)

// Keyword families for guessing a type when none is given.
var (
	purposeStandard  = []string{"明细", "transaction", "detail", "数据"}
	purposeIrregular = []string{"目录", "说明", "汇总", "索引", "overview", "summary", "导航", "文档"}
	nameIrregular    = []string{"目录", "说明", "汇总", "索引", "导航"}
	nameStandard     = []string{"明细", "对账单", "数据", "record", "detail"}
)

const (
	recoveryScanRows  = 10
	recoveryMinValues = 3
	defaultAIWithData = 0.8
	defaultAINoData   = 0.5
)

// normalizeSheet turns one loosely shaped reply entry into a result, using
// grid (when known) to recover fields the reply left out.
func normalizeSheet(raw map[string]any, grid *internal.RawSheetData) SheetAnalysisResult {
	name := firstString(raw, nameKeys)
	sheetType := resolveType(raw, name)

	headerRow := 0
	if v, ok := firstPresent(raw, headerRowKeys); ok {
		if n, ok := toInt(v); ok {
			headerRow = n
		}
	}
	for _, k := range nullHeaderKeys {
		if v, present := raw[k]; present && v == nil {
			headerRow = -1
		}
	}

	fields := []string{}
	if v, ok := firstPresent(raw, fieldKeys, isArray); ok {
		fields = toStrings(v)
	}

	if grid != nil {
		// A header row past the end of the grid points at nothing.
		if headerRow >= len(grid.Cells) {
			headerRow = Infer(*grid).HeaderRow
		}
		if len(fields) == 0 && headerRow >= 0 {
			fields = rowFields(*grid, headerRow)
		}
		if len(fields) == 0 {
			if row, values, ok := mostPopulatedRow(*grid); ok {
				headerRow, fields = row, values
			}
		}
	}

	confidence := defaultAINoData
	if len(fields) > 0 {
		confidence = defaultAIWithData
	}
	if v, ok := raw["confidence"]; ok {
		if f, ok := toFloat(v); ok {
			confidence = math.Max(0, math.Min(1, f))
		}
	}

	out := SheetAnalysisResult{
		Name:       name,
		Type:       sheetType,
		TypeReason: firstString(raw, reasonKeys),
		Fields:     fields,
		Confidence: confidence,
		Source:     SourceAI,
	}
	if headerRow >= 0 {
		out.HeaderRow = headerRow
		out.DataStartRow = headerRow + 1
		if v, ok := firstPresent(raw, dataStartRowKeys); ok {
			if n, ok := toInt(v); ok && n > headerRow {
				out.DataStartRow = n
			}
		}
	}
	enforceInvariants(&out)
	return out
}

// enforceInvariants keeps type and rows consistent with the field list.
func enforceInvariants(r *SheetAnalysisResult) {
	if r.Type == internal.SheetStandard && len(r.Fields) <= 1 {
		r.Type = internal.SheetIrregular
	}
	if r.Type == internal.SheetStandard && r.DataStartRow < r.HeaderRow+1 {
		r.DataStartRow = r.HeaderRow + 1
	}
}

func resolveType(raw map[string]any, name string) internal.SheetType {
	if v, ok := firstPresent(raw, typeKeys, isTruthy); ok {
		return mapSheetType(stringify(v))
	}
	if purpose := strings.ToLower(stringify(raw["purpose"])); purpose != "" {
		switch {
		case containsAny(purpose, purposeStandard):
			return internal.SheetStandard
		case containsAny(purpose, purposeIrregular):
			return internal.SheetIrregular
		}
	}
	if lower := strings.ToLower(name); lower != "" {
		switch {
		case containsAny(lower, nameIrregular):
			return internal.SheetIrregular
		case containsAny(lower, nameStandard):
			return internal.SheetStandard
		}
	}
	if n, ok := raw["columns"].(float64); ok && n > 0 {
		switch {
		case n > 5 && n < 100:
			return internal.SheetStandard
		case n <= 5:
			return internal.SheetIrregular
		}
	}
	return internal.SheetUnknown
}

func mapSheetType(s string) internal.SheetType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "标准", "明细":
		return internal.SheetStandard
	case "irregular", "异形", "汇总", "目录":
		return internal.SheetIrregular
	default:
		return internal.SheetUnknown
	}
}

// mostPopulatedRow picks the row with the most values among the first ten,
// requiring more than three. Earlier rows win ties.
func mostPopulatedRow(grid internal.RawSheetData) (int, []string, bool) {
	best, bestValues := -1, []string(nil)
	for r := 0; r < len(grid.Cells) && r < recoveryScanRows; r++ {
		values := rowFields(grid, r)
		if len(values) > recoveryMinValues && len(values) > len(bestValues) {
			best, bestValues = r, values
		}
	}
	return best, bestValues, best >= 0
}

func firstPresent(raw map[string]any, keys []string, accept ...func(any) bool) (any, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if len(accept) > 0 && !accept[0](v) {
			continue
		}
		return v, true
	}
	return nil, false
}

func firstString(raw map[string]any, keys []string) string {
	v, ok := firstPresent(raw, keys, isTruthy)
	if !ok {
		return ""
	}
	return stringify(v)
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return util.CellString(t)
	}
}

func toStrings(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if util.IsBlank(item) {
			continue
		}
		if s := strings.TrimSpace(stringify(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	case []any:
		if len(t) > 0 {
			return toInt(t[0])
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
