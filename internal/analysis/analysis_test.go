package analysis

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"dataclean/internal"
	"dataclean/internal/llm"
)

func grid(rows ...[]any) internal.RawSheetData {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	cells := make([][]internal.Cell, len(rows))
	for i, r := range rows {
		cells[i] = make([]internal.Cell, width)
		for j, v := range r {
			cells[i][j] = internal.Cell{Value: v}
		}
	}
	return internal.RawSheetData{Cells: cells, Merges: []internal.MergeRange{}}
}

type fakeProvider struct {
	reply string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func (f *fakeProvider) Name() string { return "fake/test" }

func TestInfer(t *testing.T) {
	cases := []struct {
		name      string
		grid      internal.RawSheetData
		header    int
		fields    []string
		sheetType internal.SheetType
	}{
		{
			name:      "header after blank rows",
			grid:      grid([]any{}, []any{nil, ""}, []any{" 日期 ", "金额", nil, "备注"}, []any{"2024-01-01", 1, nil, "x"}),
			header:    2,
			fields:    []string{"日期", "金额", "备注"},
			sheetType: internal.SheetStandard,
		},
		{
			name:      "single title cell",
			grid:      grid([]any{"说明"}, []any{"a", "b"}),
			header:    0,
			fields:    []string{"说明"},
			sheetType: internal.SheetIrregular,
		},
		{
			name:      "all empty",
			grid:      grid([]any{nil, nil}, []any{"", nil}),
			header:    0,
			fields:    []string{},
			sheetType: internal.SheetIrregular,
		},
		{
			name:      "no rows",
			grid:      internal.RawSheetData{},
			header:    0,
			fields:    []string{},
			sheetType: internal.SheetIrregular,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Infer(tc.grid)
			if got.HeaderRow != tc.header || got.DataStartRow != tc.header+1 {
				t.Fatalf("rows=%d/%d want %d", got.HeaderRow, got.DataStartRow, tc.header)
			}
			if !reflect.DeepEqual(got.Fields, tc.fields) {
				t.Fatalf("fields=%q want %q", got.Fields, tc.fields)
			}
			if got.SheetType != tc.sheetType || got.Confidence != 0.4 || got.Status != internal.StatusCompleted {
				t.Fatalf("unexpected analysis %+v", got)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name string
		text string
		ok   bool
	}{
		{name: "fenced", text: "好的\n```json\n{\"sheets\": []}\n```\n完成", ok: true},
		{name: "bare braces with noise", text: `结果如下 {"sheets": [{"name": "a"}]} 以上`, ok: true},
		{name: "nested braces", text: `x {"data": {"sheets": [{"name": "{b}"}]}} y`, ok: true},
		{name: "broken fence falls back to braces", text: "```json\nnot json\n``` {\"sheets\":[]}", ok: true},
		{name: "no json", text: "抱歉，无法分析", ok: false},
		{name: "unbalanced", text: `{"sheets": [`, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := parseResponse(tc.text)
			if ok != tc.ok {
				t.Fatalf("ok=%v want %v", ok, tc.ok)
			}
		})
	}
}

func TestSheetListEnvelopes(t *testing.T) {
	for _, text := range []string{
		`{"sheets":[{"name":"a"}]}`,
		`{"analysis":{"sheets":[{"name":"a"}]}}`,
		`{"data":{"sheets":[{"name":"a"}]}}`,
	} {
		parsed, ok := parseResponse(text)
		if !ok {
			t.Fatalf("parse %s", text)
		}
		list, ok := sheetList(parsed)
		if !ok || len(list) != 1 {
			t.Fatalf("sheet list missing in %s", text)
		}
	}
	if _, ok := sheetList(map[string]any{"result": []any{}}); ok {
		t.Fatalf("unknown envelope should not match")
	}
}

func TestResolveType(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
		want internal.SheetType
	}{
		{name: "explicit", raw: map[string]any{"type": "Standard"}, want: internal.SheetStandard},
		{name: "sheet_type chinese", raw: map[string]any{"sheet_type": "目录"}, want: internal.SheetIrregular},
		{name: "role unknown word", raw: map[string]any{"role": "table"}, want: internal.SheetUnknown},
		{name: "purpose detail", raw: map[string]any{"purpose": "Transaction details"}, want: internal.SheetStandard},
		{name: "purpose summary", raw: map[string]any{"purpose": "月度汇总"}, want: internal.SheetIrregular},
		{name: "name index", raw: map[string]any{"name": "目录"}, want: internal.SheetIrregular},
		{name: "name statement", raw: map[string]any{"name": "3月对账单"}, want: internal.SheetStandard},
		{name: "many columns", raw: map[string]any{"name": "S1", "columns": 12.0}, want: internal.SheetStandard},
		{name: "few columns", raw: map[string]any{"name": "S1", "columns": 3.0}, want: internal.SheetIrregular},
		{name: "huge column count", raw: map[string]any{"name": "S1", "columns": 150.0}, want: internal.SheetUnknown},
		{name: "nothing", raw: map[string]any{"name": "S1"}, want: internal.SheetUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveType(tc.raw, firstString(tc.raw, nameKeys)); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestNormalizeSheetRecoversFields(t *testing.T) {
	g := grid(
		[]any{"2024 年度报销"},
		[]any{"日期", "类型", "金额", "备注", "审批人"},
		[]any{"2024-01-01", "机票", 800, "", "张三"},
	)

	fromRow := normalizeSheet(map[string]any{"name": "S", "type": "standard", "header_row": 1.0}, &g)
	if strings.Join(fromRow.Fields, ",") != "日期,类型,金额,备注,审批人" || fromRow.HeaderRow != 1 || fromRow.DataStartRow != 2 {
		t.Fatalf("fields not re-derived from header row: %+v", fromRow)
	}
	if fromRow.Confidence != 0.8 {
		t.Fatalf("default confidence with fields=%v", fromRow.Confidence)
	}

	searched := normalizeSheet(map[string]any{"name": "S", "type": "standard", "headerRow": nil}, &g)
	if searched.HeaderRow != 1 || len(searched.Fields) != 5 {
		t.Fatalf("most-populated-row search failed: %+v", searched)
	}

	noHeader := normalizeSheet(map[string]any{"name": "S", "headerRow": nil}, &internal.RawSheetData{})
	if noHeader.HeaderRow != 0 || noHeader.DataStartRow != 0 || noHeader.Confidence != 0.5 {
		t.Fatalf("null header should report 0/0 with confidence 0.5: %+v", noHeader)
	}
}

func TestNormalizeSheetDowngradesThinStandard(t *testing.T) {
	got := normalizeSheet(map[string]any{"name": "S", "type": "standard", "fields": []any{"only"}, "confidence": 0.95}, nil)
	if got.Type != internal.SheetIrregular {
		t.Fatalf("standard with one field must become irregular: %+v", got)
	}
	if got.Confidence != 0.95 {
		t.Fatalf("explicit confidence lost: %v", got.Confidence)
	}

	aliased := normalizeSheet(map[string]any{"sheet_name": "S", "type": "明细", "header_columns": []any{"a", " ", "b"}, "headerRow": 2.0, "dataStartRow": 1.0}, nil)
	if aliased.Name != "S" || strings.Join(aliased.Fields, ",") != "a,b" || aliased.DataStartRow != 3 {
		t.Fatalf("alias handling: %+v", aliased)
	}
}

func TestAnalyzeAllUsesReply(t *testing.T) {
	sheets := []SheetInput{
		{Name: "目录", Grid: grid([]any{"目录"}, []any{"1. 机票"})},
		{Name: "机票明细", Grid: grid([]any{"机票明细"}, []any{"日期", "航班", "金额"}, []any{"2024-01-01", "CA1", 100})},
		{Name: "附录", Grid: grid([]any{"x", "y"})},
	}
	provider := &fakeProvider{reply: "```json\n" + `{"sheets":[
		{"name":"机票明细","type":"standard","headerRow":1,"fields":["日期","航班","金额"],"confidence":0.9},
		{"name":"目录","purpose":"导航目录"}
	]}` + "\n```"}

	var milestones []string
	a := New(Config{Provider: provider})
	got := a.AnalyzeAll(context.Background(), sheets, func(cur, total int, label string) {
		milestones = append(milestones, label)
	})

	if provider.calls != 1 {
		t.Fatalf("expected one batched request, got %d", provider.calls)
	}
	msg := provider.last.Messages[0].Content
	if !strings.Contains(msg, "=== Sheet 2: 机票明细 ===") || !strings.Contains(msg, "Row 0: 机票明细 | (空) | (空)") || !strings.Contains(msg, "请分析以下 3 个 Excel 工作表") {
		t.Fatalf("unexpected user message:\n%s", msg)
	}
	if provider.last.System != batchSheetAnalysisPrompt {
		t.Fatalf("system prompt not sent")
	}

	if len(got) != 3 {
		t.Fatalf("want one result per sheet, got %d", len(got))
	}
	if got[0].Type != internal.SheetIrregular || got[0].Source != SourceAI {
		t.Fatalf("目录: %+v", got[0])
	}
	if got[1].HeaderRow != 1 || got[1].Confidence != 0.9 || got[1].Type != internal.SheetStandard {
		t.Fatalf("机票明细: %+v", got[1])
	}
	if got[2].Source != SourceHeuristic || !reflect.DeepEqual(got[2], inferResult("附录", sheets[2].Grid)) {
		t.Fatalf("missing sheet should fall back to heuristic: %+v", got[2])
	}
	want := []string{"", "请求 AI 分析...", "解析结果...", "分析完成"}
	if !reflect.DeepEqual(milestones, want) {
		t.Fatalf("milestones=%q", milestones)
	}
}

func TestAnalyzeAllTransportFailureMatchesHeuristic(t *testing.T) {
	sheets := []SheetInput{
		{Name: "A", Grid: grid([]any{"a", "b", "c"}, []any{1, 2, 3})},
		{Name: "B", Grid: grid([]any{}, []any{"only"})},
		{Name: "C", Grid: internal.RawSheetData{}},
	}
	for _, p := range []*fakeProvider{
		{err: errors.New("dial tcp: connection refused")},
		{reply: "I cannot help with that"},
		{reply: `{"result": "ok"}`},
	} {
		got := New(Config{Provider: p}).AnalyzeAll(context.Background(), sheets, nil)
		for i, s := range sheets {
			if !reflect.DeepEqual(got[i], inferResult(s.Name, s.Grid)) {
				t.Fatalf("sheet %s: got %+v", s.Name, got[i])
			}
		}
	}
}

func TestAnalyzeSheetsStatus(t *testing.T) {
	good := grid([]any{"日期", "金额"}, []any{"2024-01-01", 1})
	empty := grid([]any{nil}, []any{""})
	sheets := []internal.Sheet{
		{Name: "good", RawData: &good},
		{Name: "empty", RawData: &empty},
		{Name: "nogrid"},
	}
	Pending(sheets)
	if sheets[0].StructureAnalysis.Status != internal.StatusPending {
		t.Fatalf("expected pending")
	}

	New(Config{}).AnalyzeSheets(context.Background(), sheets, nil)
	if s := sheets[0].StructureAnalysis; s.Status != internal.StatusCompleted || s.SheetType != internal.SheetStandard {
		t.Fatalf("good sheet: %+v", s)
	}
	if s := sheets[1].StructureAnalysis; s.Status != internal.StatusFailed || s.Error == "" {
		t.Fatalf("empty sheet should fail: %+v", s)
	}
	if sheets[2].StructureAnalysis != nil {
		t.Fatalf("sheet without grid must be left alone")
	}
}

func TestFieldHierarchyFromMerges(t *testing.T) {
	g := grid(
		[]any{"日期", "行程", nil, "金额"},
		[]any{nil, "出发", "到达", nil},
		[]any{"2024-01-01", "北京", "上海", 800},
	)
	g.Merges = []internal.MergeRange{
		{StartRow: 0, StartCol: 1, EndRow: 0, EndCol: 2},
		{StartRow: 0, StartCol: 0, EndRow: 1, EndCol: 0},
		{StartRow: 0, StartCol: 3, EndRow: 1, EndCol: 3},
	}
	a := Infer(g)
	if a.HeaderRegion == nil || a.HeaderRegion.EndRow != 1 {
		t.Fatalf("header region=%+v", a.HeaderRegion)
	}
	if len(a.FieldHierarchy) != 4 {
		t.Fatalf("hierarchy=%+v", a.FieldHierarchy)
	}
	arrive := a.FieldHierarchy[2]
	if arrive.FullPath != "行程.到达" || arrive.Parent != "行程" || arrive.Level != 1 || arrive.ColumnIndex != 2 {
		t.Fatalf("arrive=%+v", arrive)
	}
	if a.FieldHierarchy[0].FullPath != "日期" || a.FieldHierarchy[0].Level != 0 {
		t.Fatalf("vertical merge should stay one level: %+v", a.FieldHierarchy[0])
	}
	if a.DataStartRow != 1 {
		t.Fatalf("heuristic data start must stay headerRow+1, got %d", a.DataStartRow)
	}
}

func TestMatchEntriesByName(t *testing.T) {
	sheets := []SheetInput{
		{Name: "机票明细", Grid: grid([]any{"日期", "航班"}, []any{"2024-01-01", "CA1"})},
		{Name: "Sheet1", Grid: grid([]any{"a", "b"}, []any{1, 2})},
		{Name: "Sheet2", Grid: grid([]any{"a", "b"}, []any{1, 2})},
	}
	entries := []map[string]any{
		{"name": "SHEET2 ", "type": "standard", "confidence": 0.7},
		{"name": "机票明细表", "type": "standard", "confidence": 0.9},
	}

	got := matchEntries(sheets, entries)
	if got[0].Source != SourceAI || got[0].Confidence != 0.9 || got[0].Name != "机票明细" {
		t.Fatalf("fuzzy name: %+v", got[0])
	}
	if got[1].Source != SourceHeuristic {
		t.Fatalf("Sheet1 must not take Sheet2's entry: %+v", got[1])
	}
	if got[2].Source != SourceAI || got[2].Confidence != 0.7 {
		t.Fatalf("case-insensitive name: %+v", got[2])
	}
}

func TestReplyHeaderRowOutsideGrid(t *testing.T) {
	g := grid([]any{"日期", "金额"}, []any{"2024-01-01", 10}, []any{"2024-01-02", 20})

	r := normalizeSheet(map[string]any{"name": "S", "type": "standard", "headerRow": 7.0}, &g)
	if r.HeaderRow != 0 || r.DataStartRow != 1 || strings.Join(r.Fields, ",") != "日期,金额" {
		t.Fatalf("header row not pulled back into the grid: %+v", r)
	}

	// A reply whose fields cannot be recovered from the grid loses to the
	// heuristic when the heuristic finds a header.
	sparse := grid([]any{"标题"}, []any{"日期", "金额"}, []any{"2024-01-01", 10})
	got := matchEntries(
		[]SheetInput{{Name: "S", Grid: sparse}},
		[]map[string]any{{"name": "S", "type": "standard", "headerRow": nil}},
	)
	if got[0].Source != SourceHeuristic || len(got[0].Fields) == 0 {
		t.Fatalf("expected heuristic fallback: %+v", got[0])
	}

	s := ToStructure(got[0], sparse)
	if s.Status != internal.StatusCompleted || len(s.Fields) == 0 {
		t.Fatalf("structure=%+v", s)
	}
}
