package analysis

import (
	"context"
	"log/slog"

	"dataclean/internal"
	"dataclean/internal/llm"
	"dataclean/internal/util"
)

type Source string

const (
	SourceAI        Source = "ai"
	SourceHeuristic Source = "heuristic"
)

type SheetInput struct {
	Name string
	Grid internal.RawSheetData
}

// SheetAnalysisResult is one sheet's inferred layout before it is attached to
// the sheet as a StructureAnalysis.
type SheetAnalysisResult struct {
	Name         string             `json:"name"`
	Type         internal.SheetType `json:"type"`
	TypeReason   string             `json:"typeReason,omitempty"`
	HeaderRow    int                `json:"headerRow"`
	DataStartRow int                `json:"dataStartRow"`
	Fields       []string           `json:"fields"`
	Confidence   float64            `json:"confidence"`
	Source       Source             `json:"source"`
}

// ProgressFunc receives coarse milestones, not per-row updates.
type ProgressFunc func(current, total int, label string)

type Config struct {
	// Provider is the text-generation service. Nil means heuristic only.
	Provider    llm.Provider
	PreviewRows int
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.PreviewRows <= 0 {
		c.PreviewRows = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	cfg.defaults()
	return &Analyzer{cfg: cfg}
}

// AnalyzeAll returns one result per input, in input order. Any transport or
// parse failure degrades the whole batch to Infer.
func (a *Analyzer) AnalyzeAll(ctx context.Context, sheets []SheetInput, progress ProgressFunc) []SheetAnalysisResult {
	if progress == nil {
		progress = func(int, int, string) {}
	}
	total := len(sheets)
	progress(0, total, "")
	if total == 0 {
		return []SheetAnalysisResult{}
	}

	if a.cfg.Provider == nil {
		a.cfg.Logger.Debug("no text-generation provider; using heuristic", "sheets", total)
		out := heuristicAll(sheets)
		progress(total, total, "分析完成")
		return out
	}

	progress(1, total, "请求 AI 分析...")
	reply, err := a.cfg.Provider.Complete(ctx, llm.Request{
		System:      batchSheetAnalysisPrompt,
		Messages:    []llm.Message{{Role: "user", Content: buildUserMessage(sheets, a.cfg.PreviewRows)}},
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		a.cfg.Logger.Warn("sheet analysis request failed; using heuristic", "provider", a.cfg.Provider.Name(), "sheets", total, "err", err)
		out := heuristicAll(sheets)
		progress(total, total, "分析完成")
		return out
	}

	progress(2, total, "解析结果...")
	parsed, ok := parseResponse(reply)
	var entries []map[string]any
	if ok {
		entries, ok = sheetList(parsed)
	}
	if !ok {
		a.cfg.Logger.Warn("sheet analysis reply not understood; using heuristic", "provider", a.cfg.Provider.Name(), "reply", truncate(reply, 200))
		out := heuristicAll(sheets)
		progress(total, total, "分析完成")
		return out
	}

	out := matchEntries(sheets, entries)
	fallbacks := 0
	for _, r := range out {
		if r.Source == SourceHeuristic {
			fallbacks++
		}
	}
	a.cfg.Logger.Info("sheet analysis done", "provider", a.cfg.Provider.Name(), "sheets", total, "heuristic_fallbacks", fallbacks)
	progress(total, total, "分析完成")
	return out
}

// minNameSimilarity is the bigram similarity a reply name needs to stand in
// for a sheet name it does not spell exactly.
const minNameSimilarity = 0.8

// matchEntries pairs reply entries with inputs by name: exact first, then
// ignoring case and spacing, then the closest name by bigram similarity
// among entries that name no input at all. Inputs nobody answered for get
// the heuristic.
func matchEntries(sheets []SheetInput, entries []map[string]any) []SheetAnalysisResult {
	used := make([]bool, len(entries))
	inputs := make(map[string]bool, len(sheets))
	for _, s := range sheets {
		inputs[util.NormalizeHeader(s.Name)] = true
	}
	find := func(name string) int {
		for i, e := range entries {
			if !used[i] && firstString(e, nameKeys) == name {
				return i
			}
		}
		key := util.NormalizeHeader(name)
		for i, e := range entries {
			if !used[i] && util.NormalizeHeader(firstString(e, nameKeys)) == key {
				return i
			}
		}
		best, bestScore := -1, minNameSimilarity
		for i, e := range entries {
			other := util.NormalizeHeader(firstString(e, nameKeys))
			if used[i] || inputs[other] {
				continue
			}
			score := util.DiceCoefficient(key, other)
			if score >= bestScore {
				best, bestScore = i, score
			}
		}
		return best
	}

	out := make([]SheetAnalysisResult, len(sheets))
	for i, s := range sheets {
		j := find(s.Name)
		if j < 0 {
			out[i] = inferResult(s.Name, s.Grid)
			continue
		}
		used[j] = true
		grid := s.Grid
		r := normalizeSheet(entries[j], &grid)
		r.Name = s.Name
		if len(r.Fields) == 0 {
			// No fields from the reply: the heuristic reading wins if it has any.
			if h := inferResult(s.Name, s.Grid); len(h.Fields) > 0 {
				r = h
			}
		}
		out[i] = r
	}
	return out
}

func heuristicAll(sheets []SheetInput) []SheetAnalysisResult {
	out := make([]SheetAnalysisResult, len(sheets))
	for i, s := range sheets {
		out[i] = inferResult(s.Name, s.Grid)
	}
	return out
}

// ToStructure converts a result into the analysis stored on a sheet. The
// status is failed only when no field list was found and the grid has no
// data in its first rows either.
func ToStructure(r SheetAnalysisResult, grid internal.RawSheetData) internal.StructureAnalysis {
	out := internal.StructureAnalysis{
		SheetType:    r.Type,
		Reason:       r.TypeReason,
		HeaderRow:    r.HeaderRow,
		DataStartRow: r.DataStartRow,
		Fields:       r.Fields,
		Confidence:   r.Confidence,
		Status:       internal.StatusCompleted,
	}
	if out.Fields == nil {
		out.Fields = []string{}
	}
	if len(out.Fields) == 0 && !hasData(grid, recoveryScanRows) {
		out.Status = internal.StatusFailed
		out.Error = "未能从工作表中识别出字段"
		return out
	}
	attachHierarchy(&out, grid)
	return out
}

// AnalyzeSheets runs one batch over every sheet carrying a raw grid and
// attaches the outcome. Sheets move pending, analyzing, then completed or
// failed. The returned results cover only the sheets that had a grid.
func (a *Analyzer) AnalyzeSheets(ctx context.Context, sheets []internal.Sheet, progress ProgressFunc) []SheetAnalysisResult {
	inputs := []SheetInput{}
	index := []int{}
	for i := range sheets {
		if sheets[i].RawData == nil {
			continue
		}
		sheets[i].StructureAnalysis = &internal.StructureAnalysis{Status: internal.StatusAnalyzing, Fields: []string{}}
		inputs = append(inputs, SheetInput{Name: sheets[i].Name, Grid: *sheets[i].RawData})
		index = append(index, i)
	}
	results := a.AnalyzeAll(ctx, inputs, progress)
	for k, i := range index {
		s := ToStructure(results[k], *sheets[i].RawData)
		sheets[i].StructureAnalysis = &s
	}
	return results
}

// Pending marks every sheet with a grid as awaiting analysis.
func Pending(sheets []internal.Sheet) {
	for i := range sheets {
		if sheets[i].RawData != nil {
			sheets[i].StructureAnalysis = &internal.StructureAnalysis{Status: internal.StatusPending, Fields: []string{}}
		}
	}
}

func hasData(grid internal.RawSheetData, rows int) bool {
	for r := 0; r < len(grid.Cells) && r < rows; r++ {
		for _, c := range grid.Cells[r] {
			if !util.IsBlank(c.Value) {
				return true
			}
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
