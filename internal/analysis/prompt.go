package analysis

import (
	"fmt"
	"strings"

	"dataclean/internal"
	"dataclean/internal/util"
)

const batchSheetAnalysisPrompt = `分析 Excel 工作表，找出表头位置和字段名。

我会提供每个 sheet 的前若干行原始数据。

你的任务：
1. 看数据，判断哪一行是表头（列标题）
2. 判断数据从哪一行开始
3. **提取表头那一行的所有字段名称，放到 fields 数组中**

返回 JSON：
{
  "sheets": [
    {
      "name": "sheet名称",
      "type": "standard" | "irregular",
      "headerRow": 数字,
      "dataStartRow": 数字,
      "fields": ["字段1", "字段2", "字段3", ...],
      "confidence": 0.9
    }
  ]
}

重要：
- type 为 standard 时，必须返回完整的 fields 数组（包含所有列名）
- type 为 irregular 时，fields 可以为空数组
- headerRow 从 0 开始计数

只返回 JSON。`

const emptyCellMarker = "(空)"

// renderPreview prints the first maxRows rows of a grid, one line per row.
func renderPreview(grid internal.RawSheetData, maxRows int) string {
	rows := grid.Cells
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		values := make([]string, len(row))
		for j, c := range row {
			s := util.CellString(c.Value)
			if s == "" {
				s = emptyCellMarker
			}
			values[j] = s
		}
		lines = append(lines, fmt.Sprintf("  Row %d: %s", i, strings.Join(values, " | ")))
	}
	return strings.Join(lines, "\n")
}

func buildUserMessage(sheets []SheetInput, maxRows int) string {
	blocks := make([]string, 0, len(sheets))
	for i, s := range sheets {
		blocks = append(blocks, fmt.Sprintf("\n=== Sheet %d: %s ===\n%s\n(共 %d 处合并单元格)",
			i+1, s.Name, renderPreview(s.Grid, maxRows), len(s.Grid.Merges)))
	}
	return fmt.Sprintf("请分析以下 %d 个 Excel 工作表，找出每个 sheet 的表头位置：\n%s\n\n返回 JSON。",
		len(sheets), strings.Join(blocks, "\n"))
}
