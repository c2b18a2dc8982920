package sheets

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"dataclean/internal"
	"dataclean/internal/util"
)

func loadXLSX(content []byte, opts LoadOptions) ([]LoadedSheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []LoadedSheet{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}

		values := make([][]any, len(rows))
		for r, row := range rows {
			values[r] = make([]any, len(row))
			for c, raw := range row {
				values[r][c] = util.ParseValue(raw)
			}
		}
		grid := gridFromValues(values, opts.MaxRows)

		if merges, err := f.GetMergeCells(name); err == nil {
			for _, mc := range merges {
				sc, sr, err1 := excelize.CellNameToCoordinates(mc.GetStartAxis())
				ec, er, err2 := excelize.CellNameToCoordinates(mc.GetEndAxis())
				if err1 != nil || err2 != nil {
					continue
				}
				grid.Merges = append(grid.Merges, internal.MergeRange{
					StartRow: sr - 1, StartCol: sc - 1, EndRow: er - 1, EndCol: ec - 1,
				})
			}
		}
		markMerges(&grid)
		if opts.Formulas {
			attachFormulas(f, name, &grid)
		}

		visible, err := f.GetSheetVisible(name)
		if err != nil {
			visible = true
		}

		out = append(out, LoadedSheet{Name: name, Hidden: !visible, Grid: grid})
	}
	return out, nil
}

// attachFormulas records the formula text for every non-empty cell that has
// one. Only cells already in the grid are inspected.
func attachFormulas(f *excelize.File, sheet string, grid *internal.RawSheetData) {
	for r := range grid.Cells {
		for c := range grid.Cells[r] {
			if grid.Cells[r][c].Value == nil {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			formula, err := f.GetCellFormula(sheet, axis)
			if err == nil && formula != "" {
				grid.Cells[r][c].Formula = formula
			}
		}
	}
}
