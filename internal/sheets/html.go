package sheets

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"dataclean/internal"
	"dataclean/internal/util"
)

// loadHTML reads every <table> as its own sheet. colspan and rowspan become
// merges with the value kept in the top-left cell.
func loadHTML(content []byte, opts LoadOptions) ([]LoadedSheet, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	if err != nil {
		return nil, err
	}

	out := []LoadedSheet{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		values, merges := tableGrid(table)
		if len(values) == 0 {
			return
		}
		grid := gridFromValues(values, opts.MaxRows)
		grid.Merges = merges
		markMerges(&grid)
		out = append(out, LoadedSheet{Name: fmt.Sprintf("Table%d", i+1), Grid: grid})
	})
	return out, nil
}

func tableGrid(table *goquery.Selection) ([][]any, []internal.MergeRange) {
	values := [][]any{}
	merges := []internal.MergeRange{}
	// occupied[r][c] marks slots already filled by a rowspan from above.
	occupied := map[int]map[int]bool{}

	table.Find("tr").Each(func(r int, tr *goquery.Selection) {
		for len(values) <= r {
			values = append(values, []any{})
		}
		c := 0
		tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			for occupied[r][c] {
				c++
			}
			colspan := spanAttr(cell, "colspan")
			rowspan := spanAttr(cell, "rowspan")

			setCell(&values, r, c, util.ParseValue(util.NormalizeSpaces(cell.Text())))
			for dr := 0; dr < rowspan; dr++ {
				for dc := 0; dc < colspan; dc++ {
					if occupied[r+dr] == nil {
						occupied[r+dr] = map[int]bool{}
					}
					occupied[r+dr][c+dc] = true
					if dr > 0 || dc > 0 {
						setCell(&values, r+dr, c+dc, nil)
					}
				}
			}
			if colspan > 1 || rowspan > 1 {
				merges = append(merges, internal.MergeRange{
					StartRow: r, StartCol: c, EndRow: r + rowspan - 1, EndCol: c + colspan - 1,
				})
			}
			c += colspan
		})
	})
	return values, merges
}

func setCell(values *[][]any, r, c int, v any) {
	for len(*values) <= r {
		*values = append(*values, []any{})
	}
	row := (*values)[r]
	for len(row) <= c {
		row = append(row, nil)
	}
	row[c] = v
	(*values)[r] = row
}

func spanAttr(cell *goquery.Selection, name string) int {
	raw, ok := cell.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
