package sheets

import (
	"bytes"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"dataclean/internal/util"
)

var pdfColumnSplit = regexp.MustCompile(`\t+|\s{2,}`)

// loadPDF flattens text pages into a single sheet. Runs of two or more
// spaces separate columns, which matches most exported statements.
func loadPDF(content []byte, opts LoadOptions) ([]LoadedSheet, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	values := [][]any{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			parts := pdfColumnSplit.Split(line, -1)
			row := make([]any, len(parts))
			for j, part := range parts {
				row[j] = util.ParseValue(part)
			}
			values = append(values, row)
		}
	}
	if len(values) == 0 {
		return nil, nil
	}
	return []LoadedSheet{{Name: "PDF", Grid: gridFromValues(values, opts.MaxRows)}}, nil
}
