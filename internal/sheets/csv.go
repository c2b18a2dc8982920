package sheets

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"

	"dataclean/internal/util"
)

var utf8BOM = []byte("\xef\xbb\xbf")

func loadCSV(content []byte, name string, opts LoadOptions) ([]LoadedSheet, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyFile
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = detectDelimiter(content, name)
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	values := make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(rec))
		for i, raw := range rec {
			row[i] = util.ParseValue(raw)
		}
		values = append(values, row)
	}
	return []LoadedSheet{{Name: CSVSheetName(name), Grid: gridFromValues(values, opts.MaxRows)}}, nil
}

// detectDelimiter prefers tab for .tsv files, otherwise whichever of comma,
// semicolon or tab shows up most in the first line.
func detectDelimiter(content []byte, name string) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	first := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		first = content[:i]
	}
	best, bestCount := ',', bytes.Count(first, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(first, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// CSVSheetName is the name the CSV loader gives the single sheet of name.
func CSVSheetName(name string) string {
	base := util.TrimExt(filepath.Base(name))
	if base == "" || base == "." {
		return "Sheet1"
	}
	return base
}
