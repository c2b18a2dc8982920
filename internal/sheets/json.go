package sheets

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// loadJSON accepts an array of objects or a single object. The header row is
// the union of keys in first-seen order.
func loadJSON(content []byte, opts LoadOptions) ([]LoadedSheet, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, ErrEmptyFile
	}
	if trimmed[0] == '{' {
		trimmed = append(append([]byte{'['}, trimmed...), ']')
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	headers := []string{}
	seen := map[string]int{}
	rows := make([]map[string]any, 0, len(records))
	for _, raw := range records {
		keys, obj, err := orderedObject(raw)
		if err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = len(headers)
				headers = append(headers, k)
			}
		}
		rows = append(rows, obj)
	}
	if len(headers) == 0 {
		return nil, ErrEmptyFile
	}

	values := make([][]any, 0, len(rows)+1)
	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	values = append(values, head)
	for _, obj := range rows {
		row := make([]any, len(headers))
		for k, v := range obj {
			row[seen[k]] = jsonCell(v)
		}
		values = append(values, row)
	}
	return []LoadedSheet{{Name: "Data", Grid: gridFromValues(values, opts.MaxRows)}}, nil
}

// orderedObject decodes one JSON object keeping its key order.
func orderedObject(raw json.RawMessage) ([]string, map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	keys := []string{}
	obj := map[string]any{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := kt.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := obj[key]; !dup {
			keys = append(keys, key)
		}
		obj[key] = v
	}
	return keys, obj, nil
}

func jsonCell(v any) any {
	switch t := v.(type) {
	case nil, bool:
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case string:
		if t == "" {
			return nil
		}
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
