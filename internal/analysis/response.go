package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// parseResponse pulls the first JSON object out of free text: a fenced json
// block wins, otherwise the first balanced brace span.
func parseResponse(text string) (map[string]any, bool) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	depth, end := 0, len(text)
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
		}
		if depth == 0 {
			end = i + 1
			break
		}
	}
	return decodeObject(text[start:end])
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// sheetList finds the per-sheet array under any of the known envelopes.
func sheetList(parsed map[string]any) ([]map[string]any, bool) {
	candidates := []any{parsed["sheets"]}
	for _, env := range sheetEnvelopes {
		if inner, ok := parsed[env].(map[string]any); ok {
			candidates = append(candidates, inner["sheets"])
		}
	}
	for _, c := range candidates {
		arr, ok := c.([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(arr))
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, true
	}
	return nil, false
}
