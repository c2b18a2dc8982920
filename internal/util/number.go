package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reNumeric      = regexp.MustCompile(`^[-+]?(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)$`)
	reThousandDot  = regexp.MustCompile(`^[-+]?\d{1,3}(?:\.\d{3})+$`)
	reThousandComa = regexp.MustCompile(`^[-+]?\d{1,3}(?:,\d{3})+$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"2006年01月02日",
	"2006年1月2日",
}

// ParseNumber accepts plain, comma-decimal and thousand-grouped numbers
// ("1 000", "1.000", "1,5"). Leading zeros other than "0" itself are kept
// as text so codes like "00123" survive.
func ParseNumber(token string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(token, "\u00a0", " "))
	if s == "" || !reNumeric.MatchString(s) {
		return 0, false
	}
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' && digits[1] != ',' {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(s), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if reThousandDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if reThousandComa.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}

func ParseDate(token string) (time.Time, bool) {
	s := strings.TrimSpace(token)
	if len(s) < 6 {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseValue turns raw text into int, float64, bool or the trimmed string.
func ParseValue(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if f, ok := ParseNumber(s); ok {
		if f == float64(int64(f)) && !strings.ContainsAny(s, ".,") {
			return int64(f)
		}
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
