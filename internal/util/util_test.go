package util

import "testing"

func TestParseNumber(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{name: "thousand with space", input: "1 000", want: 1000, ok: true},
		{name: "decimal comma", input: "1,5", want: 1.5, ok: true},
		{name: "decimal dot", input: "1.5", want: 1.5, ok: true},
		{name: "thousand dot", input: "1.000", want: 1000, ok: true},
		{name: "thousand comma", input: "12,345,678", want: 12345678, ok: true},
		{name: "negative", input: "-42", want: -42, ok: true},
		{name: "zero", input: "0", want: 0, ok: true},
		{name: "leading zero code", input: "00123", ok: false},
		{name: "text", input: "CA1234", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseNumber(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok=%v want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	if v, ok := ParseValue("12").(int64); !ok || v != 12 {
		t.Fatalf("int parse: %#v", ParseValue("12"))
	}
	if v, ok := ParseValue("12.5").(float64); !ok || v != 12.5 {
		t.Fatalf("float parse: %#v", ParseValue("12.5"))
	}
	if ParseValue("  ") != nil {
		t.Fatalf("blank should be nil")
	}
	if ParseValue("TRUE") != true {
		t.Fatalf("bool parse")
	}
	if ParseValue("上海") != "上海" {
		t.Fatalf("string parse")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"机票明细":           "机票明细",
		"Sheet 1 (copy)": "Sheet_1__copy_",
		"酒店-2024/01":     "酒店_2024_01",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestTrimExt(t *testing.T) {
	if got := TrimExt("/tmp/携程.对账单.xlsx"); got != "携程.对账单" {
		t.Fatalf("got %q", got)
	}
	if got := TrimExt("README"); got != "README" {
		t.Fatalf("got %q", got)
	}
}

func TestCellString(t *testing.T) {
	if CellString(3.0) != "3" || CellString(2.5) != "2.5" || CellString(nil) != "" {
		t.Fatalf("unexpected rendering")
	}
	if !IsBlank(" ") || !IsBlank(nil) || IsBlank(0) {
		t.Fatalf("IsBlank mismatch")
	}
}

func TestDiceCoefficient(t *testing.T) {
	if DiceCoefficient("机票明细", "机票明细") != 1 {
		t.Fatalf("identical strings should score 1")
	}
	if DiceCoefficient("机票明细", "酒店明细") <= DiceCoefficient("机票明细", "汇总") {
		t.Fatalf("shared bigrams should rank higher")
	}
}
