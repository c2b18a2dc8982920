package intent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dataclean/internal"
	"dataclean/internal/config"
)

func TestParse(t *testing.T) {
	cases := []struct {
		command    string
		typ        internal.IntentType
		target     string
		confidence float64
	}{
		{command: "提取机票数据", typ: internal.IntentExtract, target: "机票", confidence: 0.95},
		{command: "导出全部", typ: internal.IntentExtract, confidence: 0.9},
		{command: "我要酒店的记录", typ: internal.IntentExtract, target: "酒店", confidence: 0.6},
		{command: "我要一杯咖啡", typ: internal.IntentUnknown, confidence: 0},
		{command: "分析一下火车票", typ: internal.IntentAnalyze, target: "火车", confidence: 0.85},
		{command: "转成 JSON", typ: internal.IntentTransform, confidence: 0.9},
		{command: "转成json", typ: internal.IntentTransform, confidence: 0.9},
		{command: "Export the FLIGHT sheet", typ: internal.IntentExtract, target: "机票", confidence: 0.95},
		{command: "give me hotel rows", typ: internal.IntentExtract, target: "酒店", confidence: 0.6},
		{command: "convert to csv", typ: internal.IntentTransform, confidence: 0.9},
		{command: "check my card", typ: internal.IntentAnalyze, confidence: 0.85},
		{command: "今天天气怎么样", typ: internal.IntentUnknown, confidence: 0},
		{command: "", typ: internal.IntentUnknown, confidence: 0},
	}
	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			got := Parse(tc.command)
			if got.Type != tc.typ || got.Target != tc.target {
				t.Fatalf("got %+v", got)
			}
			if diff := got.Confidence - tc.confidence; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("confidence=%v want %v", got.Confidence, tc.confidence)
			}
			if got.Reason == "" {
				t.Fatalf("reason must be set")
			}
		})
	}
}

func TestParseReasons(t *testing.T) {
	if r := Parse("提取机票数据").Reason; r != "包含强关键词: 提取, 识别目标: 机票" {
		t.Fatalf("strong reason=%q", r)
	}
	if r := Parse("给我用车记录").Reason; r != "包含弱关键词: 给我 + 目标: 用车" {
		t.Fatalf("weak reason=%q", r)
	}
	if r := Parse("hello").Reason; r != "未匹配到任何关键词" {
		t.Fatalf("unknown reason=%q", r)
	}
}

func TestConfidenceTiersAreMonotone(t *testing.T) {
	p := DefaultPolicy()
	for _, kw := range p.Keywords.Strong {
		if c := Parse(kw + " 数据").Confidence; c < 0.8 {
			t.Fatalf("strong %q scored %v", kw, c)
		}
	}
	for _, kw := range p.Keywords.Weak {
		c := Parse(kw + " 对账单").Confidence
		if c < 0.5 || c >= 0.8 {
			t.Fatalf("weak %q scored %v", kw, c)
		}
	}
}

func TestBand(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		confidence float64
		want       Band
	}{
		{1, BandExecute},
		{0.8, BandExecute},
		{0.79, BandDisclose},
		{0.5, BandDisclose},
		{0.49, BandClarify},
		{0, BandClarify},
	}
	for _, tc := range cases {
		if got := p.Band(tc.confidence); got != tc.want {
			t.Fatalf("band(%v)=%s want %s", tc.confidence, got, tc.want)
		}
	}
}

func TestMessages(t *testing.T) {
	in := internal.Intent{Type: internal.IntentExtract, Target: "酒店", Confidence: 0.6}
	want := "\n\n💡 提示: 系统以 60% 的置信度识别您的意图为\"提取数据(酒店)\"，如果不正确请尝试更明确的指令（如\"提取机票数据\"）。"
	if got := Disclosure(in); got != want {
		t.Fatalf("disclosure=%q", got)
	}
	c := Clarification(internal.Intent{Type: internal.IntentUnknown})
	if !strings.HasPrefix(c, "无法确定您的意图（置信度 0%）。") || !strings.Contains(c, "3️⃣ 转换格式") {
		t.Fatalf("clarification=%q", c)
	}
}

func TestPolicyFromConfigWithYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := `
execute_threshold: 0.9
targets:
  - label: 机票
    aliases: [航班]
  - label: 餐饮
    aliases: [meal]
keywords:
  strong: [Grab]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{
		IntentExecuteThreshold:  0.8,
		IntentDiscloseThreshold: 0.4,
		IntentTargetBonus:       0.05,
		IntentPolicyPath:        path,
	}
	p, err := PolicyFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p.ExecuteThreshold != 0.9 || p.DiscloseThreshold != 0.4 {
		t.Fatalf("thresholds=%v/%v", p.ExecuteThreshold, p.DiscloseThreshold)
	}
	parser := NewParser(p)
	if got := parser.Parse("grab the meal rows"); got.Type != internal.IntentExtract || got.Target != "餐饮" {
		t.Fatalf("yaml keywords not applied: %+v", got)
	}
	if got := parser.Parse("导出航班"); got.Target != "机票" {
		t.Fatalf("alias not merged: %+v", got)
	}

	cfg.IntentPolicyPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := PolicyFromConfig(cfg); err != nil {
		t.Fatalf("missing policy file should be ignored: %v", err)
	}

	cfg.IntentPolicyPath = ""
	cfg.IntentDiscloseThreshold = 0.95
	if _, err := PolicyFromConfig(cfg); err == nil {
		t.Fatalf("disclose above execute must be rejected")
	}
}
