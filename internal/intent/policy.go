package intent

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dataclean/internal/config"
)

// Band is what the orchestrator does with an intent of a given confidence.
type Band int

const (
	// BandClarify: do not run, ask the user to rephrase.
	BandClarify Band = iota
	// BandDisclose: run, then tell the user what was understood.
	BandDisclose
	// BandExecute: run silently.
	BandExecute
)

func (b Band) String() string {
	switch b {
	case BandExecute:
		return "execute"
	case BandDisclose:
		return "disclose"
	default:
		return "clarify"
	}
}

// Policy holds the thresholds and vocabulary the parser and orchestrator
// share. The zero value is not useful; start from DefaultPolicy.
type Policy struct {
	ExecuteThreshold  float64  `yaml:"execute_threshold"`
	DiscloseThreshold float64  `yaml:"disclose_threshold"`
	TargetBonus       float64  `yaml:"target_bonus"`
	Keywords          Keywords `yaml:"keywords"`
	Targets           []Target `yaml:"targets"`
}

type Keywords struct {
	Strong    []string `yaml:"strong"`
	Weak      []string `yaml:"weak"`
	Analyze   []string `yaml:"analyze"`
	Transform []string `yaml:"transform"`
}

// Target is a domain label plus the other words that mean it.
type Target struct {
	Label   string   `yaml:"label"`
	Aliases []string `yaml:"aliases"`
}

func DefaultPolicy() Policy {
	return Policy{
		ExecuteThreshold:  0.8,
		DiscloseThreshold: 0.5,
		TargetBonus:       0.05,
		Keywords: Keywords{
			Strong:    []string{"提取", "导出", "保存", "下载", "extract", "export", "save", "download"},
			Weak:      []string{"我要", "给我", "拿出", "找出", "i want", "give me", "find", "get me"},
			Analyze:   []string{"分析", "统计", "查看", "检查", "看看", "analyze", "analyse", "stats", "statistics", "check", "look"},
			Transform: []string{"转换", "转成", "转为", "转json", "转csv", "转excel", "convert", "to json", "to csv", "to excel"},
		},
		Targets: []Target{
			{Label: "机票", Aliases: []string{"flight"}},
			{Label: "酒店", Aliases: []string{"hotel"}},
			{Label: "火车", Aliases: []string{"train"}},
			{Label: "用车", Aliases: []string{"car"}},
			{Label: "对账单", Aliases: []string{"statement"}},
		},
	}
}

// TargetLabels lists the canonical target labels in order.
func (p Policy) TargetLabels() []string {
	out := make([]string, 0, len(p.Targets))
	for _, t := range p.Targets {
		out = append(out, t.Label)
	}
	return out
}

// Band places a confidence into one of the three bands.
func (p Policy) Band(confidence float64) Band {
	switch {
	case confidence >= p.ExecuteThreshold:
		return BandExecute
	case confidence >= p.DiscloseThreshold:
		return BandDisclose
	default:
		return BandClarify
	}
}

func (p Policy) validate() error {
	if p.DiscloseThreshold < 0 || p.ExecuteThreshold > 1 || p.DiscloseThreshold > p.ExecuteThreshold {
		return fmt.Errorf("intent thresholds out of order: disclose=%v execute=%v", p.DiscloseThreshold, p.ExecuteThreshold)
	}
	if p.TargetBonus < 0 {
		return fmt.Errorf("intent target bonus must not be negative: %v", p.TargetBonus)
	}
	return nil
}

type policyFile struct {
	ExecuteThreshold  *float64 `yaml:"execute_threshold"`
	DiscloseThreshold *float64 `yaml:"disclose_threshold"`
	TargetBonus       *float64 `yaml:"target_bonus"`
	Keywords          Keywords `yaml:"keywords"`
	Targets           []Target `yaml:"targets"`
}

// PolicyFromConfig starts from the env thresholds and, when
// INTENT_POLICY_PATH is set, lets the YAML file override them and extend
// the keyword and target lists.
func PolicyFromConfig(cfg config.Config) (Policy, error) {
	p := DefaultPolicy()
	p.ExecuteThreshold = cfg.IntentExecuteThreshold
	p.DiscloseThreshold = cfg.IntentDiscloseThreshold
	p.TargetBonus = cfg.IntentTargetBonus

	if path := strings.TrimSpace(cfg.IntentPolicyPath); path != "" {
		blob, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Policy{}, err
		}
		if err == nil {
			if p, err = MergePolicy(p, blob); err != nil {
				return Policy{}, fmt.Errorf("intent policy %s: %w", path, err)
			}
		}
	}
	return p, p.validate()
}

// MergePolicy applies a YAML document on top of base.
func MergePolicy(base Policy, blob []byte) (Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return Policy{}, err
	}
	if f.ExecuteThreshold != nil {
		base.ExecuteThreshold = *f.ExecuteThreshold
	}
	if f.DiscloseThreshold != nil {
		base.DiscloseThreshold = *f.DiscloseThreshold
	}
	if f.TargetBonus != nil {
		base.TargetBonus = *f.TargetBonus
	}
	base.Keywords.Strong = appendNew(base.Keywords.Strong, f.Keywords.Strong)
	base.Keywords.Weak = appendNew(base.Keywords.Weak, f.Keywords.Weak)
	base.Keywords.Analyze = appendNew(base.Keywords.Analyze, f.Keywords.Analyze)
	base.Keywords.Transform = appendNew(base.Keywords.Transform, f.Keywords.Transform)

	for _, t := range f.Targets {
		t.Label = strings.TrimSpace(t.Label)
		if t.Label == "" {
			continue
		}
		merged := false
		for i := range base.Targets {
			if base.Targets[i].Label == t.Label {
				base.Targets[i].Aliases = appendNew(base.Targets[i].Aliases, t.Aliases)
				merged = true
				break
			}
		}
		if !merged {
			base.Targets = append(base.Targets, t)
		}
	}
	return base, base.validate()
}

func appendNew(list, extra []string) []string {
	out := append([]string(nil), list...)
	for _, e := range extra {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		dup := false
		for _, have := range out {
			if have == e {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}
