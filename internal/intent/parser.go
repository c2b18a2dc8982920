// Package intent turns a free-text command into a typed intent with a
// confidence, and decides from that confidence whether to act on it.
package intent

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"dataclean/internal"
)

const (
	strongConfidence    = 0.9
	weakConfidence      = 0.6
	analyzeConfidence   = 0.85
	transformConfidence = 0.9
)

// matcher finds a keyword in lowercased text. ASCII words match on word
// boundaries so "car" does not fire inside "card"; everything else is a
// plain substring match.
type matcher struct {
	word string
	re   *regexp.Regexp
}

func newMatcher(word string) matcher {
	word = strings.ToLower(strings.TrimSpace(word))
	m := matcher{word: word}
	if isASCII(word) {
		m.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	}
	return m
}

func (m matcher) in(text string) bool {
	if m.word == "" {
		return false
	}
	if m.re != nil {
		return m.re.MatchString(text)
	}
	return strings.Contains(text, m.word)
}

type targetMatcher struct {
	label    string
	matchers []matcher
}

type Parser struct {
	policy    Policy
	strong    []matcher
	weak      []matcher
	analyze   []matcher
	transform []matcher
	targets   []targetMatcher
}

func NewParser(policy Policy) *Parser {
	p := &Parser{
		policy:    policy,
		strong:    matchers(policy.Keywords.Strong),
		weak:      matchers(policy.Keywords.Weak),
		analyze:   matchers(policy.Keywords.Analyze),
		transform: matchers(policy.Keywords.Transform),
	}
	for _, t := range policy.Targets {
		tm := targetMatcher{label: t.Label, matchers: matchers(append([]string{t.Label}, t.Aliases...))}
		p.targets = append(p.targets, tm)
	}
	return p
}

var defaultParser = NewParser(DefaultPolicy())

// Parse uses the default keyword sets.
func Parse(command string) internal.Intent {
	return defaultParser.Parse(command)
}

func (p *Parser) Policy() Policy { return p.policy }

// Parse is pure and total. Rules are tried strongest first and the first
// hit wins. The target is attached whatever the type.
func (p *Parser) Parse(command string) internal.Intent {
	lower := strings.ToLower(command)
	target := p.findTarget(lower)

	if hits := found(p.strong, lower); len(hits) > 0 {
		confidence := strongConfidence
		reason := "包含强关键词: " + strings.Join(hits, ", ")
		if target != "" {
			confidence += p.policy.TargetBonus
			reason += ", 识别目标: " + target
		}
		return internal.Intent{Type: internal.IntentExtract, Target: target, Confidence: math.Min(confidence, 1), Reason: reason}
	}

	if hits := found(p.weak, lower); len(hits) > 0 && target != "" {
		return internal.Intent{
			Type:       internal.IntentExtract,
			Target:     target,
			Confidence: weakConfidence,
			Reason:     fmt.Sprintf("包含弱关键词: %s + 目标: %s", strings.Join(hits, ", "), target),
		}
	}

	if hits := found(p.analyze, lower); len(hits) > 0 {
		return internal.Intent{Type: internal.IntentAnalyze, Target: target, Confidence: analyzeConfidence, Reason: "包含关键词: " + strings.Join(hits, ", ")}
	}

	if hits := found(p.transform, lower); len(hits) > 0 {
		return internal.Intent{Type: internal.IntentTransform, Target: target, Confidence: transformConfidence, Reason: "包含关键词: " + strings.Join(hits, ", ")}
	}

	return internal.Intent{Type: internal.IntentUnknown, Target: target, Confidence: 0, Reason: "未匹配到任何关键词"}
}

func (p *Parser) findTarget(lower string) string {
	for _, t := range p.targets {
		for _, m := range t.matchers {
			if m.in(lower) {
				return t.label
			}
		}
	}
	return ""
}

func matchers(words []string) []matcher {
	out := make([]matcher, 0, len(words))
	for _, w := range words {
		out = append(out, newMatcher(w))
	}
	return out
}

func found(ms []matcher, text string) []string {
	var hits []string
	for _, m := range ms {
		if m.in(text) {
			hits = append(hits, m.word)
		}
	}
	return hits
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
