package detect

import (
	"regexp"
	"sort"
	"strings"

	"vaultredact/redaction"
)

// Detector applies one validated template. Compile it once and reuse it
// across documents; it is safe for concurrent use.
type Detector struct {
	template *Template
	compiled []compiledRule
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// NewDetector validates the template and compiles its patterns.
func NewDetector(t *Template) (*Detector, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{template: t}
	for _, rule := range t.Rules {
		if rule.Pattern == "" {
			continue
		}
		re, err := compileRule(rule.Pattern)
		if err != nil {
			return nil, &redaction.TemplateValidationError{Field: "rules[" + rule.ID + "]", Reason: err.Error()}
		}
		d.compiled = append(d.compiled, compiledRule{rule: rule, re: re})
	}
	return d, nil
}

// Template returns the template this detector was built from.
func (d *Detector) Template() *Template { return d.template }

// PromptRules returns the rules that need the suggestion service.
func (d *Detector) PromptRules() []Rule {
	var out []Rule
	for _, rule := range d.template.Rules {
		if rule.AIPrompt != "" {
			out = append(out, rule)
		}
	}
	return out
}

// Detect finds all rule matches in text. Supplemental terms are matched as
// case-insensitive literals. Overlapping detections collapse to the longer
// span. Offsets are rune positions.
func (d *Detector) Detect(text string, supplemental []string) []redaction.DetectedEntity {
	var entities []redaction.DetectedEntity
	byteToRune := runeOffsets(text)

	for _, cr := range d.compiled {
		for _, loc := range cr.re.FindAllStringIndex(text, -1) {
			entities = append(entities, redaction.DetectedEntity{
				RuleID:      cr.rule.ID,
				RuleName:    cr.rule.Name,
				RuleVersion: cr.rule.Revision(),
				Text:        text[loc[0]:loc[1]],
				Start:       byteToRune[loc[0]],
				End:         byteToRune[loc[1]],
				Source:      redaction.SourceRule,
			})
		}
	}
	entities = append(entities, literalMatches(text, byteToRune, supplemental, redaction.SourceSupplemental, "supplemental")...)
	return MergeOverlaps(entities)
}

// AddSuggestions folds externally suggested strings into existing
// detections. A suggestion equal (case-insensitively) to an already detected
// text is dropped rather than double-counted.
func AddSuggestions(text string, existing []redaction.DetectedEntity, suggestions []string) []redaction.DetectedEntity {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[strings.ToLower(e.Text)] = true
	}
	var fresh []string
	for _, s := range suggestions {
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return existing
	}
	byteToRune := runeOffsets(text)
	merged := append(existing, literalMatches(text, byteToRune, fresh, redaction.SourceSuggestion, "suggestion")...)
	return MergeOverlaps(merged)
}

func literalMatches(text string, byteToRune map[int]int, terms []string, source redaction.EntitySource, ruleID string) []redaction.DetectedEntity {
	var out []redaction.DetectedEntity
	lower := strings.ToLower(text)
	for _, term := range terms {
		needle := strings.ToLower(term)
		if needle == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(lower[from:], needle)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(needle)
			out = append(out, redaction.DetectedEntity{
				RuleID:   ruleID,
				RuleName: ruleID,
				Text:     text[start:end],
				Start:    byteToRune[start],
				End:      byteToRune[end],
				Source:   source,
			})
			from = end
		}
	}
	return out
}

// MergeOverlaps collapses overlapping entities, keeping the longer span.
// Equal-length overlaps keep the earlier one.
func MergeOverlaps(entities []redaction.DetectedEntity) []redaction.DetectedEntity {
	if len(entities) < 2 {
		return entities
	}
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return (entities[i].End - entities[i].Start) > (entities[j].End - entities[j].Start)
	})
	out := entities[:1]
	for _, e := range entities[1:] {
		last := &out[len(out)-1]
		if e.Start >= last.End {
			out = append(out, e)
			continue
		}
		if (e.End - e.Start) > (last.End - last.Start) {
			*last = e
		}
	}
	return out
}

// runeOffsets maps byte offsets to rune offsets for every rune boundary,
// including the end of the string.
func runeOffsets(text string) map[int]int {
	m := make(map[int]int, len(text)+1)
	r := 0
	for i := range text {
		m[i] = r
		r++
	}
	m[len(text)] = r
	return m
}
