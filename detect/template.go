// Package detect finds sensitive spans in extracted text by applying the
// rules of a redaction template, plus caller-supplied supplemental terms and
// externally suggested strings.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"vaultredact/redaction"
)

// Rule is one detection instruction. Pattern rules carry a regular
// expression; prompt rules carry instructions for the suggestion service and
// match nothing locally. Exactly one of Pattern and AIPrompt must be set,
// and every rule carries a version or a checksum for the audit trail.
type Rule struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Pattern  string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	AIPrompt string `json:"aiPrompt,omitempty" yaml:"aiPrompt,omitempty"`
}

// Revision returns the rule's version, falling back to its checksum.
func (r Rule) Revision() string {
	if r.Version != "" {
		return r.Version
	}
	return r.Checksum
}

// Template is a named, versioned set of rules.
type Template struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version" yaml:"version"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Rules    []Rule `json:"rules" yaml:"rules"`
}

// ParseTemplate decodes and validates a JSON template.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &redaction.TemplateValidationError{Field: "template", Reason: err.Error()}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the structural rules a template must satisfy before any
// document touches it.
func (t *Template) Validate() error {
	if t.ID == "" {
		return &redaction.TemplateValidationError{Field: "id", Reason: "required"}
	}
	if t.Name == "" {
		return &redaction.TemplateValidationError{Field: "name", Reason: "required"}
	}
	if t.Version == "" && t.Checksum == "" {
		return &redaction.TemplateValidationError{Field: "version", Reason: "either version or checksum is required"}
	}
	if len(t.Rules) == 0 {
		return &redaction.TemplateValidationError{Field: "rules", Reason: "template has no rules"}
	}
	for _, rule := range t.Rules {
		field := "rules[" + rule.ID + "]"
		if rule.ID == "" || rule.Name == "" {
			return &redaction.TemplateValidationError{Field: field, Reason: "rule id and name are required"}
		}
		if rule.Version == "" && rule.Checksum == "" {
			return &redaction.TemplateValidationError{Field: field, Reason: "rule needs a version or a checksum"}
		}
		if rule.Pattern == "" && rule.AIPrompt == "" {
			return &redaction.TemplateValidationError{Field: field, Reason: "rule needs a pattern or an aiPrompt"}
		}
		if rule.Pattern != "" && rule.AIPrompt != "" {
			return &redaction.TemplateValidationError{Field: field, Reason: "rule cannot carry both a pattern and an aiPrompt"}
		}
		if rule.Pattern != "" {
			if _, err := compileRule(rule.Pattern); err != nil {
				return &redaction.TemplateValidationError{Field: field, Reason: "pattern does not compile: " + err.Error()}
			}
		}
	}
	return nil
}

// compileRule strips line anchors before compiling: extracted text is one
// continuous string, so ^ and $ written against line-oriented sources would
// silently never match.
func compileRule(pattern string) (*regexp.Regexp, error) {
	trimmed := strings.TrimPrefix(pattern, "^")
	if strings.HasSuffix(trimmed, "$") && !strings.HasSuffix(trimmed, `\$`) {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return regexp.Compile("(?i)" + trimmed)
}

// ContentHash fingerprints document bytes for caching and audit trails.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
