package redaction

import (
	"sort"
	"time"
)

// Report summarizes one completed redaction for auditing. When any entity's
// position could not be confirmed, Unresolved names it and
// CoverageIncomplete flags the document for manual review.
type Report struct {
	Document           string            `json:"document"`
	Format             string            `json:"format"`
	Entities           int               `json:"entities"`
	ByRule             map[string]int    `json:"by_rule"`
	ByPage             map[int]int       `json:"by_page,omitempty"`
	BoxesPlaced        int               `json:"boxes_placed,omitempty"`
	PartsTouched       []string          `json:"parts_touched,omitempty"`
	Unresolved         []string          `json:"unresolved,omitempty"`
	CoverageIncomplete bool              `json:"coverage_incomplete,omitempty"`
	Attempts           int               `json:"attempts"`
	Verified           bool              `json:"verified"`
	Duration           time.Duration     `json:"duration_ns"`
	CompletedAt        time.Time         `json:"completed_at"`
	RuleVersions       map[string]string `json:"rule_versions,omitempty"`
}

// ReportBuilder accumulates facts as the pipeline runs.
type ReportBuilder struct {
	report Report
	pages  map[int]int
	parts  map[string]bool
	start  time.Time
}

func NewReportBuilder(document, format string) *ReportBuilder {
	return &ReportBuilder{
		report: Report{
			Document: document,
			Format:   format,
			ByRule:   make(map[string]int),
		},
		pages: make(map[int]int),
		parts: make(map[string]bool),
		start: time.Now(),
	}
}

func (b *ReportBuilder) AddEntities(entities []DetectedEntity) {
	b.report.Entities += len(entities)
	for _, e := range entities {
		b.report.ByRule[e.RuleID]++
	}
}

func (b *ReportBuilder) AddBoxes(boxes []RedactionBox) {
	b.report.BoxesPlaced += len(boxes)
	for _, box := range boxes {
		b.pages[box.Page]++
	}
}

// AddUnresolved records entities whose position could not be confirmed. Any
// such entity marks the document's visual coverage as unproven.
func (b *ReportBuilder) AddUnresolved(entities []DetectedEntity) {
	for _, e := range entities {
		b.report.Unresolved = append(b.report.Unresolved, e.Text)
		b.report.CoverageIncomplete = true
	}
}

func (b *ReportBuilder) TouchPart(name string) {
	b.parts[name] = true
}

func (b *ReportBuilder) RecordAttempt(result VerificationResult) {
	b.report.Attempts = result.Attempt
	b.report.Verified = result.Clean
}

func (b *ReportBuilder) Build() Report {
	r := b.report
	if len(b.pages) > 0 {
		r.ByPage = make(map[int]int, len(b.pages))
		for page, n := range b.pages {
			r.ByPage[page] = n
		}
	}
	for part := range b.parts {
		r.PartsTouched = append(r.PartsTouched, part)
	}
	sort.Strings(r.PartsTouched)
	r.Duration = time.Since(b.start)
	r.CompletedAt = time.Now().UTC()
	return r
}
