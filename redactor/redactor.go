// Package redactor orchestrates the full pipeline: sniff the format, detect
// entities, rewrite the document, verify the output through an independent
// extraction path, and retry with stricter parameters when text survives.
package redactor

import (
	"context"

	"vaultredact/detect"
	"vaultredact/docx"
	"vaultredact/extractor"
	"vaultredact/format"
	"vaultredact/observability"
	"vaultredact/redaction"
)

// maxAttempts bounds the rewrite loop: one normal pass plus two stricter
// retries.
const maxAttempts = 3

// Suggester proposes additional sensitive strings for prompt-based rules.
// Implementations must be safe for concurrent use.
type Suggester interface {
	Suggest(ctx context.Context, rules []detect.Rule, text string) ([]string, error)
}

// Options carries per-request knobs.
type Options struct {
	// DocumentName labels the report; it never influences processing.
	DocumentName string
	// Supplemental terms are redacted as case-insensitive literals on top of
	// the template rules.
	Supplemental []string
}

// Result is a verified redaction.
type Result struct {
	Output []byte
	Format format.Kind
	Report redaction.Report
}

// Pipeline ties a compiled detector to the format engines.
type Pipeline struct {
	detector  *detect.Detector
	suggester Suggester
	log       observability.Logger
	pdf       *PDFEngine
	docx      *DocxEngine
}

// New builds a pipeline. suggester may be nil when the template has no
// prompt rules; log may be nil for silence.
func New(detector *detect.Detector, suggester Suggester, log observability.Logger) *Pipeline {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Pipeline{
		detector:  detector,
		suggester: suggester,
		log:       log,
		pdf:       NewPDFEngine(log),
		docx:      NewDocxEngine(log),
	}
}

// Redact processes data until verification passes or attempts run out.
// Every attempt restarts from the original input: output of a failed pass is
// never patched further.
func (p *Pipeline) Redact(ctx context.Context, data []byte, opts Options) (*Result, error) {
	kind, err := format.Sniff(data)
	if err != nil {
		return nil, err
	}
	log := p.log.With(
		observability.String("document", opts.DocumentName),
		observability.String("format", string(kind)))

	suggestions, err := p.collectSuggestions(ctx, kind, data)
	if err != nil {
		return nil, err
	}

	var lastRemaining []string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		params := redaction.DefaultParams()
		if attempt > 1 {
			params = redaction.StricterParams(attempt - 1)
			log.Info("retrying with stricter parameters",
				observability.Int("attempt", attempt))
		}

		builder := redaction.NewReportBuilder(opts.DocumentName, string(kind))
		var output []byte
		var result redaction.VerificationResult

		switch kind {
		case format.PDF:
			output, result, err = p.redactPDF(ctx, data, opts, params, attempt, builder)
		case format.DOCX:
			output, result, err = p.redactDOCX(ctx, data, opts, suggestions, attempt, builder)
		}
		if err != nil {
			return nil, err
		}

		builder.RecordAttempt(result)
		if result.Clean {
			report := builder.Build()
			if tpl := p.detector.Template(); tpl != nil {
				report.RuleVersions = make(map[string]string, len(tpl.Rules))
				for _, rule := range tpl.Rules {
					report.RuleVersions[rule.ID] = rule.Revision()
				}
			}
			log.Info("redaction verified",
				observability.Int("attempt", attempt),
				observability.Int("entities", report.Entities))
			return &Result{Output: output, Format: kind, Report: report}, nil
		}
		lastRemaining = result.Remaining
		log.Warn("verification found surviving text",
			observability.Int("attempt", attempt),
			observability.Int("remaining", len(result.Remaining)))
	}
	return nil, &redaction.VerificationError{Attempts: maxAttempts, Remaining: lastRemaining}
}

func (p *Pipeline) redactPDF(ctx context.Context, data []byte, opts Options, params redaction.Params, attempt int, builder *redaction.ReportBuilder) ([]byte, redaction.VerificationResult, error) {
	var zero redaction.VerificationResult
	doc, err := extractor.Open(ctx, data)
	if err != nil {
		return nil, zero, err
	}
	idx, err := extractor.BuildIndex(doc)
	if err != nil {
		return nil, zero, err
	}

	entities := p.detectAll(ctx, idx.Text, opts)
	if len(entities) == 0 {
		return nil, zero, &redaction.NoMatchesError{Rules: len(p.detector.Template().Rules)}
	}
	builder.AddEntities(entities)

	boxes, unresolved := redaction.ResolveBoxes(idx, entities, params.BoxPadding)
	builder.AddBoxes(boxes)
	if len(unresolved) > 0 {
		builder.AddUnresolved(unresolved)
		p.log.Warn("entities without confirmed positions",
			observability.Int("count", len(unresolved)))
	}

	output, err := p.pdf.Apply(ctx, doc, boxes, params)
	if err != nil {
		return nil, zero, err
	}
	result, err := verifyPDF(ctx, output, entities, attempt)
	if err != nil {
		return nil, zero, err
	}
	return output, result, nil
}

func (p *Pipeline) redactDOCX(ctx context.Context, data []byte, opts Options, suggestions []string, attempt int, builder *redaction.ReportBuilder) ([]byte, redaction.VerificationResult, error) {
	var zero redaction.VerificationResult
	res, err := p.docx.Apply(ctx, data, func(text string) []redaction.DetectedEntity {
		entities := p.detector.Detect(text, opts.Supplemental)
		return detect.AddSuggestions(text, entities, suggestions)
	})
	if err != nil {
		return nil, zero, err
	}
	if len(res.Entities) == 0 {
		return nil, zero, &redaction.NoMatchesError{Rules: len(p.detector.Template().Rules)}
	}
	builder.AddEntities(res.Entities)
	for _, part := range res.PartsTouched {
		builder.TouchPart(part)
	}

	result, err := verifyDOCX(res.Output, res.Entities, attempt)
	if err != nil {
		return nil, zero, err
	}
	return res.Output, result, nil
}

// detectAll runs template rules, supplemental terms, and suggestion folding
// over one text blob.
func (p *Pipeline) detectAll(ctx context.Context, text string, opts Options) []redaction.DetectedEntity {
	entities := p.detector.Detect(text, opts.Supplemental)
	if p.suggester == nil {
		return entities
	}
	rules := p.detector.PromptRules()
	if len(rules) == 0 {
		return entities
	}
	suggestions, err := p.suggester.Suggest(ctx, rules, text)
	if err != nil {
		p.log.Warn("suggestion service unavailable, continuing with rule matches",
			observability.Error("error", err))
		return entities
	}
	return detect.AddSuggestions(text, entities, suggestions)
}

// collectSuggestions pre-computes suggested strings for DOCX, whose parts
// are detected independently and must all see the same suggestion set.
func (p *Pipeline) collectSuggestions(ctx context.Context, kind format.Kind, data []byte) ([]string, error) {
	if p.suggester == nil || kind != format.DOCX || len(p.detector.PromptRules()) == 0 {
		return nil, nil
	}
	a, err := docx.OpenArchive(data)
	if err != nil {
		return nil, err
	}
	suggestions, err := p.suggester.Suggest(ctx, p.detector.PromptRules(), docx.AllText(a))
	if err != nil {
		p.log.Warn("suggestion service unavailable, continuing with rule matches",
			observability.Error("error", err))
		return nil, nil
	}
	return suggestions, nil
}
