package redaction

import (
	"fmt"
	"strings"
)

// TemplateValidationError reports an unusable redaction template.
type TemplateValidationError struct {
	Field  string
	Reason string
}

func (e *TemplateValidationError) Error() string {
	return fmt.Sprintf("invalid template: %s: %s", e.Field, e.Reason)
}

// NoMatchesError means detection ran cleanly but found nothing to redact.
type NoMatchesError struct {
	Rules int
}

func (e *NoMatchesError) Error() string {
	return fmt.Sprintf("no matches found across %d rules", e.Rules)
}

// UnsupportedFormatError reports input that is neither PDF nor DOCX.
type UnsupportedFormatError struct {
	Detected string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Detected == "" {
		return "unsupported document format"
	}
	return fmt.Sprintf("unsupported document format (detected %s)", e.Detected)
}

// StreamIntegrityError reports a content stream whose operator nesting broke
// during the rewrite. The engine falls back to covering the original page.
type StreamIntegrityError struct {
	Page   int
	Detail string
}

func (e *StreamIntegrityError) Error() string {
	return fmt.Sprintf("content stream integrity check failed on page %d: %s", e.Page, e.Detail)
}

// VerificationError means sensitive text survived every redaction attempt.
type VerificationError struct {
	Attempts  int
	Remaining []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed after %d attempts: %d entities still present (%s)",
		e.Attempts, len(e.Remaining), strings.Join(e.Remaining, ", "))
}
