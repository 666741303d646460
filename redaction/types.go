// Package redaction defines the domain types shared by the format engines:
// detected entities, position-indexed text, redaction boxes, and the error
// taxonomy callers branch on.
package redaction

import "vaultredact/geo"

// EntitySource records where a detection came from.
type EntitySource string

const (
	SourceRule         EntitySource = "rule"
	SourceSupplemental EntitySource = "supplemental"
	SourceSuggestion   EntitySource = "suggestion"
)

// DetectedEntity is one sensitive span in the indexed text. Start and End are
// rune offsets into PositionIndex.Text, end exclusive. RuleVersion is empty
// for supplemental terms and suggestions, which have no template rule.
type DetectedEntity struct {
	RuleID      string
	RuleName    string
	RuleVersion string
	Text        string
	Start       int
	End         int
	Source      EntitySource
}

// TextFragment is one contiguous run of extracted text with its location.
// Start and End are rune offsets into the owning index's Text.
type TextFragment struct {
	Page     int // zero-based; DOCX parts use the part index
	Text     string
	Start    int
	End      int
	Rect     geo.Rect
	Font     string
	FontSize float64
}

// PositionIndex pairs the document's full extracted text with the fragments
// that produced it, in document order. Builders insert a single newline in
// Text at line and paragraph breaks; fragments on the same line concatenate
// directly.
type PositionIndex struct {
	Text      string
	Fragments []TextFragment
}

// FragmentsInRange returns the fragments overlapping [start, end).
func (idx *PositionIndex) FragmentsInRange(start, end int) []TextFragment {
	var out []TextFragment
	for _, frag := range idx.Fragments {
		if frag.Start < end && start < frag.End {
			out = append(out, frag)
		}
	}
	return out
}

// RedactionBox is a device-space region on one page that must be cleared and
// covered.
type RedactionBox struct {
	Page   int
	Rect   geo.Rect
	Entity DetectedEntity
}

// Params tunes a redaction attempt. Verification retries rerun the pipeline
// with progressively stricter values.
type Params struct {
	// BoxPadding expands every resolved box by this many points per side.
	BoxPadding float64
	// AggressiveRebuild drops unreachable objects during the rewrite instead
	// of carrying them over.
	AggressiveRebuild bool
}

// DefaultParams is the first-attempt tuning.
func DefaultParams() Params {
	return Params{BoxPadding: 2.0}
}

// StricterParams returns the tuning for retry n (1-based).
func StricterParams(n int) Params {
	return Params{BoxPadding: 2.0 + 4.0*float64(n), AggressiveRebuild: true}
}

// VerificationResult is the outcome of one post-redaction sweep.
type VerificationResult struct {
	Attempt   int
	Clean     bool
	Remaining []string // entity texts still present
}
