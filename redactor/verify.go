package redactor

import (
	"context"
	"strings"

	"vaultredact/docx"
	"vaultredact/extractor"
	"vaultredact/redaction"
)

// minVerifiableLength skips entities too short to check: one- and two-rune
// strings collide with ordinary text constantly and would block every run.
const minVerifiableLength = 3

// verifyPDF re-extracts the output through the flat scanner, which shares no
// state tracking with the indexed path used for redaction.
func verifyPDF(ctx context.Context, output []byte, entities []redaction.DetectedEntity, attempt int) (redaction.VerificationResult, error) {
	doc, err := extractor.Open(ctx, output)
	if err != nil {
		return redaction.VerificationResult{}, err
	}
	text := extractor.FlatText(doc)
	return sweep(text, entities, attempt), nil
}

// verifyDOCX strips markup from every part of the output with the regex
// path, independent of the offset-indexed extraction.
func verifyDOCX(output []byte, entities []redaction.DetectedEntity, attempt int) (redaction.VerificationResult, error) {
	a, err := docx.OpenArchive(output)
	if err != nil {
		return redaction.VerificationResult{}, err
	}
	return sweep(docx.AllText(a), entities, attempt), nil
}

// sweep checks literal, case-insensitive containment. The haystack is also
// checked with whitespace removed: both extractors insert separators between
// runs, and a leaked entity must not hide behind one.
func sweep(text string, entities []redaction.DetectedEntity, attempt int) redaction.VerificationResult {
	folded := strings.ToLower(text)
	packed := removeSpace(folded)

	res := redaction.VerificationResult{Attempt: attempt, Clean: true}
	seen := make(map[string]bool)
	for _, ent := range entities {
		needle := strings.ToLower(strings.TrimSpace(ent.Text))
		if len([]rune(needle)) < minVerifiableLength || seen[needle] {
			continue
		}
		seen[needle] = true
		if strings.Contains(folded, needle) || strings.Contains(packed, removeSpace(needle)) {
			res.Clean = false
			res.Remaining = append(res.Remaining, ent.Text)
		}
	}
	return res
}

func removeSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
