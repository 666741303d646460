package docx

import (
	"regexp"
	"strings"
)

var (
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	entityRe = regexp.MustCompile(`&(amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)
)

// RawPartText strips markup from a part with plain regex substitution. This
// is the verification path: it shares nothing with the indexed extraction,
// so an offset bug there cannot hide leaked text here.
func RawPartText(content []byte) string {
	text := tagRe.ReplaceAllString(string(content), " ")
	return entityRe.ReplaceAllStringFunc(text, decodeEntity)
}

// AllText concatenates the raw text of every text-bearing part.
func AllText(a *Archive) string {
	var b strings.Builder
	for _, name := range a.TextParts() {
		content, _ := a.Part(name)
		b.WriteString(RawPartText(content))
		b.WriteByte('\n')
	}
	return b.String()
}

func decodeEntity(e string) string {
	switch e {
	case "&amp;":
		return "&"
	case "&lt;":
		return "<"
	case "&gt;":
		return ">"
	case "&quot;":
		return `"`
	case "&apos;":
		return "'"
	}
	// Numeric references stay encoded; containment checks fold case and
	// whitespace, not charrefs.
	return e
}
