package extractor

import (
	"io"
	"strings"

	"vaultredact/scanner"
)

// FlatText pulls every shown string out of the document without replaying
// the graphics state machine. It is deliberately simpler than BuildIndex:
// verification must not share the code path whose bugs it exists to catch.
func FlatText(doc *Document) string {
	var b strings.Builder
	for _, page := range doc.Pages {
		scanPageText(&b, page)
	}
	return b.String()
}

func scanPageText(b *strings.Builder, page *Page) {
	s := scanner.New(page.Content, scanner.Config{DisableRefs: true})
	var pending [][]byte
	currentFont := ""
	lastName := ""

	flush := func() {
		font := page.Fonts[currentFont]
		for _, raw := range pending {
			text := font.DecodeString(raw)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(text)
		}
		pending = pending[:0]
	}

	for {
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if seekErr := s.SeekTo(s.Position() + 1); seekErr != nil {
				break
			}
			continue
		}
		switch tok.Type {
		case scanner.TokenString:
			pending = append(pending, tok.Bytes)
		case scanner.TokenName:
			lastName = tok.Str
		case scanner.TokenKeyword:
			switch tok.Str {
			case "Tj", "TJ", "'", "\"":
				flush()
			case "Tf":
				currentFont = lastName
				pending = pending[:0]
			case "]", ">>":
				// Array and dict closers sit between TJ operands and the
				// operator itself; keep the strings pending.
			default:
				// Strings pending at any other operator are operands of
				// non-text operators and must not count as shown text.
				pending = pending[:0]
			}
		}
	}
}
