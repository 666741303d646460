package extractor

import (
	"errors"
	"strings"
	"unicode/utf8"

	"vaultredact/contentstream"
	"vaultredact/fonts"
	"vaultredact/redaction"
)

// pageResolver adapts one page's font table to the content stream walker.
type pageResolver struct {
	page *Page
}

func (r pageResolver) DecodeString(fontName string, raw []byte) string {
	return r.page.Fonts[fontName].DecodeString(raw)
}

func (r pageResolver) TextWidth(fontName, text string, size float64) float64 {
	if pf, ok := r.page.Fonts[fontName]; ok && pf.Metrics != nil {
		return pf.Metrics.TextWidth(text, size)
	}
	return float64(len([]rune(text))) * size * fonts.HeuristicFactor
}

// BuildIndex extracts text with geometry from every page. Fragments follow
// content stream order; a newline separates them only where the stream moved
// to a new line, so a value split across kerned TJ pieces or adjacent Tj ops
// stays contiguous in the index text.
//
// A page whose stream fails the operator balance check keeps whatever pieces
// were placed before the imbalance; the rewrite engine falls back to covering
// such pages rather than editing them.
func BuildIndex(doc *Document) (*redaction.PositionIndex, error) {
	idx := &redaction.PositionIndex{}
	var b strings.Builder
	runeLen := 0

	for _, page := range doc.Pages {
		ops, err := contentstream.Parse(page.Content)
		if err != nil {
			return nil, err
		}
		pageNum := page.Number
		err = contentstream.Walk(ops, pageResolver{page: page}, func(piece contentstream.TextPiece) {
			if b.Len() > 0 && piece.NewLine {
				b.WriteByte('\n')
				runeLen++
			}
			start := runeLen
			b.WriteString(piece.Text)
			runeLen += utf8.RuneCountInString(piece.Text)
			idx.Fragments = append(idx.Fragments, redaction.TextFragment{
				Page:     pageNum,
				Text:     piece.Text,
				Start:    start,
				End:      runeLen,
				Rect:     piece.Rect,
				Font:     piece.Font,
				FontSize: piece.Size,
			})
		})
		if errors.Is(err, contentstream.ErrUnbalanced) {
			// Partial pieces from before the imbalance stay in the index;
			// the rewrite engine handles the page with its own fallback.
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	idx.Text = b.String()
	return idx, nil
}
