// Package fonts estimates rendered text widths. Embedded font programs are
// measured through go-text's shaper; fonts without an embedded program fall
// back to the /Widths array, then to a flat per-character estimate.
package fonts

import (
	"bytes"
	"unicode"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"

	"vaultredact/filters"
	"vaultredact/ir/raw"
)

// HeuristicFactor is the average glyph advance, in em fractions, assumed for
// fonts with no usable metrics.
const HeuristicFactor = 0.6

// Font holds whatever width information could be recovered for one font
// resource.
type Font struct {
	face         *gofont.Face
	widths       map[int]float64 // char code -> glyph space units (1/1000 em)
	firstChar    int
	defaultWidth float64
}

// FromDict builds width metrics from a /Font resource dictionary.
// Every failure degrades silently: a Font with no data still measures text
// through the heuristic.
func FromDict(doc *raw.Document, dict *raw.DictObj, pipeline *filters.Pipeline) *Font {
	f := &Font{}
	if dict == nil {
		return f
	}
	f.loadWidthsArray(doc, dict)
	f.loadEmbeddedProgram(doc, dict, pipeline)
	return f
}

func (f *Font) loadWidthsArray(doc *raw.Document, dict *raw.DictObj) {
	first, ok := dict.Int("FirstChar")
	if !ok {
		return
	}
	arr, ok := doc.Resolve(dict.Values["Widths"]).(raw.ArrayObj)
	if !ok {
		return
	}
	f.firstChar = int(first)
	f.widths = make(map[int]float64, len(arr.Items))
	for i, item := range arr.Items {
		if n, ok := doc.Resolve(item).(raw.NumberObj); ok {
			f.widths[int(first)+i] = n.Value()
		}
	}
	if descriptor := doc.ResolveDict(dict.Values["FontDescriptor"]); descriptor != nil {
		if mw, ok := descriptor.Get("MissingWidth"); ok {
			if n, ok := doc.Resolve(mw).(raw.NumberObj); ok {
				f.defaultWidth = n.Value()
			}
		}
	}
}

func (f *Font) loadEmbeddedProgram(doc *raw.Document, dict *raw.DictObj, pipeline *filters.Pipeline) {
	descriptor := doc.ResolveDict(dict.Values["FontDescriptor"])
	if descriptor == nil {
		// CID fonts nest the descriptor under /DescendantFonts.
		if arr, ok := doc.Resolve(dict.Values["DescendantFonts"]).(raw.ArrayObj); ok && len(arr.Items) > 0 {
			if desc := doc.ResolveDict(arr.Items[0]); desc != nil {
				descriptor = doc.ResolveDict(desc.Values["FontDescriptor"])
			}
		}
	}
	if descriptor == nil {
		return
	}
	for _, key := range []string{"FontFile2", "FontFile3", "FontFile"} {
		stream, ok := doc.Resolve(descriptor.Values[key]).(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := pipeline.Decode(stream.Raw, stream.FilterNames())
		if err != nil {
			continue
		}
		face, err := gofont.ParseTTF(bytes.NewReader(data))
		if err != nil {
			continue
		}
		f.face = face
		return
	}
}

// TextWidth returns the rendered width of text at the given size, in text
// space units.
func (f *Font) TextWidth(text string, size float64) float64 {
	if w, ok := f.shapedWidth(text); ok {
		return w / 1000 * size
	}
	if w, ok := f.tableWidth(text); ok {
		return w / 1000 * size
	}
	return float64(len([]rune(text))) * size * HeuristicFactor
}

func (f *Font) tableWidth(text string) (float64, bool) {
	if f.widths == nil {
		return 0, false
	}
	var total float64
	for _, r := range text {
		if w, ok := f.widths[int(r)]; ok {
			total += w
		} else if f.defaultWidth > 0 {
			total += f.defaultWidth
		} else {
			total += HeuristicFactor * 1000
		}
	}
	return total, true
}

// shapedWidth sums glyph advances at a 1000-unit em so the result is directly
// in glyph space.
func (f *Font) shapedWidth(text string) (float64, bool) {
	if f.face == nil || text == "" {
		return 0, false
	}
	runes := []rune(text)
	script := detectScript(runes)
	shaper := &shaping.HarfbuzzShaper{}
	output := shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      f.face,
		Size:      fixed.Int26_6(1000 * 64),
		Script:    script,
		Language:  language.DefaultLanguage(),
	})
	var total float64
	for _, g := range output.Glyphs {
		total += float64(g.XAdvance) / 64.0
	}
	if total <= 0 {
		return 0, false
	}
	return total, true
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew:
		return di.DirectionRTL
	}
	return di.DirectionLTR
}

func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		switch {
		case unicode.Is(unicode.Arabic, r):
			return language.Arabic
		case unicode.Is(unicode.Hebrew, r):
			return language.Hebrew
		case unicode.Is(unicode.Cyrillic, r):
			return language.Cyrillic
		case unicode.Is(unicode.Greek, r):
			return language.Greek
		case unicode.Is(unicode.Han, r):
			return language.Han
		case unicode.Is(unicode.Latin, r):
			return language.Latin
		}
	}
	return language.Latin
}
