package contentstream

import (
	"errors"
	"math"

	"vaultredact/coords"
	"vaultredact/geo"
)

// ErrUnbalanced reports a q/Q or BT/ET mismatch. Callers treat the stream as
// untrustworthy and keep the original bytes.
var ErrUnbalanced = errors.New("unbalanced graphics or text state operators")

// Resolver supplies per-font text decoding and width measurement. The zero
// resolver is never used; callers wire the extractor's font table in.
type Resolver interface {
	// DecodeString maps raw string bytes shown with the named font to text.
	DecodeString(fontName string, raw []byte) string
	// TextWidth measures decoded text at the given size in text space units.
	TextWidth(fontName, text string, size float64) float64
}

// TextPiece is one shown string with its device-space bounding box. NewLine
// is set when line motion occurred since the previous piece; pieces without
// it continue the same visual line (kerned TJ parts, adjacent Tj ops).
type TextPiece struct {
	OpIndex int
	Text    string
	Rect    geo.Rect
	Font    string
	Size    float64
	NewLine bool
}

type textState struct {
	tm      coords.Matrix // text matrix
	tlm     coords.Matrix // line matrix
	font    string
	size    float64
	leading float64
}

type gstate struct {
	ctm  coords.Matrix
	text textState
}

// Walk replays ops, invoking fn for every shown string. It validates operator
// balance: q/Q and BT/ET must nest correctly or ErrUnbalanced is returned.
func Walk(ops []Operation, r Resolver, fn func(TextPiece)) error {
	cur := gstate{ctm: coords.Identity()}
	var stack []gstate
	btDepth := 0
	newLine := true

	show := func(opIndex int, raw []byte) {
		if showString(&cur, r, opIndex, raw, newLine, fn) {
			newLine = false
		}
	}

	for i, op := range ops {
		switch op.Operator {
		case "q":
			stack = append(stack, cur)
		case "Q":
			if len(stack) == 0 {
				return ErrUnbalanced
			}
			cur = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		case "cm":
			if m, ok := matrixOperands(op.Operands); ok {
				cur.ctm = m.Multiply(cur.ctm)
			}
		case "BT":
			if btDepth != 0 {
				return ErrUnbalanced
			}
			btDepth++
			cur.text.tm = coords.Identity()
			cur.text.tlm = coords.Identity()
			newLine = true
		case "ET":
			btDepth--
			if btDepth < 0 {
				return ErrUnbalanced
			}
		case "Tf":
			if len(op.Operands) == 2 && op.Operands[0].Kind == KindName {
				cur.text.font = op.Operands[0].Name
				cur.text.size = op.Operands[1].Num
			}
		case "TL":
			if len(op.Operands) == 1 {
				cur.text.leading = op.Operands[0].Num
			}
		case "Tm":
			if m, ok := matrixOperands(op.Operands); ok {
				cur.text.tm = m
				cur.text.tlm = m
				newLine = true
			}
		case "Td":
			if len(op.Operands) == 2 {
				nextLine(&cur.text, op.Operands[0].Num, op.Operands[1].Num)
				newLine = true
			}
		case "TD":
			if len(op.Operands) == 2 {
				cur.text.leading = -op.Operands[1].Num
				nextLine(&cur.text, op.Operands[0].Num, op.Operands[1].Num)
				newLine = true
			}
		case "T*":
			nextLine(&cur.text, 0, -cur.text.leading)
			newLine = true
		case "Tj":
			if len(op.Operands) == 1 && op.Operands[0].Kind == KindString {
				show(i, op.Operands[0].Str)
			}
		case "'":
			if len(op.Operands) == 1 && op.Operands[0].Kind == KindString {
				nextLine(&cur.text, 0, -cur.text.leading)
				newLine = true
				show(i, op.Operands[0].Str)
			}
		case "\"":
			if len(op.Operands) == 3 && op.Operands[2].Kind == KindString {
				nextLine(&cur.text, 0, -cur.text.leading)
				newLine = true
				show(i, op.Operands[2].Str)
			}
		case "TJ":
			if len(op.Operands) == 1 && op.Operands[0].Kind == KindArray {
				for _, item := range op.Operands[0].Items {
					switch item.Kind {
					case KindString:
						show(i, item.Str)
					case KindNumber:
						// Negative adjustments move the pen right.
						tx := -item.Num / 1000 * cur.text.size
						cur.text.tm = coords.Translate(tx, 0).Multiply(cur.text.tm)
					}
				}
			}
		}
	}
	if len(stack) != 0 || btDepth != 0 {
		return ErrUnbalanced
	}
	return nil
}

func nextLine(ts *textState, tx, ty float64) {
	ts.tlm = coords.Translate(tx, ty).Multiply(ts.tlm)
	ts.tm = ts.tlm
}

// showString reports the piece's device-space box and advances the text
// matrix by the measured width. It returns false when nothing was shown.
func showString(g *gstate, r Resolver, opIndex int, raw []byte, newLine bool, fn func(TextPiece)) bool {
	text := r.DecodeString(g.text.font, raw)
	if text == "" {
		return false
	}
	width := r.TextWidth(g.text.font, text, g.text.size)
	height := g.text.size
	if height == 0 {
		height = 1
	}

	// The box is the min/max envelope of the four transformed corners, built
	// directly: Rect.Union special-cases empty rects, so point rects must not
	// pass through it.
	trm := g.text.tm.Multiply(g.ctm)
	corners := [4]coords.Point{
		trm.Transform(coords.Point{X: 0, Y: 0}),
		trm.Transform(coords.Point{X: width, Y: 0}),
		trm.Transform(coords.Point{X: 0, Y: height}),
		trm.Transform(coords.Point{X: width, Y: height}),
	}
	rect := geo.Rect{X1: corners[0].X, Y1: corners[0].Y, X2: corners[0].X, Y2: corners[0].Y}
	for _, p := range corners[1:] {
		rect.X1 = math.Min(rect.X1, p.X)
		rect.Y1 = math.Min(rect.Y1, p.Y)
		rect.X2 = math.Max(rect.X2, p.X)
		rect.Y2 = math.Max(rect.Y2, p.Y)
	}

	fn(TextPiece{OpIndex: opIndex, Text: text, Rect: rect, Font: g.text.font, Size: g.text.size, NewLine: newLine})
	g.text.tm = coords.Translate(width, 0).Multiply(g.text.tm)
	return true
}

func matrixOperands(operands []Value) (coords.Matrix, bool) {
	if len(operands) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i, v := range operands {
		if v.Kind != KindNumber {
			return coords.Matrix{}, false
		}
		m[i] = v.Num
	}
	return m, true
}
