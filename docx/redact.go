package docx

import (
	"bytes"
	"encoding/xml"
	"sort"

	"vaultredact/redaction"
)

// Placeholder replaces the first run of every redacted span.
const Placeholder = "[REDACTED]"

type edit struct {
	start int64
	end   int64
	text  string // replacement, escaped at apply time
}

// span is one entity's cut inside a single node, in the node's original rune
// coordinates.
type span struct {
	lo, hi int
	text   string
}

// RedactPart removes the given entity spans from one part. The first text
// node an entity touches keeps its surrounding text with the sensitive range
// replaced by the placeholder; every later node the entity spills into loses
// the overlapped text entirely.
//
// Entity offsets are rune positions in idx.Text. Spans are collected per
// node against its original text and spliced high-to-low, so several
// entities landing in one node cannot shift each other's offsets.
func RedactPart(idx *PartIndex, content []byte, entities []redaction.DetectedEntity) ([]byte, int, error) {
	spans := make(map[int][]span)
	instr := make(map[int]bool)
	touched := 0

	for _, ent := range entities {
		first := true
		for _, i := range idx.NodesInRange(ent.Start, ent.End, KindBodyText) {
			node := idx.Nodes[i]
			lo := clamp(ent.Start-node.TextStart, 0, node.TextEnd-node.TextStart)
			hi := clamp(ent.End-node.TextStart, 0, node.TextEnd-node.TextStart)
			replacement := ""
			if first {
				replacement = Placeholder
				first = false
			}
			spans[i] = append(spans[i], span{lo: lo, hi: hi, text: replacement})
			touched++
		}
		// Field instruction text gets no placeholder: a partial field code
		// is worse than an empty one.
		for _, i := range idx.NodesInRange(ent.Start, ent.End, KindInstrText) {
			if !instr[i] {
				instr[i] = true
				touched++
			}
		}
	}
	if touched == 0 {
		return content, 0, nil
	}

	newText := make(map[int]string, len(spans)+len(instr))
	for i, cuts := range spans {
		newText[i] = spliceNode(idx.Nodes[i].Text, cuts)
	}
	for i := range instr {
		newText[i] = ""
	}

	edits := make([]edit, 0, len(newText))
	for i, text := range newText {
		edits = append(edits, edit{
			start: idx.Nodes[i].ByteStart,
			end:   idx.Nodes[i].ByteEnd,
			text:  text,
		})
	}
	return applyEdits(content, edits), touched, nil
}

// spliceNode applies all cuts to one node's original text. Cuts come from
// merged entities and never overlap; applying them in descending order keeps
// every lower offset valid regardless of replacement length.
func spliceNode(text string, cuts []span) string {
	runes := []rune(text)
	sort.Slice(cuts, func(a, b int) bool { return cuts[a].lo > cuts[b].lo })
	for _, c := range cuts {
		lo := clamp(c.lo, 0, len(runes))
		hi := clamp(c.hi, lo, len(runes))
		next := make([]rune, 0, len(runes)-(hi-lo)+len(c.text))
		next = append(next, runes[:lo]...)
		next = append(next, []rune(c.text)...)
		next = append(next, runes[hi:]...)
		runes = next
	}
	return string(runes)
}

// applyEdits splices replacements back to front so earlier offsets stay valid.
func applyEdits(content []byte, edits []edit) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := append([]byte(nil), content...)
	for _, e := range edits {
		var escaped bytes.Buffer
		xml.EscapeText(&escaped, []byte(e.text))
		out = append(out[:e.start], append(escaped.Bytes(), out[e.end:]...)...)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
