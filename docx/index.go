package docx

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"unicode/utf8"
)

// NodeKind distinguishes visible text from field instruction text.
type NodeKind int

const (
	KindBodyText NodeKind = iota
	KindInstrText
)

// TextNode is one w:t or w:instrText element with the byte range of its
// content inside the part.
type TextNode struct {
	Kind      NodeKind
	Text      string
	TextStart int // rune offset into PartIndex.Text
	TextEnd   int
	ByteStart int64 // content range inside the raw part bytes
	ByteEnd   int64
}

// PartIndex maps a part's concatenated text back to the XML elements that
// carry it. Runs concatenate with no separator, paragraphs break with "\n",
// which mirrors how Word splits sentences across runs mid-word.
type PartIndex struct {
	Name  string
	Text  string
	Nodes []TextNode
}

// IndexPart walks one XML part and records every text node with offsets.
func IndexPart(name string, content []byte) (*PartIndex, error) {
	idx := &PartIndex{Name: name}
	d := xml.NewDecoder(bytes.NewReader(content))
	var b strings.Builder
	runeLen := 0

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "p" {
				b.WriteByte('\n')
				runeLen++
			}
			continue
		}

		var kind NodeKind
		switch start.Name.Local {
		case "t":
			kind = KindBodyText
		case "instrText":
			kind = KindInstrText
		default:
			continue
		}

		node := TextNode{Kind: kind, ByteStart: d.InputOffset()}
		var text strings.Builder
		contentEnd := node.ByteStart
		for {
			inner, err := d.Token()
			if err != nil {
				return nil, err
			}
			if _, done := inner.(xml.EndElement); done {
				break
			}
			if cd, ok := inner.(xml.CharData); ok {
				text.Write(cd)
				contentEnd = d.InputOffset()
			}
		}
		node.ByteEnd = contentEnd
		node.Text = text.String()
		node.TextStart = runeLen
		runeLen += utf8.RuneCountInString(node.Text)
		node.TextEnd = runeLen
		b.WriteString(node.Text)
		idx.Nodes = append(idx.Nodes, node)
	}
	idx.Text = b.String()
	return idx, nil
}

// NodesInRange returns the indices of nodes overlapping [start, end) in rune
// offsets, restricted to the given kind.
func (idx *PartIndex) NodesInRange(start, end int, kind NodeKind) []int {
	var out []int
	for i, n := range idx.Nodes {
		if n.Kind == kind && n.TextStart < end && start < n.TextEnd {
			out = append(out, i)
		}
	}
	return out
}
