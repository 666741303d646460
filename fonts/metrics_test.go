package fonts

import (
	"math"
	"testing"

	"vaultredact/filters"
	"vaultredact/ir/raw"
)

func TestHeuristicWidth(t *testing.T) {
	f := FromDict(raw.NewDocument(), nil, filters.NewPipeline(filters.Limits{}))
	got := f.TextWidth("Hello", 12)
	want := 5 * 12 * HeuristicFactor
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("width = %v, want %v", got, want)
	}
}

func TestWidthsArray(t *testing.T) {
	doc := raw.NewDocument()
	dict := raw.NewDict()
	dict.Set("FirstChar", raw.Integer(65)) // 'A'
	dict.Set("Widths", raw.ArrayObj{Items: []raw.Object{
		raw.Integer(700), // A
		raw.Integer(650), // B
	}})
	f := FromDict(doc, dict, filters.NewPipeline(filters.Limits{}))

	got := f.TextWidth("AB", 10)
	want := (700.0 + 650.0) / 1000 * 10
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("width = %v, want %v", got, want)
	}
}

func TestWidthsArrayMissingGlyphUsesHeuristic(t *testing.T) {
	doc := raw.NewDocument()
	dict := raw.NewDict()
	dict.Set("FirstChar", raw.Integer(65))
	dict.Set("Widths", raw.ArrayObj{Items: []raw.Object{raw.Integer(700)}})
	f := FromDict(doc, dict, filters.NewPipeline(filters.Limits{}))

	got := f.TextWidth("AZ", 10)
	want := 700.0/1000*10 + HeuristicFactor*10
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("width = %v, want %v", got, want)
	}
}

func TestIndirectWidthsResolve(t *testing.T) {
	doc := raw.NewDocument()
	widthsRef := doc.AddObject(raw.ArrayObj{Items: []raw.Object{raw.Integer(500)}})
	dict := raw.NewDict()
	dict.Set("FirstChar", raw.Integer(32))
	dict.Set("Widths", raw.RefObj{Ref: widthsRef})
	f := FromDict(doc, dict, filters.NewPipeline(filters.Limits{}))

	got := f.TextWidth(" ", 10)
	if math.Abs(got-5.0) > 1e-9 {
		t.Errorf("width = %v, want 5", got)
	}
}
