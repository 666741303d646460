package writer

import (
	"bytes"
	"context"
	"testing"

	"vaultredact/ir/raw"
	"vaultredact/parser"
)

func sampleDoc() *raw.Document {
	doc := raw.NewDocument()
	doc.Version = "1.4"

	pageDict := raw.NewDict()
	pageDict.Set("Type", raw.NameObj{Value: "Page"})
	pageRef := doc.AddObject(pageDict)

	pages := raw.NewDict()
	pages.Set("Type", raw.NameObj{Value: "Pages"})
	pages.Set("Kids", raw.ArrayObj{Items: []raw.Object{raw.RefObj{Ref: pageRef}}})
	pages.Set("Count", raw.Integer(1))
	pagesRef := doc.AddObject(pages)
	pageDict.Set("Parent", raw.RefObj{Ref: pagesRef})

	catalog := raw.NewDict()
	catalog.Set("Type", raw.NameObj{Value: "Catalog"})
	catalog.Set("Pages", raw.RefObj{Ref: pagesRef})
	catalogRef := doc.AddObject(catalog)

	streamDict := raw.NewDict()
	stream := &raw.StreamObj{Dict: streamDict, Raw: []byte("BT (x) Tj ET")}
	contentsRef := doc.AddObject(stream)
	pageDict.Set("Contents", raw.RefObj{Ref: contentsRef})

	doc.Trailer.Set("Root", raw.RefObj{Ref: catalogRef})
	return doc
}

func TestWriteRoundTripsThroughParser(t *testing.T) {
	out, err := Write(sampleDoc())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-1.4")) {
		t.Fatalf("header: %q", out[:16])
	}

	doc, err := parser.Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	root := doc.ResolveDict(doc.Trailer.Values["Root"])
	if root == nil || root.Name("Type") != "Catalog" {
		t.Fatalf("root = %+v", root)
	}
	contents, ok := doc.Resolve(raw.RefObj{Ref: raw.ObjectRef{Number: 4}}).(*raw.StreamObj)
	if !ok {
		t.Fatal("contents stream missing")
	}
	if string(contents.Raw) != "BT (x) Tj ET" {
		t.Errorf("stream = %q", contents.Raw)
	}
	if n, _ := contents.Dict.Int("Length"); n != 12 {
		t.Errorf("Length = %d", n)
	}
}

func TestWriteDropsPrevFromTrailer(t *testing.T) {
	doc := sampleDoc()
	doc.Trailer.Set("Prev", raw.Integer(12345))
	out, err := Write(doc)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("/Prev")) {
		t.Error("trailer still references previous revision")
	}
}

func TestStringEscaping(t *testing.T) {
	var buf bytes.Buffer
	if err := serialize(&buf, raw.StringObj{Raw: []byte("a(b)\\c\nd")}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != `(a\(b\)\\c\nd)` {
		t.Errorf("got %s", got)
	}
}

func TestHexStringSerialization(t *testing.T) {
	var buf bytes.Buffer
	if err := serialize(&buf, raw.StringObj{Raw: []byte{0xFE, 0xFF, 0x00, 0x41}, Hex: true}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "<FEFF0041>" {
		t.Errorf("got %s", got)
	}
}

func TestNameEscaping(t *testing.T) {
	var buf bytes.Buffer
	writeName(&buf, "A B#C")
	if got := buf.String(); got != "/A#20B#23C" {
		t.Errorf("got %s", got)
	}
}
