package docx

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"vaultredact/redaction"
)

const minimalDoc = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>call 555-</w:t></w:r><w:r><w:t>1234 today</w:t></w:r></w:p>
<w:p><w:r><w:t>nothing sensitive</w:t></w:r></w:p>
</w:body>
</w:document>`

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
<Default Extension="bin" ContentType="application/vnd.ms-office.vbaProject"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.ms-word.document.macroEnabled.main+xml"/>
<Override PartName="/word/vbaProject.bin" ContentType="application/vnd.ms-office.vbaProject"/>
</Types>`

const documentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.microsoft.com/office/2006/relationships/vbaProject" Target="vbaProject.bin"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

const coreXML = `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:creator>Jane Author</dc:creator>
<cp:lastModifiedBy>Someone Else</cp:lastModifiedBy>
<dc:title>Quarterly Review</dc:title>
</cp:coreProperties>`

func buildDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": contentTypes,
		"word/document.xml":   minimalDoc,
	} {
		if _, ok := parts[name]; !ok {
			f, _ := w.Create(name)
			f.Write([]byte(content))
		}
	}
	for name, content := range parts {
		f, _ := w.Create(name)
		f.Write([]byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIndexPartOffsets(t *testing.T) {
	idx, err := IndexPart("word/document.xml", []byte(minimalDoc))
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Nodes) != 3 {
		t.Fatalf("nodes = %d", len(idx.Nodes))
	}
	if !strings.Contains(idx.Text, "call 555-1234 today") {
		t.Fatalf("runs did not concatenate: %q", idx.Text)
	}
	if !strings.Contains(idx.Text, "today\nnothing") {
		t.Errorf("paragraph break missing: %q", idx.Text)
	}

	n := idx.Nodes[0]
	if got := minimalDoc[n.ByteStart:n.ByteEnd]; got != "call 555-" {
		t.Errorf("byte range captured %q", got)
	}
}

func TestRedactPartAcrossRuns(t *testing.T) {
	idx, err := IndexPart("word/document.xml", []byte(minimalDoc))
	if err != nil {
		t.Fatal(err)
	}
	start := strings.Index(idx.Text, "555-1234")
	ent := redaction.DetectedEntity{Text: "555-1234", Start: start, End: start + 8}

	out, touched, err := RedactPart(idx, []byte(minimalDoc), []redaction.DetectedEntity{ent})
	if err != nil {
		t.Fatal(err)
	}
	if touched != 2 {
		t.Errorf("touched = %d, want 2 nodes", touched)
	}
	result := string(out)
	if strings.Contains(result, "555-") || strings.Contains(result, "1234") {
		t.Errorf("sensitive text survived: %s", result)
	}
	if !strings.Contains(result, "call [REDACTED]") {
		t.Errorf("placeholder missing in first run: %s", result)
	}
	if !strings.Contains(result, " today") {
		t.Errorf("trailing text of second run lost: %s", result)
	}
	if !strings.Contains(result, "nothing sensitive") {
		t.Errorf("untouched paragraph damaged: %s", result)
	}
}

func TestRedactPartTwoEntitiesSameNode(t *testing.T) {
	doc := `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>AAAAAAAAAAAAAAAAAAAAA 987-65-4321</w:t></w:r></w:p></w:body></w:document>`
	idx, err := IndexPart("word/document.xml", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	// A long entity first so its replacement shifts everything after it,
	// then a second entity later in the same node.
	ents := []redaction.DetectedEntity{
		{Text: "AAAAAAAAAAAAAAAAAAAAA", Start: 0, End: 21},
		{Text: "987-65-4321", Start: 22, End: 33},
	}
	out, _, err := RedactPart(idx, []byte(doc), ents)
	if err != nil {
		t.Fatal(err)
	}
	result := string(out)
	if strings.Contains(result, "987-65-4321") || strings.Contains(result, "AAA") {
		t.Fatalf("entity survived: %s", result)
	}
	if !strings.Contains(result, "<w:t>[REDACTED] [REDACTED]</w:t>") {
		t.Errorf("placeholders misplaced: %s", result)
	}
}

func TestRedactPartEscapesPlaceholderContext(t *testing.T) {
	doc := `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>a &amp; b secret</w:t></w:r></w:p></w:body></w:document>`
	idx, err := IndexPart("word/document.xml", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	start := strings.Index(idx.Text, "secret")
	ent := redaction.DetectedEntity{Text: "secret", Start: start, End: start + 6}
	out, _, err := RedactPart(idx, []byte(doc), []redaction.DetectedEntity{ent})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "a &amp; b [REDACTED]") {
		t.Errorf("ampersand not re-escaped: %s", out)
	}
}

func TestInstrTextCleared(t *testing.T) {
	doc := `<w:document xmlns:w="x"><w:body><w:p><w:r><w:instrText>MERGEFIELD ssn_123-45-6789</w:instrText></w:r></w:p></w:body></w:document>`
	idx, err := IndexPart("word/document.xml", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	start := strings.Index(idx.Text, "123-45-6789")
	ent := redaction.DetectedEntity{Text: "123-45-6789", Start: start, End: start + 11}
	out, touched, err := RedactPart(idx, []byte(doc), []redaction.DetectedEntity{ent})
	if err != nil {
		t.Fatal(err)
	}
	if touched != 1 {
		t.Errorf("touched = %d", touched)
	}
	if strings.Contains(string(out), "MERGEFIELD") {
		t.Errorf("field instruction survived: %s", out)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	a, err := OpenArchive(buildDocx(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	parts := a.TextParts()
	if len(parts) != 1 || parts[0] != "word/document.xml" {
		t.Fatalf("text parts = %v", parts)
	}

	saved, err := a.Save()
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := OpenArchive(saved)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := reopened.Part("word/document.xml")
	if string(got) != minimalDoc {
		t.Error("document.xml changed across save")
	}
}

func TestStripMacros(t *testing.T) {
	a, err := OpenArchive(buildDocx(t, map[string]string{
		"word/vbaProject.bin":          "binary macro payload",
		"word/_rels/document.xml.rels": documentRels,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !StripMacros(a) {
		t.Fatal("macros not detected")
	}
	if _, ok := a.Part("word/vbaProject.bin"); ok {
		t.Error("vbaProject.bin still present")
	}
	rels, _ := a.Part("word/_rels/document.xml.rels")
	if strings.Contains(string(rels), "vbaProject") {
		t.Error("relationship to macro project survived")
	}
	if !strings.Contains(string(rels), "styles.xml") {
		t.Error("unrelated relationship was dropped")
	}
	types, _ := a.Part("[Content_Types].xml")
	if strings.Contains(string(types), "macroEnabled") {
		t.Error("content type still macro-enabled")
	}
	if strings.Contains(string(types), "vbaProject") {
		t.Error("macro override survived")
	}
}

func TestSanitizeMetadata(t *testing.T) {
	a, err := OpenArchive(buildDocx(t, map[string]string{
		"docProps/core.xml":   coreXML,
		"docProps/custom.xml": `<Properties><property name="Client">Acme</property></Properties>`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	SanitizeMetadata(a)
	core, _ := a.Part("docProps/core.xml")
	for _, leaked := range []string{"Jane Author", "Someone Else", "Quarterly Review"} {
		if strings.Contains(string(core), leaked) {
			t.Errorf("core.xml still contains %q", leaked)
		}
	}
	if !strings.Contains(string(core), "<dc:creator></dc:creator>") {
		t.Errorf("creator element should remain, emptied: %s", core)
	}
	if _, ok := a.Part("docProps/custom.xml"); ok {
		t.Error("custom.xml survived")
	}
}

func TestRawPartTextStripsMarkup(t *testing.T) {
	got := RawPartText([]byte(`<w:p><w:r><w:t>a &amp; b</w:t></w:r></w:p>`))
	if !strings.Contains(got, "a & b") {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("tag survived: %q", got)
	}
}
