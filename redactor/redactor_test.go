package redactor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"vaultredact/detect"
	"vaultredact/extractor"
	"vaultredact/format"
	"vaultredact/redaction"
)

func newPipeline(t *testing.T, rules ...detect.Rule) *Pipeline {
	t.Helper()
	if len(rules) == 0 {
		rules = []detect.Rule{{ID: "ssn", Name: "SSN", Version: "1", Pattern: `\d{3}-\d{2}-\d{4}`}}
	}
	d, err := detect.NewDetector(&detect.Template{ID: "tpl", Name: "test", Version: "1", Rules: rules})
	if err != nil {
		t.Fatal(err)
	}
	return New(d, nil, nil)
}

/// buildPDF mirrors the extractor test fixture: fixed 500-unit glyph widths.
func buildPDF(t *testing.T, pageContents ...string) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	var bodies []string
	addObj := func(body string) int {
		bodies = append(bodies, body)
		return len(bodies)
	}

	fontNum := addObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 32 /LastChar 126 /Widths [" +
		strings.TrimSpace(strings.Repeat("500 ", 95)) + "] >>")

	var kidRefs []string
	pagesNum := len(bodies) + 2*len(pageContents) + 1
	for _, content := range pageContents {
		contentNum := addObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
		pageNum := addObj(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesNum, fontNum, contentNum))
		kidRefs = append(kidRefs, fmt.Sprintf("%d 0 R", pageNum))
	}

	addObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kidRefs, " "), len(pageContents)))
	catalogNum := addObj(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesNum))

	offsets := make([]int, len(bodies))
	for i, body := range bodies {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xrefPos := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(bodies)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(bodies)+1, catalogNum, xrefPos)
	return []byte(b.String())
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`,
		"word/document.xml":   documentXML,
	} {
		f, _ := w.Create(name)
		f.Write([]byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRedactPDFEndToEnd(t *testing.T) {
	data := buildPDF(t,
		"BT /F1 12 Tf 1 0 0 1 72 720 Tm (SSN 123-45-6789) Tj ET",
		"BT /F1 12 Tf 1 0 0 1 72 720 Tm (no secrets here) Tj ET",
	)
	p := newPipeline(t)
	res, err := p.Redact(context.Background(), data, Options{DocumentName: "doc.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != format.PDF {
		t.Errorf("format = %v", res.Format)
	}

	doc, err := extractor.Open(context.Background(), res.Output)
	if err != nil {
		t.Fatalf("output unreadable: %v", err)
	}
	text := extractor.FlatText(doc)
	if strings.Contains(text, "123-45-6789") {
		t.Error("SSN survived redaction")
	}
	if !strings.Contains(text, "no secrets here") {
		t.Error("unrelated page text was destroyed")
	}

	idx, err := extractor.BuildIndex(doc)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(idx.Text, "123-45-6789") {
		t.Error("SSN visible through indexed extraction")
	}

	report := res.Report
	if report.Entities != 1 || !report.Verified || report.Attempts != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.ByPage) != 1 || report.ByPage[0] == 0 {
		t.Errorf("by page = %v", report.ByPage)
	}
	if report.ByRule["ssn"] != 1 {
		t.Errorf("by rule = %v", report.ByRule)
	}
	if report.RuleVersions["ssn"] != "1" {
		t.Errorf("rule versions = %v", report.RuleVersions)
	}
	if report.CoverageIncomplete {
		t.Error("coverage flagged incomplete with every box resolved")
	}
}

func TestRedactPDFPaintsCover(t *testing.T) {
	data := buildPDF(t, "BT /F1 12 Tf 1 0 0 1 72 720 Tm (SSN 123-45-6789) Tj ET")
	p := newPipeline(t)
	res, err := p.Redact(context.Background(), data, Options{})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := extractor.Open(context.Background(), res.Output)
	if err != nil {
		t.Fatal(err)
	}
	content := string(doc.Pages[0].Content)
	if !strings.Contains(content, " re\nf\n") && !strings.Contains(content, " re f") {
		t.Errorf("no cover rectangle in rewritten stream:\n%s", content)
	}
}

func TestRedactPDFStripsInfoAndMetadata(t *testing.T) {
	data := buildPDF(t, "BT /F1 12 Tf (SSN 123-45-6789) Tj ET")
	p := newPipeline(t)
	res, err := p.Redact(context.Background(), data, Options{})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := extractor.Open(context.Background(), res.Output)
	if err != nil {
		t.Fatal(err)
	}
	info := doc.Raw.ResolveDict(doc.Raw.Trailer.Values["Info"])
	if info == nil {
		t.Fatal("info dictionary missing")
	}
	if len(info.Keys) != 1 || info.Keys[0] != "Producer" {
		t.Errorf("info keys = %v", info.Keys)
	}
	root := doc.Raw.ResolveDict(doc.Raw.Trailer.Values["Root"])
	for _, key := range []string{"Outlines", "Names", "OCProperties", "Metadata"} {
		if _, ok := root.Get(key); ok {
			t.Errorf("catalog still has %s", key)
		}
	}
}

func TestRedactPDFNoMatches(t *testing.T) {
	data := buildPDF(t, "BT /F1 12 Tf (nothing sensitive at all) Tj ET")
	p := newPipeline(t)
	_, err := p.Redact(context.Background(), data, Options{})
	var nerr *redaction.NoMatchesError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v", err)
	}
}

func TestRedactUnsupportedFormat(t *testing.T) {
	p := newPipeline(t)
	_, err := p.Redact(context.Background(), []byte("just some plain text bytes"), Options{})
	var uerr *redaction.UnsupportedFormatError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v", err)
	}
}

func TestRedactDocxEndToEnd(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body><w:p><w:r><w:t>SSN 123-</w:t></w:r><w:r><w:t>45-6789 on record</w:t></w:r></w:p></w:body>
</w:document>`
	data := buildDocx(t, docXML)
	p := newPipeline(t)
	res, err := p.Redact(context.Background(), data, Options{DocumentName: "doc.docx"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != format.DOCX {
		t.Errorf("format = %v", res.Format)
	}

	r, err := zip.NewReader(bytes.NewReader(res.Output), int64(len(res.Output)))
	if err != nil {
		t.Fatal(err)
	}
	var body string
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			rc, _ := f.Open()
			var b bytes.Buffer
			b.ReadFrom(rc)
			rc.Close()
			body = b.String()
		}
	}
	if strings.Contains(body, "123-") || strings.Contains(body, "45-6789") {
		t.Errorf("SSN survived: %s", body)
	}
	if !strings.Contains(body, "[REDACTED]") {
		t.Errorf("placeholder missing: %s", body)
	}
	if !strings.Contains(body, " on record") {
		t.Errorf("trailing text lost: %s", body)
	}
	if report := res.Report; len(report.PartsTouched) != 1 || report.PartsTouched[0] != "word/document.xml" {
		t.Errorf("parts touched = %v", report.PartsTouched)
	}
}

func TestRedactDocxSupplementalTerm(t *testing.T) {
	docXML := `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>prepared for Acme Corp</w:t></w:r></w:p></w:body></w:document>`
	data := buildDocx(t, docXML)
	p := newPipeline(t)
	res, err := p.Redact(context.Background(), data, Options{Supplemental: []string{"acme corp"}})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(res.Output, []byte("Acme")) {
		t.Error("supplemental term survived")
	}
}

func TestVerifySweepSkipsShortEntities(t *testing.T) {
	res := sweep("the text contains ab somewhere", []redaction.DetectedEntity{
		{Text: "ab"},
		{Text: "missing-entirely"},
	}, 1)
	if !res.Clean {
		t.Errorf("short entity should be skipped: %+v", res)
	}
}

func TestVerifySweepCatchesSplitText(t *testing.T) {
	res := sweep("leaked 123-45\n-6789 here", []redaction.DetectedEntity{{Text: "123-45-6789"}}, 2)
	if res.Clean {
		t.Error("whitespace-split leak not caught")
	}
	if res.Attempt != 2 || len(res.Remaining) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRedactPDFUnbalancedStreamRefusesToVerify(t *testing.T) {
	// Missing ET: the engine keeps the original operators under a cover, and
	// verification honestly reports the text as still extractable.
	data := buildPDF(t, "BT /F1 12 Tf 1 0 0 1 72 720 Tm (SSN 123-45-6789) Tj")
	p := newPipeline(t)
	_, err := p.Redact(context.Background(), data, Options{})
	var verr *redaction.VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v", err)
	}
	if verr.Attempts != 3 || len(verr.Remaining) == 0 {
		t.Errorf("verification error = %+v", verr)
	}
}

type fixedSuggester struct {
	terms []string
}

func (s fixedSuggester) Suggest(context.Context, []detect.Rule, string) ([]string, error) {
	return s.terms, nil
}

func TestSuggesterFoldsIntoDocx(t *testing.T) {
	docXML := `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>project Bluebird kickoff</w:t></w:r></w:p></w:body></w:document>`
	data := buildDocx(t, docXML)
	d, err := detect.NewDetector(&detect.Template{ID: "tpl", Name: "t", Version: "1", Rules: []detect.Rule{
		{ID: "ai", Name: "codenames", Version: "1", AIPrompt: "find project codenames"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	p := New(d, fixedSuggester{terms: []string{"Bluebird"}}, nil)
	res, err := p.Redact(context.Background(), data, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(res.Output, []byte("Bluebird")) {
		t.Error("suggested term survived")
	}
}
