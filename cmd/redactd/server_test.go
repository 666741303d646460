package main

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"vaultredact/config"
	"vaultredact/detect"
	"vaultredact/observability"
	"vaultredact/redaction"
	"vaultredact/store"
)

func testServer(t *testing.T) *server {
	t.Helper()
	storage, err := store.NewFSStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return newServer(serverDeps{
		cfg: &config.Config{
			Server: config.ServerConfig{MaxUploadBytes: 8 << 20},
		},
		log: observability.NopLogger{},
		template: &detect.Template{
			ID: "tpl", Name: "test", Version: "1",
			Rules: []detect.Rule{{ID: "ssn", Name: "SSN", Version: "1", Pattern: `\d{3}-\d{2}-\d{4}`}},
		},
		storage: storage,
	})
}

func testDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`,
		"word/document.xml":   `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>` + body + `</w:t></w:r></w:p></w:body></w:document>`,
	}
	for name, content := range files {
		f, _ := w.Create(name)
		f.Write([]byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, data []byte, supplemental string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	if supplemental != "" {
		mw.WriteField("supplemental", supplemental)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/redact", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer(t).routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRedactEndpoint(t *testing.T) {
	srv := testServer(t)
	req := uploadRequest(t, "memo.docx", testDocx(t, "SSN is 123-45-6789"), "")

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp redactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Document != "redacted-memo.docx" {
		t.Errorf("document = %q", resp.Document)
	}
	out, err := base64.StdEncoding.DecodeString(resp.Output)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("123-45-6789")) {
		t.Error("entity survived in output")
	}
	if !resp.Report.Verified || resp.Report.Entities == 0 {
		t.Errorf("report = %+v", resp.Report)
	}

	stored, err := srv.deps.storage.Fetch(req.Context(), resp.Document)
	if err != nil {
		t.Fatalf("output not stored: %v", err)
	}
	if !bytes.Equal(stored, out) {
		t.Error("stored output differs from response")
	}
}

func TestRedactNoMatches(t *testing.T) {
	srv := testServer(t)
	req := uploadRequest(t, "memo.docx", testDocx(t, "nothing sensitive"), "")

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRedactUnsupportedFormat(t *testing.T) {
	srv := testServer(t)
	req := uploadRequest(t, "notes.txt", []byte("plain text, not a document"), "")

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRedactSupplementalTerms(t *testing.T) {
	srv := testServer(t)
	req := uploadRequest(t, "memo.docx", testDocx(t, "codename Bluebird and SSN 123-45-6789"), "bluebird")

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp redactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	out, _ := base64.StdEncoding.DecodeString(resp.Output)
	if bytes.Contains(out, []byte("Bluebird")) {
		t.Error("supplemental term survived")
	}
}

func TestSwapTemplateRejectsInvalid(t *testing.T) {
	srv := testServer(t)
	before := srv.currentPipeline()
	srv.swapTemplate(&detect.Template{ID: "bad"}) // fails validation
	if srv.currentPipeline() != before {
		t.Error("invalid template replaced the pipeline")
	}
}

func TestSwapTemplateChangesRules(t *testing.T) {
	srv := testServer(t)
	srv.swapTemplate(&detect.Template{
		ID: "tpl", Name: "test", Version: "2",
		Rules: []detect.Rule{{ID: "phone", Name: "phone", Version: "2", Pattern: `\d{3}-\d{4}`}},
	})

	req := uploadRequest(t, "memo.docx", testDocx(t, "call 555-0199 today"), "")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp redactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Report.RuleVersions["phone"] != "2" {
		t.Errorf("rule versions = %v", resp.Report.RuleVersions)
	}
}

func TestReportsWithoutStore(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer(t).routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestClassifyStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&redaction.TemplateValidationError{Reason: "bad"}, http.StatusBadRequest},
		{&redaction.UnsupportedFormatError{Detected: "zip"}, http.StatusUnsupportedMediaType},
		{&redaction.NoMatchesError{Rules: 1}, http.StatusUnprocessableEntity},
		{&redaction.VerificationError{Attempts: 3}, http.StatusConflict},
	}
	for _, tc := range cases {
		got, _ := classify(tc.err)
		if got != tc.want {
			t.Errorf("classify(%T) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
