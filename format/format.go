// Package format sniffs document types from magic bytes. Extensions and
// client-supplied content types are never trusted.
package format

import (
	"bytes"

	"vaultredact/redaction"
)

type Kind string

const (
	PDF     Kind = "pdf"
	DOCX    Kind = "docx"
	Unknown Kind = "unknown"
)

// minZipSize is the smallest container that can hold a central directory.
// Anything shorter that starts with PK is a fragment, not a document.
const minZipSize = 22

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// Sniff identifies data or returns UnsupportedFormatError.
func Sniff(data []byte) (Kind, error) {
	if k := Detect(data); k != Unknown {
		return k, nil
	}
	detected := ""
	if bytes.HasPrefix(data, zipMagic) {
		detected = "truncated zip"
	}
	return Unknown, &redaction.UnsupportedFormatError{Detected: detected}
}

// Detect is Sniff without the error, for callers that branch themselves.
func Detect(data []byte) Kind {
	// Some producers emit junk before the header; the PDF grammar allows it
	// within the first kilobyte.
	window := data
	if len(window) > 1024 {
		window = window[:1024]
	}
	if bytes.Contains(window, pdfMagic) {
		return PDF
	}
	if bytes.HasPrefix(data, zipMagic) && len(data) >= minZipSize {
		return DOCX
	}
	return Unknown
}
