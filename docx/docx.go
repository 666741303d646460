// Package docx rewrites Office Open XML word documents at the run level.
// Parts are edited by byte splicing against offsets recorded during parsing,
// never by re-marshalling, so formatting and unknown markup survive intact.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Archive is an opened .docx with all parts buffered.
type Archive struct {
	parts map[string][]byte
	order []string // zip entry order, preserved on save
}

// OpenArchive reads every entry of the zip container.
func OpenArchive(data []byte) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx: open container: %w", err)
	}
	a := &Archive{parts: make(map[string][]byte, len(r.File))}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("docx: open part %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("docx: read part %s: %w", f.Name, err)
		}
		a.parts[f.Name] = content
		a.order = append(a.order, f.Name)
	}
	if _, ok := a.parts["word/document.xml"]; !ok {
		return nil, fmt.Errorf("docx: container has no word/document.xml")
	}
	return a, nil
}

func (a *Archive) Part(name string) ([]byte, bool) {
	p, ok := a.parts[name]
	return p, ok
}

func (a *Archive) SetPart(name string, content []byte) {
	if _, ok := a.parts[name]; !ok {
		a.order = append(a.order, name)
	}
	a.parts[name] = content
}

func (a *Archive) RemovePart(name string) {
	if _, ok := a.parts[name]; !ok {
		return
	}
	delete(a.parts, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

var textPartRe = regexp.MustCompile(`^word/(document|header\d*|footer\d*|footnotes|endnotes|comments)\.xml$`)

// TextParts lists the parts that can carry visible or field text, in a
// stable order.
func (a *Archive) TextParts() []string {
	var out []string
	for name := range a.parts {
		if textPartRe.MatchString(name) || (strings.HasPrefix(name, "customXml/") && path.Ext(name) == ".xml" && !strings.Contains(name, "_rels")) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	// document.xml first; everything else keeps lexical order.
	for i, name := range out {
		if name == "word/document.xml" {
			out[0], out[i] = out[i], out[0]
			break
		}
	}
	return out
}

// Save rebuilds the zip container. Entry order follows the original file.
func (a *Archive) Save() ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range a.order {
		content, ok := a.parts[name]
		if !ok {
			continue
		}
		f, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
