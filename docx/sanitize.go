package docx

import (
	"bytes"
	"regexp"
)

const (
	macroDocContentType = "application/vnd.ms-word.document.macroEnabled.main+xml"
	plainDocContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// StripMacros removes the VBA project and every reference to it, then
// downgrades a macro-enabled document to a plain one. Returns true when
// anything was removed.
func StripMacros(a *Archive) bool {
	stripped := false
	for _, name := range []string{"word/vbaProject.bin", "word/vbaData.xml", "word/_rels/vbaProject.bin.rels"} {
		if _, ok := a.Part(name); ok {
			a.RemovePart(name)
			stripped = true
		}
	}
	if !stripped {
		return false
	}

	if rels, ok := a.Part("word/_rels/document.xml.rels"); ok {
		a.SetPart("word/_rels/document.xml.rels", dropRelationships(rels, "vbaProject"))
	}
	if types, ok := a.Part("[Content_Types].xml"); ok {
		cleaned := bytes.ReplaceAll(types, []byte(macroDocContentType), []byte(plainDocContentType))
		cleaned = dropOverrides(cleaned, "vbaProject")
		cleaned = dropDefaults(cleaned, "bin")
		a.SetPart("[Content_Types].xml", cleaned)
	}
	return true
}

var relationshipRe = regexp.MustCompile(`<Relationship\b[^>]*/>|<Relationship\b[^>]*>.*?</Relationship>`)

func dropRelationships(rels []byte, marker string) []byte {
	return relationshipRe.ReplaceAllFunc(rels, func(m []byte) []byte {
		if bytes.Contains(m, []byte(marker)) {
			return nil
		}
		return m
	})
}

var overrideRe = regexp.MustCompile(`<Override\b[^>]*/>`)

func dropOverrides(types []byte, marker string) []byte {
	return overrideRe.ReplaceAllFunc(types, func(m []byte) []byte {
		if bytes.Contains(m, []byte(marker)) {
			return nil
		}
		return m
	})
}

var defaultRe = regexp.MustCompile(`<Default\b[^>]*/>`)

func dropDefaults(types []byte, extension string) []byte {
	needle := []byte(`Extension="` + extension + `"`)
	return defaultRe.ReplaceAllFunc(types, func(m []byte) []byte {
		if bytes.Contains(m, needle) {
			return nil
		}
		return m
	})
}

// metadata elements cleared from docProps/core.xml
var coreProps = []string{
	"dc:creator", "cp:lastModifiedBy", "dc:title", "dc:subject",
	"dc:description", "cp:keywords", "cp:category",
}

// appProps cleared from docProps/app.xml
var appProps = []string{"Company", "Manager"}

// SanitizeMetadata clears identifying properties and drops custom properties
// wholesale.
func SanitizeMetadata(a *Archive) {
	if core, ok := a.Part("docProps/core.xml"); ok {
		for _, el := range coreProps {
			core = clearElement(core, el)
		}
		a.SetPart("docProps/core.xml", core)
	}
	if app, ok := a.Part("docProps/app.xml"); ok {
		for _, el := range appProps {
			app = clearElement(app, el)
		}
		a.SetPart("docProps/app.xml", app)
	}
	if _, ok := a.Part("docProps/custom.xml"); ok {
		a.RemovePart("docProps/custom.xml")
		if types, ok := a.Part("[Content_Types].xml"); ok {
			a.SetPart("[Content_Types].xml", dropOverrides(types, "custom.xml"))
		}
		if rels, ok := a.Part("_rels/.rels"); ok {
			a.SetPart("_rels/.rels", dropRelationships(rels, "custom.xml"))
		}
	}
}

// clearElement empties <el ...>content</el> occurrences.
func clearElement(doc []byte, el string) []byte {
	re := regexp.MustCompile(`(<` + regexp.QuoteMeta(el) + `(?:\s[^>]*)?>)(?s:.*?)(</` + regexp.QuoteMeta(el) + `>)`)
	return re.ReplaceAll(doc, []byte("$1$2"))
}
