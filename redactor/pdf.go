package redactor

import (
	"context"
	"sync"

	"vaultredact/contentstream"
	"vaultredact/extractor"
	"vaultredact/filters"
	"vaultredact/fonts"
	"vaultredact/geo"
	"vaultredact/ir/raw"
	"vaultredact/observability"
	"vaultredact/redaction"
	"vaultredact/writer"
)

// PDFEngine rewrites PDF pages: text-showing operators under a redaction box
// are removed from the content stream and the box is painted over.
type PDFEngine struct {
	log observability.Logger
}

func NewPDFEngine(log observability.Logger) *PDFEngine {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &PDFEngine{log: log}
}

// Apply rewrites doc in place and serializes it. Pages are processed
// concurrently; each page owns its content stream object.
func (e *PDFEngine) Apply(ctx context.Context, doc *extractor.Document, boxes []redaction.RedactionBox, params redaction.Params) ([]byte, error) {
	byPage := make(map[int][]geo.Rect)
	for _, box := range boxes {
		byPage[box.Page] = append(byPage[box.Page], box.Rect)
	}

	var wg sync.WaitGroup
	results := make([]pageResult, len(doc.Pages))
	for i, page := range doc.Pages {
		rects := byPage[page.Number]
		if len(rects) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, page *extractor.Page, rects []geo.Rect) {
			defer wg.Done()
			results[i] = e.rewritePage(page, rects)
		}(i, page, rects)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	anyRemoved := false
	for i, page := range doc.Pages {
		res := results[i]
		if res.content == nil {
			continue
		}
		if res.removed > 0 {
			anyRemoved = true
		}
		if res.integrity != nil {
			e.log.Warn("content stream fallback, covering original page",
				observability.Int("page", page.Number),
				observability.Error("reason", res.integrity))
		}
		e.replaceContents(doc, page, res.content)
		page.Dict.Delete("Annots")
	}

	stripStructure(doc.Raw, anyRemoved)
	sanitizeInfo(doc.Raw)
	if params.AggressiveRebuild {
		dropUnreachable(doc.Raw)
	}
	return writer.Write(doc.Raw)
}

type pageResult struct {
	content   []byte
	removed   int
	integrity error
}

// rewritePage filters the page's operators and appends opaque covers. When
// the stream fails its balance check the original operators are kept and the
// covers alone carry the redaction.
func (e *PDFEngine) rewritePage(page *extractor.Page, rects []geo.Rect) pageResult {
	res := pageResult{}
	ops, err := contentstream.Parse(page.Content)
	if err != nil {
		ops = nil
		res.integrity = &redaction.StreamIntegrityError{Page: page.Number, Detail: err.Error()}
	}

	if res.integrity == nil {
		filtered, removed, err := contentstream.RemoveTextInRects(ops, engineResolver{page}, rects)
		if err != nil {
			res.integrity = &redaction.StreamIntegrityError{Page: page.Number, Detail: err.Error()}
		} else {
			ops = filtered
			res.removed = removed
		}
	}

	var body []byte
	if res.integrity == nil {
		body = contentstream.Serialize(ops)
	} else {
		body = append([]byte(nil), page.Content...)
		body = append(body, '\n')
	}
	res.content = append(body, coverOps(rects)...)
	return res
}

// coverOps paints opaque black rectangles over every box.
func coverOps(rects []geo.Rect) []byte {
	var ops []contentstream.Operation
	for _, r := range rects {
		ops = append(ops,
			contentstream.Operation{Operator: "q"},
			contentstream.Operation{Operator: "g", Operands: []contentstream.Value{contentstream.Number(0)}},
			contentstream.Operation{Operator: "re", Operands: []contentstream.Value{
				contentstream.Number(r.X1), contentstream.Number(r.Y1),
				contentstream.Number(r.Width()), contentstream.Number(r.Height()),
			}},
			contentstream.Operation{Operator: "f"},
			contentstream.Operation{Operator: "Q"},
		)
	}
	return contentstream.Serialize(ops)
}

// replaceContents swaps the page's content for a single flate stream. The
// old stream objects are deleted immediately: leaving them orphaned would
// ship the original text inside the output file.
func (e *PDFEngine) replaceContents(doc *extractor.Document, page *extractor.Page, content []byte) {
	deleteItems := func(arr raw.ArrayObj) {
		for _, item := range arr.Items {
			if ref, ok := item.(raw.RefObj); ok {
				delete(doc.Raw.Objects, ref.Ref)
			}
		}
	}
	switch v := page.Dict.Values["Contents"].(type) {
	case raw.RefObj:
		if arr, ok := doc.Raw.Objects[v.Ref].(raw.ArrayObj); ok {
			deleteItems(arr)
		}
		delete(doc.Raw.Objects, v.Ref)
	case raw.ArrayObj:
		deleteItems(v)
	}

	dict := raw.NewDict()
	dict.Set("Filter", raw.NameObj{Value: "FlateDecode"})
	stream := &raw.StreamObj{Dict: dict, Raw: filters.FlateEncode(content)}
	ref := doc.Raw.AddObject(stream)
	page.Dict.Set("Contents", raw.RefObj{Ref: ref})
}

// stripStructure removes document-level leftovers that can carry redacted
// text: annotations are handled per page; here go outlines, optional content
// groups, the name trees (embedded files and search indices), XMP metadata,
// and, once operators were dropped, the tagged-PDF structure tree whose
// /ActualText would echo them.
func stripStructure(doc *raw.Document, opsRemoved bool) {
	root := doc.ResolveDict(doc.Trailer.Values["Root"])
	if root == nil {
		return
	}
	for _, key := range []string{"Outlines", "OCProperties", "Names", "Metadata", "PieceInfo", "AcroForm"} {
		root.Delete(key)
	}
	if opsRemoved {
		root.Delete("StructTreeRoot")
		root.Delete("MarkInfo")
	}
}

// sanitizeInfo replaces the document information dictionary wholesale.
func sanitizeInfo(doc *raw.Document) {
	info := raw.NewDict()
	info.Set("Producer", raw.StringObj{Raw: []byte("vaultredact")})
	ref := doc.AddObject(info)
	doc.Trailer.Set("Info", raw.RefObj{Ref: ref})
}

// dropUnreachable garbage-collects objects no longer referenced from the
// trailer. Orphaned streams from before the rewrite may still hold the
// original page text.
func dropUnreachable(doc *raw.Document) {
	reachable := make(map[raw.ObjectRef]bool)
	var mark func(obj raw.Object)
	mark = func(obj raw.Object) {
		switch v := obj.(type) {
		case raw.RefObj:
			if reachable[v.Ref] {
				return
			}
			reachable[v.Ref] = true
			if target, ok := doc.Objects[v.Ref]; ok {
				mark(target)
			}
		case raw.ArrayObj:
			for _, item := range v.Items {
				mark(item)
			}
		case *raw.DictObj:
			for _, key := range v.Keys {
				mark(v.Values[key])
			}
		case *raw.StreamObj:
			mark(v.Dict)
		}
	}
	mark(doc.Trailer)

	for ref := range doc.Objects {
		if !reachable[ref] {
			delete(doc.Objects, ref)
		}
	}
}

// engineResolver adapts page fonts for the operator filter.
type engineResolver struct {
	page *extractor.Page
}

func (r engineResolver) DecodeString(fontName string, rawBytes []byte) string {
	return r.page.Fonts[fontName].DecodeString(rawBytes)
}

func (r engineResolver) TextWidth(fontName, text string, size float64) float64 {
	if pf, ok := r.page.Fonts[fontName]; ok && pf.Metrics != nil {
		return pf.Metrics.TextWidth(text, size)
	}
	return float64(len([]rune(text))) * size * fonts.HeuristicFactor
}
