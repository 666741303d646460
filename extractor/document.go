// Package extractor opens parsed PDF documents, decodes page content, and
// builds the position index that maps extracted text back to page geometry.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"vaultredact/filters"
	"vaultredact/fonts"
	"vaultredact/geo"
	"vaultredact/ir/raw"
	"vaultredact/parser"
)

// Page is one page with everything needed to walk its content.
type Page struct {
	Number   int // zero-based
	Ref      raw.ObjectRef
	Dict     *raw.DictObj
	MediaBox geo.Rect
	Content  []byte // decoded, all streams concatenated
	Fonts    map[string]*PageFont
}

// PageFont pairs width metrics with the text decoder for one font resource.
type PageFont struct {
	Metrics *fonts.Font
	ToUni   *cmap
}

// DecodeString maps shown string bytes to text.
func (pf *PageFont) DecodeString(raw []byte) string {
	if pf != nil && pf.ToUni != nil {
		return pf.ToUni.Decode(raw)
	}
	// Latin-1 fallback for simple fonts without a ToUnicode map.
	out := make([]rune, len(raw))
	for i, b := range raw {
		out[i] = rune(b)
	}
	return string(out)
}

// Document is an opened PDF ready for extraction or rewriting.
type Document struct {
	Raw      *raw.Document
	Pages    []*Page
	pipeline *filters.Pipeline
}

// Open parses data and walks the page tree.
func Open(ctx context.Context, data []byte) (*Document, error) {
	rawDoc, err := parser.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return FromRaw(ctx, rawDoc)
}

// FromRaw builds the page list over an already parsed document.
func FromRaw(ctx context.Context, rawDoc *raw.Document) (*Document, error) {
	doc := &Document{Raw: rawDoc, pipeline: filters.NewPipeline(filters.Limits{})}

	root := rawDoc.ResolveDict(rawDoc.Trailer.Values["Root"])
	if root == nil {
		return nil, errors.New("document has no catalog")
	}
	pagesObj, ok := root.Get("Pages")
	if !ok {
		return nil, errors.New("catalog has no page tree")
	}
	if err := doc.walkPages(ctx, pagesObj, inherited{}, make(map[raw.ObjectRef]bool)); err != nil {
		return nil, err
	}
	if len(doc.Pages) == 0 {
		return nil, errors.New("document has no pages")
	}
	return doc, nil
}

// Pipeline exposes the filter chain for callers that re-encode streams.
func (doc *Document) Pipeline() *filters.Pipeline { return doc.pipeline }

type inherited struct {
	resources *raw.DictObj
	mediaBox  *geo.Rect
}

func (doc *Document) walkPages(ctx context.Context, node raw.Object, inh inherited, seen map[raw.ObjectRef]bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ref raw.ObjectRef
	if r, ok := node.(raw.RefObj); ok {
		ref = r.Ref
		if seen[ref] {
			return errors.New("cycle in page tree")
		}
		seen[ref] = true
	}
	dict := doc.Raw.ResolveDict(node)
	if dict == nil {
		return nil
	}

	if res := doc.Raw.ResolveDict(dict.Values["Resources"]); res != nil {
		inh.resources = res
	}
	if mb := doc.mediaBox(dict.Values["MediaBox"]); mb != nil {
		inh.mediaBox = mb
	}

	switch dict.Name("Type") {
	case "Pages", "":
		kids, ok := doc.Raw.Resolve(dict.Values["Kids"]).(raw.ArrayObj)
		if !ok {
			if dict.Name("Type") == "" {
				return nil
			}
			return errors.New("page tree node has no kids")
		}
		for _, kid := range kids.Items {
			if err := doc.walkPages(ctx, kid, inh, seen); err != nil {
				return err
			}
		}
	case "Page":
		page, err := doc.buildPage(dict, ref, inh)
		if err != nil {
			return fmt.Errorf("page %d: %w", len(doc.Pages), err)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return nil
}

func (doc *Document) buildPage(dict *raw.DictObj, ref raw.ObjectRef, inh inherited) (*Page, error) {
	page := &Page{
		Number: len(doc.Pages),
		Ref:    ref,
		Dict:   dict,
		Fonts:  make(map[string]*PageFont),
	}
	if inh.mediaBox != nil {
		page.MediaBox = *inh.mediaBox
	} else {
		page.MediaBox = geo.New(0, 0, 612, 792)
	}

	content, err := doc.decodeContents(dict.Values["Contents"])
	if err != nil {
		return nil, err
	}
	page.Content = content

	if inh.resources != nil {
		if fontDict := doc.Raw.ResolveDict(inh.resources.Values["Font"]); fontDict != nil {
			for _, name := range fontDict.Keys {
				entry := doc.Raw.ResolveDict(fontDict.Values[name])
				if entry == nil {
					continue
				}
				pf := &PageFont{Metrics: fonts.FromDict(doc.Raw, entry, doc.pipeline)}
				if stream, ok := doc.Raw.Resolve(entry.Values["ToUnicode"]).(*raw.StreamObj); ok {
					if data, err := doc.pipeline.Decode(stream.Raw, stream.FilterNames()); err == nil {
						pf.ToUni = parseCMap(data)
					}
				}
				page.Fonts[name] = pf
			}
		}
	}
	return page, nil
}

// decodeContents flattens /Contents, which may be a single stream or an
// array of streams, into one decoded byte slice.
func (doc *Document) decodeContents(contents raw.Object) ([]byte, error) {
	var out []byte
	appendStream := func(obj raw.Object) error {
		stream, ok := doc.Raw.Resolve(obj).(*raw.StreamObj)
		if !ok {
			return nil
		}
		data, err := doc.pipeline.Decode(stream.Raw, stream.FilterNames())
		if err != nil {
			return err
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, data...)
		return nil
	}

	switch v := doc.Raw.Resolve(contents).(type) {
	case raw.ArrayObj:
		for _, item := range v.Items {
			if err := appendStream(item); err != nil {
				return nil, err
			}
		}
	default:
		if err := appendStream(contents); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (doc *Document) mediaBox(obj raw.Object) *geo.Rect {
	arr, ok := doc.Raw.Resolve(obj).(raw.ArrayObj)
	if !ok || len(arr.Items) != 4 {
		return nil
	}
	var nums [4]float64
	for i, item := range arr.Items {
		n, ok := doc.Raw.Resolve(item).(raw.NumberObj)
		if !ok {
			return nil
		}
		nums[i] = n.Value()
	}
	r := geo.New(nums[0], nums[1], nums[2], nums[3])
	return &r
}
