// Package parser turns PDF bytes into a raw.Document. It locates objects
// through the xref table (or its repair scan) and parses each one with the
// shared scanner.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"vaultredact/ir/raw"
	"vaultredact/scanner"
	"vaultredact/xref"
)

var headerRe = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// Parse loads every reachable indirect object in data.
func Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	m := headerRe.FindSubmatch(data)
	if m == nil || !bytes.HasPrefix(bytes.TrimLeft(data, "\xef\xbb\xbf \r\n"), []byte("%PDF-")) {
		return nil, errors.New("missing %PDF- header")
	}

	table, err := xref.Locate(data)
	if err != nil {
		return nil, err
	}

	doc := raw.NewDocument()
	doc.Version = string(m[1])
	doc.Trailer = table.Trailer

	ld := &loader{data: data, table: table, doc: doc, loading: make(map[int]bool)}
	for num := range table.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := ld.object(num); err != nil {
			// A single unreadable object does not doom the document. The
			// pages that reference it will fail later with context.
			continue
		}
	}
	if len(doc.Objects) == 0 {
		return nil, errors.New("no loadable objects")
	}
	return doc, nil
}

type loader struct {
	data    []byte
	table   *xref.Table
	doc     *raw.Document
	loading map[int]bool
}

// object loads (and caches) indirect object num.
func (ld *loader) object(num int) (raw.Object, error) {
	entry, ok := ld.table.Entries[num]
	if !ok || entry.Free {
		return raw.NullObj{}, nil
	}
	ref := raw.ObjectRef{Number: num, Generation: entry.Generation}
	if obj, done := ld.doc.Objects[ref]; done {
		return obj, nil
	}
	if ld.loading[num] {
		return nil, fmt.Errorf("object %d: circular length reference", num)
	}
	ld.loading[num] = true
	defer delete(ld.loading, num)

	obj, err := ld.parseAt(entry.Offset, num)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	ld.doc.Objects[ref] = obj
	return obj, nil
}

func (ld *loader) parseAt(offset int64, wantNum int) (raw.Object, error) {
	s := scanner.New(ld.data, scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}

	// Header: <num> <gen> obj.
	numTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return nil, fmt.Errorf("expected object number, got %q", numTok.Str)
	}
	if int(numTok.Int) != wantNum {
		return nil, fmt.Errorf("offset points at object %d", numTok.Int)
	}
	genTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if genTok.Type != scanner.TokenNumber {
		return nil, errors.New("expected generation number")
	}
	kw, err := s.Next()
	if err != nil {
		return nil, err
	}
	if kw.Type != scanner.TokenKeyword || kw.Str != "obj" {
		return nil, fmt.Errorf("expected obj keyword, got %q", kw.Str)
	}

	obj, err := ld.parseValue(s)
	if err != nil {
		return nil, err
	}

	// A dictionary may be followed by stream data. Prime the length hint
	// before touching the next token so the scanner slices exactly /Length
	// bytes instead of hunting for endstream.
	if dict, ok := obj.(*raw.DictObj); ok {
		s.SetNextStreamLength(ld.streamLength(dict))
		tok, err := s.Next()
		if err == nil && tok.Type == scanner.TokenStream {
			return &raw.StreamObj{Dict: dict, Raw: tok.Bytes}, nil
		}
	}
	return obj, nil
}

// streamLength resolves /Length, which may itself be an indirect object.
// Returns -1 when it cannot be determined; the scanner then falls back to
// searching for the endstream keyword.
func (ld *loader) streamLength(dict *raw.DictObj) int64 {
	switch v := dict.Values["Length"].(type) {
	case raw.NumberObj:
		if v.IsInt {
			return v.Int
		}
	case raw.RefObj:
		if lenObj, err := ld.object(v.Ref.Number); err == nil {
			if n, ok := lenObj.(raw.NumberObj); ok && n.IsInt {
				return n.Int
			}
		}
	}
	return -1
}

func (ld *loader) parseValue(s *scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return ld.fromToken(s, tok)
}

func (ld *loader) fromToken(s *scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		dict := raw.NewDict()
		for {
			t, err := s.Next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenKeyword && t.Str == ">>" {
				return dict, nil
			}
			if t.Type != scanner.TokenName {
				return nil, fmt.Errorf("expected name key, got %q", t.Str)
			}
			value, err := ld.parseValue(s)
			if err != nil {
				return nil, err
			}
			dict.Set(t.Str, value)
		}
	case scanner.TokenArray:
		arr := raw.ArrayObj{}
		for {
			t, err := s.Next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenKeyword && t.Str == "]" {
				return arr, nil
			}
			item, err := ld.fromToken(s, t)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, item)
		}
	case scanner.TokenName:
		return raw.NameObj{Value: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.Integer(tok.Int), nil
		}
		return raw.Real(tok.Float), nil
	case scanner.TokenString:
		return raw.StringObj{Raw: tok.Bytes, Hex: tok.Str == "hex"}, nil
	case scanner.TokenRef:
		return raw.RefObj{Ref: raw.ObjectRef{Number: int(tok.Int), Generation: tok.Gen}}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{Value: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	}
	return nil, fmt.Errorf("unexpected token %q", tok.Str)
}
