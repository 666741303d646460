// Package contentstream parses, walks, and rewrites PDF content streams.
// The walker tracks the graphics and text state machines closely enough to
// place every text-showing operator in device space, which is what redaction
// box matching needs.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"vaultredact/scanner"
)

type ValueKind int

const (
	KindNumber ValueKind = iota
	KindName
	KindString
	KindArray
	KindDict
	KindBool
	KindNull
)

// Value is one operand. Content stream operands never contain indirect
// references.
type Value struct {
	Kind  ValueKind
	Num   float64
	IsInt bool
	Name  string
	Str   []byte
	Hex   bool
	Bool  bool
	Items []Value     // KindArray
	Dict  []DictEntry // KindDict, order preserved
}

type DictEntry struct {
	Key   string
	Value Value
}

func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Operation is one operator with its preceding operands. Inline images
// (BI..EI) keep their raw bytes and are reserialized verbatim.
type Operation struct {
	Operator string
	Operands []Value
	Raw      []byte // inline image bytes, set only when Operator == "BI"
}

// Parse tokenizes a decoded content stream into operations.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{DisableRefs: true})
	var ops []Operation
	var operands []Value
	for {
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			switch tok.Str {
			case "true", "false":
				operands = append(operands, Value{Kind: KindBool, Bool: tok.Str == "true"})
			case "null":
				operands = append(operands, Value{Kind: KindNull})
			case "BI":
				raw, err := skipInlineImage(data, s, tok.Pos)
				if err != nil {
					return nil, err
				}
				ops = append(ops, Operation{Operator: "BI", Raw: raw})
				operands = nil
			default:
				ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
				operands = nil
			}
		default:
			v, err := valueFromToken(s, tok)
			if err != nil {
				return nil, err
			}
			operands = append(operands, v)
		}
	}
	return ops, nil
}

func valueFromToken(s *scanner.Scanner, tok scanner.Token) (Value, error) {
	switch tok.Type {
	case scanner.TokenNumber:
		if tok.IsInt {
			return Value{Kind: KindNumber, Num: float64(tok.Int), IsInt: true}, nil
		}
		return Value{Kind: KindNumber, Num: tok.Float}, nil
	case scanner.TokenName:
		return Value{Kind: KindName, Name: tok.Str}, nil
	case scanner.TokenString:
		return Value{Kind: KindString, Str: tok.Bytes, Hex: tok.Str == "hex"}, nil
	case scanner.TokenBoolean:
		return Value{Kind: KindBool, Bool: tok.Bool}, nil
	case scanner.TokenNull:
		return Value{Kind: KindNull}, nil
	case scanner.TokenArray:
		arr := Value{Kind: KindArray}
		for {
			t, err := s.Next()
			if err != nil {
				return Value{}, err
			}
			if t.Type == scanner.TokenKeyword && t.Str == "]" {
				return arr, nil
			}
			item, err := valueFromToken(s, t)
			if err != nil {
				return Value{}, err
			}
			arr.Items = append(arr.Items, item)
		}
	case scanner.TokenDict:
		d := Value{Kind: KindDict}
		for {
			t, err := s.Next()
			if err != nil {
				return Value{}, err
			}
			if t.Type == scanner.TokenKeyword && t.Str == ">>" {
				return d, nil
			}
			if t.Type != scanner.TokenName {
				return Value{}, fmt.Errorf("expected name key in inline dict, got %q", t.Str)
			}
			vt, err := s.Next()
			if err != nil {
				return Value{}, err
			}
			val, err := valueFromToken(s, vt)
			if err != nil {
				return Value{}, err
			}
			d.Dict = append(d.Dict, DictEntry{Key: t.Str, Value: val})
		}
	}
	return Value{}, fmt.Errorf("unexpected token %q in content stream", tok.Str)
}

// skipInlineImage captures everything from BI through EI as opaque bytes.
func skipInlineImage(data []byte, s *scanner.Scanner, biPos int64) ([]byte, error) {
	rest := data[s.Position():]
	for off := 0; ; {
		i := bytes.Index(rest[off:], []byte("EI"))
		if i < 0 {
			return nil, errors.New("unterminated inline image")
		}
		at := off + i
		before := byte('\n')
		if at > 0 {
			before = rest[at-1]
		}
		afterOK := at+2 >= len(rest) || isImgDelim(rest[at+2])
		if isImgDelim(before) && afterOK {
			end := s.Position() + int64(at) + 2
			if err := s.SeekTo(end); err != nil {
				return nil, err
			}
			return data[biPos:end], nil
		}
		off = at + 2
	}
}

func isImgDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0x00:
		return true
	}
	return false
}

// Serialize writes operations back to content stream bytes.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" && op.Raw != nil {
			buf.Write(op.Raw)
			buf.WriteByte('\n')
			continue
		}
		for _, v := range op.Operands {
			writeValue(&buf, v)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindNumber:
		if v.IsInt {
			buf.WriteString(strconv.FormatInt(int64(v.Num), 10))
		} else {
			buf.WriteString(strconv.FormatFloat(v.Num, 'f', -1, 64))
		}
	case KindName:
		buf.WriteByte('/')
		buf.WriteString(v.Name)
	case KindString:
		if v.Hex {
			buf.WriteByte('<')
			for _, b := range v.Str {
				fmt.Fprintf(buf, "%02X", b)
			}
			buf.WriteByte('>')
		} else {
			writeLiteral(buf, v.Str)
		}
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeValue(buf, item)
		}
		buf.WriteByte(']')
	case KindDict:
		buf.WriteString("<<")
		for _, e := range v.Dict {
			buf.WriteString(" /")
			buf.WriteString(e.Key)
			buf.WriteByte(' ')
			writeValue(buf, e.Value)
		}
		buf.WriteString(" >>")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.Bool))
	case KindNull:
		buf.WriteString("null")
	}
}

func writeLiteral(buf *bytes.Buffer, data []byte) {
	buf.WriteByte('(')
	for _, c := range data {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			if c < 0x20 || c > 0x7e {
				fmt.Fprintf(buf, "\\%03o", c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte(')')
}
