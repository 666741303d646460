// Package writer serializes a raw.Document back to PDF bytes with a classic
// cross-reference table. Output is a full rewrite, never an incremental
// update: redacted files must not carry their previous revisions.
package writer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"vaultredact/ir/raw"
)

// Write emits doc as a complete PDF file.
func Write(doc *raw.Document) ([]byte, error) {
	var buf bytes.Buffer
	version := doc.Version
	if version == "" {
		version = "1.7"
	}
	fmt.Fprintf(&buf, "%%PDF-%s\n", version)
	// Binary marker so transfer tools treat the file as 8-bit data.
	buf.WriteString("%\xe2\xe3\xcf\xd3\n")

	refs := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Number < refs[j].Number })

	offsets := make(map[int]int64, len(refs))
	maxNum := 0
	for _, ref := range refs {
		offsets[ref.Number] = int64(buf.Len())
		if ref.Number > maxNum {
			maxNum = ref.Number
		}
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Number, ref.Generation)
		if err := serialize(&buf, doc.Objects[ref]); err != nil {
			return nil, fmt.Errorf("object %d: %w", ref.Number, err)
		}
		buf.WriteString("\nendobj\n")
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := raw.NewDict()
	trailer.Set("Size", raw.Integer(int64(maxNum+1)))
	for _, key := range doc.Trailer.Keys {
		// Prev and XRefStm would point into the old file.
		if key == "Size" || key == "Prev" || key == "XRefStm" {
			continue
		}
		trailer.Set(key, doc.Trailer.Values[key])
	}
	buf.WriteString("trailer\n")
	if err := serialize(&buf, trailer); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefPos)
	return buf.Bytes(), nil
}

func serialize(buf *bytes.Buffer, obj raw.Object) error {
	switch v := obj.(type) {
	case raw.NullObj:
		buf.WriteString("null")
	case raw.BoolObj:
		buf.WriteString(strconv.FormatBool(v.Value))
	case raw.NumberObj:
		if v.IsInt {
			buf.WriteString(strconv.FormatInt(v.Int, 10))
		} else {
			buf.WriteString(strconv.FormatFloat(v.Float, 'f', -1, 64))
		}
	case raw.NameObj:
		writeName(buf, v.Value)
	case raw.StringObj:
		if v.Hex {
			buf.WriteByte('<')
			for _, b := range v.Raw {
				fmt.Fprintf(buf, "%02X", b)
			}
			buf.WriteByte('>')
		} else {
			writeLiteralString(buf, v.Raw)
		}
	case raw.RefObj:
		fmt.Fprintf(buf, "%d %d R", v.Ref.Number, v.Ref.Generation)
	case raw.ArrayObj:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := serialize(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		return serializeDict(buf, v)
	case *raw.StreamObj:
		// Length always reflects the bytes actually written.
		v.Dict.Set("Length", raw.Integer(int64(len(v.Raw))))
		if err := serializeDict(buf, v.Dict); err != nil {
			return err
		}
		buf.WriteString("\nstream\n")
		buf.Write(v.Raw)
		buf.WriteString("\nendstream")
	default:
		return fmt.Errorf("cannot serialize %T", obj)
	}
	return nil
}

func serializeDict(buf *bytes.Buffer, dict *raw.DictObj) error {
	buf.WriteString("<<")
	for _, key := range dict.Keys {
		buf.WriteByte(' ')
		writeName(buf, key)
		buf.WriteByte(' ')
		if err := serialize(buf, dict.Values[key]); err != nil {
			return err
		}
	}
	buf.WriteString(" >>")
	return nil
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= 0x20 || c > 0x7e || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

func writeLiteralString(buf *bytes.Buffer, data []byte) {
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
		case '\t':
			buf.WriteString(`\t`)
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

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
