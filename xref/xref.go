// Package xref locates indirect objects in a PDF file. It reads classic
// cross-reference tables, follows /Prev chains for incremental updates, and
// falls back to a full-file scan when the tables are damaged.
package xref

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vaultredact/ir/raw"
	"vaultredact/scanner"
)

// Entry records where an object lives.
type Entry struct {
	Offset     int64
	Generation int
	Free       bool
}

// Table maps object numbers to file positions plus the trailer dictionary.
type Table struct {
	Entries  map[int]Entry
	Trailer  *raw.DictObj
	Repaired bool
}

var startxrefRe = regexp.MustCompile(`startxref\s+(\d+)`)

// Locate builds the object table for data. It tries the startxref pointer
// first and scans the whole file when that fails.
func Locate(data []byte) (*Table, error) {
	table, err := fromStartxref(data)
	if err == nil {
		return table, nil
	}
	table, scanErr := Repair(data)
	if scanErr != nil {
		return nil, fmt.Errorf("xref: %w (repair scan: %v)", err, scanErr)
	}
	return table, nil
}

func fromStartxref(data []byte) (*Table, error) {
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	matches := startxrefRe.FindAllSubmatch(tail, -1)
	if len(matches) == 0 {
		return nil, errors.New("startxref not found")
	}
	offset, err := strconv.ParseInt(string(matches[len(matches)-1][1]), 10, 64)
	if err != nil {
		return nil, err
	}

	table := &Table{Entries: make(map[int]Entry)}
	seen := make(map[int64]bool)
	for offset >= 0 && !seen[offset] {
		seen[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset %d beyond end of file", offset)
		}
		trailer, prev, err := parseSection(data, offset, table)
		if err != nil {
			return nil, err
		}
		if table.Trailer == nil {
			table.Trailer = trailer
		}
		offset = prev
	}
	if table.Trailer == nil {
		return nil, errors.New("no trailer dictionary")
	}
	return table, nil
}

// parseSection reads one xref section starting at offset. It returns the
// section's trailer and the /Prev offset (-1 when absent). Entries already in
// the table win: later sections are older.
func parseSection(data []byte, offset int64, table *Table) (*raw.DictObj, int64, error) {
	rest := data[offset:]
	if !bytes.HasPrefix(bytes.TrimLeft(rest, " \r\n\t"), []byte("xref")) {
		return nil, -1, errors.New("cross-reference streams are not supported, use repair scan")
	}
	idx := bytes.Index(rest, []byte("xref"))
	pos := int64(idx) + 4

	for {
		pos = skipWS(rest, pos)
		if bytes.HasPrefix(rest[pos:], []byte("trailer")) {
			pos += int64(len("trailer"))
			break
		}
		start, count, next, err := readSubsectionHeader(rest, pos)
		if err != nil {
			return nil, -1, err
		}
		pos = next
		for i := 0; i < count; i++ {
			pos = skipWS(rest, pos)
			if pos+18 > int64(len(rest)) {
				return nil, -1, errors.New("truncated xref subsection")
			}
			line := rest[pos : pos+18]
			objOffset, err1 := strconv.ParseInt(strings.TrimSpace(string(line[0:10])), 10, 64)
			gen, err2 := strconv.Atoi(strings.TrimSpace(string(line[11:16])))
			kind := line[17]
			if err1 != nil || err2 != nil || (kind != 'n' && kind != 'f') {
				return nil, -1, fmt.Errorf("bad xref entry %q", line)
			}
			num := start + i
			if _, exists := table.Entries[num]; !exists {
				table.Entries[num] = Entry{Offset: objOffset, Generation: gen, Free: kind == 'f'}
			}
			pos += 18
		}
	}

	s := scanner.New(rest, scanner.Config{})
	if err := s.SeekTo(skipWS(rest, pos)); err != nil {
		return nil, -1, err
	}
	trailer, err := readTrailerDict(s)
	if err != nil {
		return nil, -1, err
	}
	prev := int64(-1)
	if v, ok := trailer.Int("Prev"); ok {
		prev = v
	}
	return trailer, prev, nil
}

func readSubsectionHeader(data []byte, pos int64) (start, count int, next int64, err error) {
	end := pos
	for end < int64(len(data)) && data[end] != '\n' && data[end] != '\r' {
		end++
	}
	fields := strings.Fields(string(data[pos:end]))
	if len(fields) != 2 {
		return 0, 0, 0, fmt.Errorf("bad xref subsection header %q", data[pos:end])
	}
	start, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, 0, err
	}
	count, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, 0, err
	}
	return start, count, end, nil
}

// readTrailerDict parses the << ... >> after the trailer keyword using the
// shared token stream. Nested dictionaries and arrays are handled.
func readTrailerDict(s *scanner.Scanner) (*raw.DictObj, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenDict {
		return nil, fmt.Errorf("expected trailer dictionary, got %q", tok.Str)
	}
	obj, err := parseDictBody(s)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func parseDictBody(s *scanner.Scanner) (*raw.DictObj, error) {
	dict := raw.NewDict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name key, got %q", tok.Str)
		}
		value, err := parseValue(s)
		if err != nil {
			return nil, err
		}
		dict.Set(tok.Str, value)
	}
}

func parseValue(s *scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return valueFromToken(s, tok)
}

func valueFromToken(s *scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		return parseDictBody(s)
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
			item, err := valueFromToken(s, t)
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
	return nil, fmt.Errorf("unexpected token %q in trailer", tok.Str)
}

func skipWS(data []byte, pos int64) int64 {
	for pos < int64(len(data)) {
		switch data[pos] {
		case ' ', '\t', '\r', '\n', '\f', 0x00:
			pos++
		default:
			return pos
		}
	}
	return pos
}
