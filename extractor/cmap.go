package extractor

import (
	"io"
	"unicode/utf16"

	"vaultredact/scanner"
)

// cmap maps font character codes to Unicode text, built from a /ToUnicode
// stream. Codes are keyed by their raw bytes so 1- and 2-byte spaces coexist.
type cmap struct {
	entries map[string]string
	lengths []int // code byte lengths seen, ascending
}

// parseCMap reads bfchar and bfrange sections. Anything else in the stream
// is skipped; ToUnicode CMaps carry no other information this package needs.
func parseCMap(data []byte) *cmap {
	cm := &cmap{entries: make(map[string]string)}
	lengthSet := make(map[int]bool)
	s := scanner.New(data, scanner.Config{DisableRefs: true})

	var window []scanner.Token
	for {
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Recover at the next byte; CMaps embed PostScript constructs the
			// lexer has no grammar for.
			if seekErr := s.SeekTo(s.Position() + 1); seekErr != nil {
				break
			}
			continue
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "endcodespacerange":
				for _, t := range window {
					if t.Type == scanner.TokenString && len(t.Bytes) > 0 {
						lengthSet[len(t.Bytes)] = true
					}
				}
			case "endbfchar":
				for i := 0; i+1 < len(window); i += 2 {
					src, dst := window[i], window[i+1]
					if src.Type == scanner.TokenString && dst.Type == scanner.TokenString {
						cm.entries[string(src.Bytes)] = decodeUTF16BE(dst.Bytes)
						lengthSet[len(src.Bytes)] = true
					}
				}
			case "endbfrange":
				cm.addRanges(window, lengthSet)
			}
			window = window[:0]
			continue
		}
		window = append(window, tok)
		if len(window) > 4096 {
			window = window[len(window)-4096:]
		}
	}

	for l := 1; l <= 4; l++ {
		if lengthSet[l] {
			cm.lengths = append(cm.lengths, l)
		}
	}
	if len(cm.lengths) == 0 {
		cm.lengths = []int{1}
	}
	return cm
}

func (cm *cmap) addRanges(window []scanner.Token, lengthSet map[int]bool) {
	// Ranges come as: <lo> <hi> <dst> or <lo> <hi> [<dst>...]. The window
	// holds strings and array brackets in token order; rebuild the groups.
	i := 0
	next := func() (scanner.Token, bool) {
		if i >= len(window) {
			return scanner.Token{}, false
		}
		t := window[i]
		i++
		return t, true
	}
	for {
		lo, ok := next()
		if !ok {
			return
		}
		if lo.Type != scanner.TokenString {
			continue
		}
		hi, ok := next()
		if !ok || hi.Type != scanner.TokenString || len(lo.Bytes) != len(hi.Bytes) {
			return
		}
		lengthSet[len(lo.Bytes)] = true

		dst, ok := next()
		if !ok {
			return
		}
		if dst.Type == scanner.TokenArray {
			code := append([]byte(nil), lo.Bytes...)
			for {
				item, ok := next()
				if !ok {
					return
				}
				if item.Type == scanner.TokenKeyword && item.Str == "]" {
					break
				}
				if item.Type == scanner.TokenString {
					cm.entries[string(code)] = decodeUTF16BE(item.Bytes)
					code = incrementCode(code)
				}
			}
			continue
		}
		if dst.Type != scanner.TokenString {
			continue
		}
		code := append([]byte(nil), lo.Bytes...)
		value := append([]byte(nil), dst.Bytes...)
		for steps := 0; steps < 1<<16; steps++ {
			cm.entries[string(code)] = decodeUTF16BE(value)
			if string(code) == string(hi.Bytes) {
				break
			}
			code = incrementCode(code)
			value = incrementCode(value)
		}
	}
}

// Decode maps raw string bytes through the cmap. Unmapped single bytes fall
// back to Latin-1; unmapped wider codes are dropped.
func (cm *cmap) Decode(raw []byte) string {
	var out []rune
	for pos := 0; pos < len(raw); {
		matched := false
		for _, l := range cm.lengths {
			if pos+l > len(raw) {
				continue
			}
			if text, ok := cm.entries[string(raw[pos:pos+l])]; ok {
				out = append(out, []rune(text)...)
				pos += l
				matched = true
				break
			}
		}
		if !matched {
			if cm.lengths[0] == 1 {
				out = append(out, rune(raw[pos]))
				pos++
			} else {
				pos += cm.lengths[0]
			}
		}
	}
	return string(out)
}

func incrementCode(code []byte) []byte {
	out := append([]byte(nil), code...)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}

// decodeUTF16BE interprets big-endian UTF-16, with or without a BOM. Odd
// trailing bytes are ignored.
func decodeUTF16BE(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
	}
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return string(utf16.Decode(units))
}
