// Package scanner tokenizes PDF syntax: document bodies and content streams
// share the same lexical grammar apart from inline images, which this package
// does not need to interpret beyond skipping them.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // stream data following the 'stream' keyword
	TokenKeyword                  // other keywords (obj, endobj, >>, ], Tj, ...)
)

// Token carries the lexeme in typed fields; only those matching Type are set.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int // generation for TokenRef
	Pos   int64
}

type Config struct {
	MaxStringLength int64
	// DisableRefs turns off '<num> <gen> R' lookahead. Content streams have
	// no indirect references, and the lookahead would otherwise swallow
	// numeric operands.
	DisableRefs bool
}

// Scanner walks an in-memory byte slice. Documents are parsed fully buffered;
// the sizes this system handles do not justify windowed reads.
type Scanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg, nextStreamLen: -1}
}

// NewFromReader buffers the full reader contents.
func NewFromReader(r io.Reader, cfg Config) (*Scanner, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return New(data, cfg), nil
}

func (s *Scanner) Position() int64 { return s.pos }

func (s *Scanner) SeekTo(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength primes the scanner with the /Length of the stream whose
// 'stream' keyword comes next. Negative clears the hint.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *Scanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *Scanner) peek(ahead int64) byte {
	if s.pos+ahead >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+ahead]
}

func (s *Scanner) skipWSAndComments() error {
	for {
		if s.pos >= int64(len(s.data)) {
			return io.EOF
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return nil
	}
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var b bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if !isRegular(c) && c != '#' {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			hi := fromHexChar(s.data[s.pos+1])
			lo := fromHexChar(s.data[s.pos+2])
			if hi >= 0 && lo >= 0 {
				b.WriteByte(byte(hi<<4 | lo))
				s.pos += 3
				continue
			}
		}
		b.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: b.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var b bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		if s.cfg.MaxStringLength > 0 && int64(b.Len()) > s.cfg.MaxStringLength {
			return Token{}, errors.New("string exceeds length limit")
		}
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				return Token{}, errors.New("unterminated string escape")
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '(', ')', '\\':
				b.WriteByte(e)
			case '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				// line continuation, emit nothing
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && s.pos < int64(len(s.data)); i++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						val = val*8 + int(d-'0')
						s.pos++
					}
					b.WriteByte(byte(val))
				} else {
					b.WriteByte(e)
				}
			}
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: b.Bytes(), Pos: start}, nil
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return Token{}, errors.New("unterminated literal string")
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var b bytes.Buffer
	var hi = -1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if hi >= 0 {
				b.WriteByte(byte(hi << 4)) // odd digit count pads with zero
			}
			// Str marks the source syntax so writers can round-trip it.
			return Token{Type: TokenString, Str: "hex", Bytes: b.Bytes(), Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v := fromHexChar(c)
		if v < 0 {
			return Token{}, errors.New("invalid hex string character")
		}
		if hi < 0 {
			hi = v
		} else {
			b.WriteByte(byte(hi<<4 | v))
			hi = -1
		}
	}
	return Token{}, errors.New("unterminated hex string")
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	numTok, err := s.scanNumber()
	if err != nil {
		return Token{}, err
	}
	if s.cfg.DisableRefs || !numTok.IsInt || numTok.Int < 0 {
		return numTok, nil
	}
	// Lookahead for '<gen> R'.
	save := s.pos
	if err := s.skipWSAndComments(); err == nil && isDigitStart(s.data[s.pos]) && s.data[s.pos] != '-' && s.data[s.pos] != '+' && s.data[s.pos] != '.' {
		genTok, err := s.scanNumber()
		if err == nil && genTok.IsInt {
			afterGen := s.pos
			if err := s.skipWSAndComments(); err == nil && s.data[s.pos] == 'R' && !isRegular(s.peek(1)) {
				s.pos++
				return Token{Type: TokenRef, Int: numTok.Int, Gen: int(genTok.Int), Pos: start}, nil
			}
			s.pos = afterGen
		}
	}
	s.pos = save
	return numTok, nil
}

func (s *Scanner) scanNumber() (Token, error) {
	start := s.pos
	end := s.pos
	for end < int64(len(s.data)) {
		c := s.data[end]
		if isDigitStart(c) || (c >= '0' && c <= '9') {
			end++
			continue
		}
		break
	}
	lexeme := string(s.data[start:end])
	s.pos = end
	if i, err := strconv.ParseInt(lexeme, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		return Token{}, errors.New("malformed number: " + lexeme)
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	end := s.pos
	for end < int64(len(s.data)) && isRegular(s.data[end]) {
		end++
	}
	word := string(s.data[start:end])
	s.pos = end
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Bool: true, Pos: start}, nil
	case "false":
		return Token{Type: TokenBoolean, Bool: false, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

// scanStream reads stream payload bytes. The /Length hint is authoritative
// when set; otherwise the scanner falls back to searching for 'endstream'.
func (s *Scanner) scanStream(start int64) (Token, error) {
	// The stream keyword is followed by CRLF or a bare LF.
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	length := s.nextStreamLen
	s.nextStreamLen = -1
	if length >= 0 && s.pos+length <= int64(len(s.data)) {
		data := s.data[s.pos : s.pos+length]
		s.pos += length
		s.consumeEndstream()
		return Token{Type: TokenStream, Bytes: append([]byte(nil), data...), Pos: start}, nil
	}
	idx := bytes.Index(s.data[s.pos:], []byte("endstream"))
	if idx < 0 {
		return Token{}, errors.New("endstream not found")
	}
	data := s.data[s.pos : s.pos+int64(idx)]
	data = bytes.TrimRight(data, "\r\n")
	s.pos += int64(idx)
	s.consumeEndstream()
	return Token{Type: TokenStream, Bytes: append([]byte(nil), data...), Pos: start}, nil
}

func (s *Scanner) consumeEndstream() {
	for s.pos < int64(len(s.data)) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	if bytes.HasPrefix(s.data[s.pos:], []byte("endstream")) {
		s.pos += int64(len("endstream"))
	}
}

// whitespace per PDF spec: null, tab, LF, FF, CR, space
func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) && c != 0 }

func isDigitStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

func fromHexChar(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return -1
}
