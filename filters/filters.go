// Package filters implements the stream encodings the redaction pipeline
// needs: FlateDecode both ways (content streams are rewritten and recompressed)
// plus the ASCII transport filters for completeness.
package filters

import (
	"bytes"
	"compress/zlib"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"io"
)

type Decoder interface {
	Name() string
	Decode(input []byte) ([]byte, error)
}

// Pipeline applies a filter chain in order.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

type Limits struct {
	MaxDecompressedSize int64
}

func NewPipeline(limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder), limits: limits}
	for _, d := range []Decoder{flateDecoder{limits}, asciiHexDecoder{}, ascii85Decoder{}} {
		p.decoders[d.Name()] = d
	}
	return p
}

func (p *Pipeline) Decode(input []byte, filterNames []string) ([]byte, error) {
	data := input
	for _, name := range filterNames {
		dec, ok := p.decoders[name]
		if !ok {
			return nil, errors.New("unknown filter: " + name)
		}
		out, err := dec.Decode(data)
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}

type flateDecoder struct{ limits Limits }

func (flateDecoder) Name() string { return "FlateDecode" }

func (d flateDecoder) Decode(in []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out bytes.Buffer
	if d.limits.MaxDecompressedSize > 0 {
		n, err := io.Copy(&out, io.LimitReader(r, d.limits.MaxDecompressedSize+1))
		if err != nil {
			return nil, err
		}
		if n > d.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
	} else if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// FlateEncode compresses data for reserialized content streams.
func FlateEncode(in []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(in)
	w.Close()
	return buf.Bytes()
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(in []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if i := bytes.IndexByte(trimmed, '>'); i >= 0 {
		trimmed = trimmed[:i]
	}
	var compact []byte
	for _, c := range trimmed {
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		compact = append(compact, c)
	}
	// odd digit count pads with zero
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	result := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(result, compact)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(in []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if bytes.HasSuffix(trimmed, []byte("~>")) {
		trimmed = trimmed[:len(trimmed)-2]
	}
	out := make([]byte, len(trimmed)*2)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
