package filters

import (
	"bytes"
	"testing"
)

func TestFlateRoundTrip(t *testing.T) {
	p := NewPipeline(Limits{})
	plain := []byte("BT /F1 12 Tf (Hello) Tj ET")
	enc := FlateEncode(plain)
	dec, err := p.Decode(enc, []string{"FlateDecode"})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, plain) {
		t.Errorf("round trip mismatch: %q", dec)
	}
}

func TestFlateLimit(t *testing.T) {
	p := NewPipeline(Limits{MaxDecompressedSize: 4})
	if _, err := p.Decode(FlateEncode([]byte("longer than four")), []string{"FlateDecode"}); err == nil {
		t.Fatal("expected limit error")
	}
}

func TestASCIIHexDecode(t *testing.T) {
	p := NewPipeline(Limits{})
	dec, err := p.Decode([]byte("48 65 6C 6C 6F>"), []string{"ASCIIHexDecode"})
	if err != nil {
		t.Fatal(err)
	}
	if string(dec) != "Hello" {
		t.Errorf("got %q", dec)
	}
}

func TestUnknownFilter(t *testing.T) {
	p := NewPipeline(Limits{})
	if _, err := p.Decode(nil, []string{"JPXDecode"}); err == nil {
		t.Fatal("expected error for unsupported filter")
	}
}

func TestChainedFilters(t *testing.T) {
	p := NewPipeline(Limits{})
	plain := []byte("q 0 g 10 10 50 20 re f Q")
	hexed := make([]byte, 0)
	for _, b := range FlateEncode(plain) {
		hexed = append(hexed, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&0xF])
	}
	hexed = append(hexed, '>')
	dec, err := p.Decode(hexed, []string{"ASCIIHexDecode", "FlateDecode"})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, plain) {
		t.Errorf("got %q", dec)
	}
}
