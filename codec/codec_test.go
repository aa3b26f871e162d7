package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type item struct {
	ID       string         `cbor:"id"`
	Data     []byte         `cbor:"data"`
	Values   []any          `cbor:"values"`
	Meta     map[string]any `cbor:"meta"`
	ExpireAt time.Time      `cbor:"expire_at"`
}

func TestMarshalDeterministic(t *testing.T) {
	v := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal() not deterministic")
		}
	}
}

func TestUnmarshalAnyMapsUseStringKeys(t *testing.T) {
	in := item{
		ID:       "n1",
		Data:     []byte{0x50, 0x4B},
		Values:   []any{map[string]any{"k": "v"}},
		ExpireAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out item
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.ID != in.ID || !bytes.Equal(out.Data, in.Data) {
		t.Errorf("round trip mismatch: got %+v", out)
	}
	if !out.ExpireAt.Equal(in.ExpireAt) {
		t.Errorf("ExpireAt = %v, want %v", out.ExpireAt, in.ExpireAt)
	}
	m, ok := out.Values[0].(map[string]any)
	if !ok {
		t.Fatalf("nested map decoded as %T, want map[string]any", out.Values[0])
	}
	if m["k"] != "v" {
		t.Errorf("nested value = %v, want v", m["k"])
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("filescan payload "), 512)

	tests := []struct {
		name string
		c    Compression
	}{
		{"none", CompressionNone},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Compress(tt.c, data)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if tt.c != CompressionNone && len(packed) >= len(data) {
				t.Errorf("Compress() did not shrink repetitive input: %d >= %d", len(packed), len(data))
			}
			out, err := Decompress(tt.c, packed, int64(len(data)))
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(out, data) {
				t.Errorf("Decompress() mismatch")
			}
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	packed, err := Compress(CompressionZstd, []byte("hello"))
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if _, err := Decompress(CompressionZstd, packed, 6); err == nil {
		t.Error("Decompress() expected size mismatch error")
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"zstd", CompressionZstd, false},
		{"lz4", CompressionLZ4, false},
		{"brotli", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrUnknownCompression) {
			t.Errorf("ParseCompression(%q) error = %v, want ErrUnknownCompression", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
