package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a parked payload is compressed.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ErrUnknownCompression is returned for unrecognised compression names.
var ErrUnknownCompression = errors.New("unknown compression")

// ParseCompression parses a compression name. The empty string means none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// zstd encoders and decoders are safe for concurrent use and expensive to build.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses data with c. For CompressionNone the input is returned
// unchanged.
func Compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}
}

// Decompress reverses Compress. size is the expected decompressed length and
// is verified when positive.
func Decompress(c Compression, data []byte, size int64) ([]byte, error) {
	var out []byte
	switch c {
	case CompressionNone, "":
		out = data
	case CompressionZstd:
		var err error
		out, err = zstdDecoder.DecodeAll(data, make([]byte, 0, max(size, 0)))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
	case CompressionLZ4:
		var err error
		out, err = io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}

	if size > 0 && int64(len(out)) != size {
		return nil, fmt.Errorf("%s decompress: got %d bytes, expected %d", c, len(out), size)
	}
	return out, nil
}
