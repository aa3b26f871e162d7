package inspector

import (
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gobeaver/filescan"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// decompress reads one stream into a single child and records its size.
func decompress(ext extraction, r io.Reader, name string) (*filescan.Result, error) {
	res := &filescan.Result{}
	if ext.limit == 0 {
		res.AddFlag(FlagLimitReached)
		return res, nil
	}

	data, truncated, err := ext.read(r)
	if err != nil {
		return nil, err
	}
	if truncated {
		res.AddFlag(FlagTruncated)
	}
	res.AddField("uncompressed_size", len(data))
	res.AddChild(name, data)
	return res, nil
}

// Gzip decompresses a gzip stream into one child named after the header
// name or the parent name without its extension.
type Gzip struct{}

func (Gzip) Name() string { return "gzip" }

func (Gzip) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	zr, err := gzip.NewReader(bytes.NewReader(req.Data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	name := zr.Name
	if name == "" {
		name = memberName(req.File.Name, ".gz", "gzip_member")
	}
	res, err := decompress(newExtraction(req.Options), zr, name)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	if zr.Name != "" {
		res.AddField("original_name", zr.Name)
	}
	if !zr.ModTime.IsZero() {
		res.AddField("mtime", zr.ModTime.UTC().Format(time.RFC3339))
	}
	return res, nil
}

// Zstd decompresses a zstandard frame into one child.
type Zstd struct{}

func (Zstd) Name() string { return "zstd" }

func (Zstd) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	ext := newExtraction(req.Options)
	dec, err := zstd.NewReader(bytes.NewReader(req.Data),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(ext.maxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("open zstd: %w", err)
	}
	defer dec.Close()

	res, err := decompress(ext, dec, memberName(req.File.Name, ".zst", "zstd_member"))
	if err != nil {
		return nil, fmt.Errorf("read zstd: %w", err)
	}
	return res, nil
}

// LZ4 decompresses an lz4 frame into one child.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	zr := lz4.NewReader(bytes.NewReader(req.Data))
	res, err := decompress(newExtraction(req.Options), zr, memberName(req.File.Name, ".lz4", "lz4_member"))
	if err != nil {
		return nil, fmt.Errorf("read lz4: %w", err)
	}
	return res, nil
}

// Bzip2 decompresses a bzip2 stream into one child.
type Bzip2 struct{}

func (Bzip2) Name() string { return "bzip2" }

func (Bzip2) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	zr := bzip2.NewReader(bytes.NewReader(req.Data))
	res, err := decompress(newExtraction(req.Options), zr, memberName(req.File.Name, ".bz2", "bzip2_member"))
	if err != nil {
		return nil, fmt.Errorf("read bzip2: %w", err)
	}
	return res, nil
}
