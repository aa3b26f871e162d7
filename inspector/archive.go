package inspector

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gobeaver/filescan"
	"github.com/klauspost/compress/zip"
)

// Zip yields the members of a ZIP archive as children.
//
// Options: limit (members yielded), max_size (bytes read per member),
// max_ratio (per-member compression ratio before compression_ratio is
// raised, default 100).
type Zip struct{}

func (Zip) Name() string { return "zip" }

func (Zip) Inspect(ctx context.Context, req *filescan.Request) (*filescan.Result, error) {
	ext := newExtraction(req.Options)
	maxRatio := float64(req.Options.Int("max_ratio", 100))

	zr, err := zip.NewReader(bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	res := &filescan.Result{}
	flags := flagSet{}
	var (
		files        int
		extracted    int
		uncompressed uint64
	)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}

		files++
		res.AddField("files", f.Name)
		uncompressed += f.UncompressedSize64

		if isDangerousPath(f.Name) {
			flags.raise(res, FlagDangerousPath)
		}
		if f.CompressedSize64 > 0 {
			ratio := float64(f.UncompressedSize64) / float64(f.CompressedSize64)
			if ratio > maxRatio {
				flags.raise(res, "compression_ratio")
			}
		}
		// bit 0 of the general purpose flags
		if f.Flags&0x1 != 0 {
			flags.raise(res, FlagEncrypted)
			continue
		}
		if extracted >= ext.limit {
			flags.raise(res, FlagLimitReached)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			flags.raise(res, "zip_member_error")
			continue
		}
		data, truncated, err := ext.read(rc)
		rc.Close()
		if err != nil {
			flags.raise(res, "zip_member_error")
			continue
		}
		if truncated {
			flags.raise(res, FlagTruncated)
		}

		res.AddChild(f.Name, data)
		extracted++
	}

	res.AddField("total.files", files)
	res.AddField("total.extracted", extracted)
	res.AddField("total.size", uncompressed)
	if zr.Comment != "" {
		res.AddField("comment", zr.Comment)
	}
	return res, nil
}

// Tar yields the regular-file members of a tar archive as children.
//
// Options: limit, max_size.
type Tar struct{}

func (Tar) Name() string { return "tar" }

func (Tar) Inspect(ctx context.Context, req *filescan.Request) (*filescan.Result, error) {
	ext := newExtraction(req.Options)
	tr := tar.NewReader(bytes.NewReader(req.Data))

	res := &filescan.Result{}
	flags := flagSet{}
	var files, extracted int

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if files == 0 {
				return nil, fmt.Errorf("read tar: %w", err)
			}
			flags.raise(res, FlagTruncated)
			break
		}

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			flags.raise(res, "symlink")
			res.AddField("links", hdr.Name+" -> "+hdr.Linkname)
			continue
		case tar.TypeLink:
			flags.raise(res, "hardlink")
			res.AddField("links", hdr.Name+" -> "+hdr.Linkname)
			continue
		case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old archives still use TypeRegA
		default:
			continue
		}

		files++
		res.AddField("files", hdr.Name)
		if isDangerousPath(hdr.Name) {
			flags.raise(res, FlagDangerousPath)
		}
		if extracted >= ext.limit {
			flags.raise(res, FlagLimitReached)
			continue
		}

		data, truncated, err := ext.read(tr)
		if err != nil {
			flags.raise(res, FlagTruncated)
			break
		}
		if truncated {
			flags.raise(res, FlagTruncated)
		}
		res.AddChild(hdr.Name, data)
		extracted++
	}

	res.AddField("total.files", files)
	res.AddField("total.extracted", extracted)
	return res, nil
}
