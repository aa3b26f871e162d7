package inspector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gobeaver/filescan"
)

// Image decodes only the header of a GIF, JPEG or PNG and records its
// dimensions. Images above the "max_pixels" option (default 50 million) are
// flagged as a decompression bomb.
type Image struct{}

func (Image) Name() string { return "image" }

func (Image) Inspect(_ context.Context, req *filescan.Request) (*filescan.Result, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(req.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}

	res := &filescan.Result{}
	res.AddField("format", format)
	res.AddField("width", cfg.Width)
	res.AddField("height", cfg.Height)

	if cfg.Width*cfg.Height > req.Options.Int("max_pixels", 50_000_000) {
		res.AddFlag("pixel_bomb")
	}
	return res, nil
}
