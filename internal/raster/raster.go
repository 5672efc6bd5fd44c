// Package raster converts SVG markup into fixed-size PNG bitmaps so batch
// output stays uniform across raster and vector sources.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/jgivc/imgfetch/internal/common"
)

type Rasterizer struct {
	width  int
	height int
	log    *slog.Logger
}

func NewRasterizer(width, height int, log *slog.Logger) *Rasterizer {
	return &Rasterizer{
		width:  width,
		height: height,
		log:    log.With(slog.String("item", "Rasterizer")),
	}
}

// Rasterize renders svg markup onto the configured canvas and encodes it as
// PNG. The svg library panics on some malformed documents, so rendering runs
// behind a recover and every failure mode comes back as a plain error.
func (r *Rasterizer) Rasterize(markup []byte) (out []byte, err error) {
	if len(markup) == 0 {
		return nil, fmt.Errorf("%w: empty markup", common.ErrRasterizationError)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("Renderer panic", slog.Any("panic", rec))

			out = nil
			err = fmt.Errorf("%w: renderer panic: %v", common.ErrRasterizationError, rec)
		}
	}()

	icon, err := oksvg.ReadIconStream(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRasterizationError, err)
	}

	icon.SetTarget(0, 0, float64(r.width), float64(r.height))

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	scanner := rasterx.NewScannerGV(r.width, r.height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(r.width, r.height, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: cannot encode png: %v", common.ErrRasterizationError, err)
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: encoder produced no output", common.ErrRasterizationError)
	}

	return buf.Bytes(), nil
}
