// Package results - Per-input result value types produced by postprocessing.
package results

import (
	"bytes"
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrBufferSize is returned when a raw pixel buffer does not hold width*height bytes.
var ErrBufferSize = errors.New("raster buffer size mismatch")

// Clamp01 clamps v into [0, 1]. NaN maps to 0.
func Clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}

// raster is a single-channel 8-bit image whose dimensions are fixed at construction.
type raster struct {
	pix    []uint8
	width  int
	height int
}

func newRaster(pix []uint8, width, height int) (raster, error) {
	if width < 0 || height < 0 {
		return raster{}, errors.Wrapf(ErrBufferSize, "negative dimensions %dx%d", width, height)
	}
	if len(pix) != width*height {
		return raster{}, errors.Wrapf(ErrBufferSize,
			"%dx%d raster needs %d bytes, got %d", width, height, width*height, len(pix))
	}
	return raster{pix: append([]uint8(nil), pix...), width: width, height: height}, nil
}

func rasterFromGray(g *image.Gray) raster {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := g.PixOffset(b.Min.X, y)
		pix = append(pix, g.Pix[off:off+w]...)
	}
	return raster{pix: pix, width: w, height: h}
}

// Width returns the raster width.
func (r raster) Width() int { return r.width }

// Height returns the raster height.
func (r raster) Height() int { return r.height }

// Dimensions returns width and height.
func (r raster) Dimensions() (int, int) { return r.width, r.height }

// At returns the byte at (x, y). Out of range coordinates return 0.
func (r raster) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return 0
	}
	return r.pix[y*r.width+x]
}

// Pixels returns a copy of the row-major raster bytes.
func (r raster) Pixels() []uint8 {
	return append([]uint8(nil), r.pix...)
}

// Gray returns the raster as a new *image.Gray.
func (r raster) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, r.width, r.height))
	copy(g.Pix, r.pix)
	return g
}

func (r raster) equal(o raster) bool {
	return r.width == o.width && r.height == o.height && bytes.Equal(r.pix, o.pix)
}
