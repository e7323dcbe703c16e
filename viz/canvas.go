// Package viz - Renders heatmaps and masks onto a shared canvas.
package viz

import (
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// Canvas is a caller-owned RGBA drawing surface. Draw calls take exclusive access for the
// duration of one compose step, so several goroutines may draw onto the same canvas.
type Canvas struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewCanvas returns a transparent width x height canvas.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// CanvasFrom returns a canvas holding a copy of img, with bounds starting at (0, 0).
func CanvasFrom(img image.Image) *Canvas {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Canvas{img: dst}
}

// Bounds returns the canvas bounds.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// Image returns the underlying image. It must not be read while draws are in flight.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Snapshot returns a copy of the current canvas contents.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// compose alpha-blends a canvas-sized overlay onto the canvas at (0, 0).
func (c *Canvas) compose(overlay *image.NRGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	draw.Draw(c.img, c.img.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
}
