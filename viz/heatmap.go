package viz

import (
	"image"
	"image/color"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-anomaly/results"
	"github.com/nvr-ai/go-anomaly/viz/style"
)

var (
	// ErrMalformedStyle is returned when a resolved style cannot be rendered.
	ErrMalformedStyle = errors.New("malformed style")
	// ErrNilCanvas is returned when drawing onto a nil canvas.
	ErrNilCanvas = errors.New("nil canvas")
)

// raster is the read view shared by heatmaps and masks.
type raster interface {
	Dimensions() (int, int)
	At(x, y int) uint8
}

// gradient is the built-in green -> yellow -> red lookup table.
var gradient = buildGradient()

func buildGradient() style.Colormap {
	cmap := make(style.Colormap, style.ColormapSize)
	for i := range cmap {
		n := float32(i) / 255
		var r, g float32
		if n < 0.5 {
			r, g = 2*n, 1
		} else {
			r, g = 1, 2*(1-n)
		}
		cmap[i] = style.RGB{R: uint8(r * 255), G: uint8(g * 255), B: 0}
	}
	return cmap
}

// Gradient returns a copy of the built-in gradient used when no colormap is configured.
func Gradient() style.Colormap {
	return append(style.Colormap(nil), gradient...)
}

// Offset returns the top-left position that centers a raster on a canvas, clamped to 0 when
// the raster is larger.
func Offset(canvas, raster int) int {
	return max(0, (canvas-raster)/2)
}

// DrawHeatmaps renders heatmaps onto the canvas in list order, later heatmaps painted over
// earlier ones.
//
// Arguments:
//   - ctx: The per-category default styles.
//   - heatmaps: The heatmaps to render.
//   - canvas: The destination canvas, mutated in place.
//
// Returns:
//   - error: ErrNilCanvas or ErrMalformedStyle. Nothing after the failing heatmap is drawn.
//
// @example
// canvas := viz.CanvasFrom(frame)
// err := viz.DrawHeatmaps(style.DrawContext{}, res.Heatmaps, canvas)
func DrawHeatmaps(ctx style.DrawContext, heatmaps []results.Heatmap, canvas *Canvas) error {
	for i, h := range heatmaps {
		if err := DrawHeatmap(ctx, h, canvas); err != nil {
			return errors.Wrapf(err, "heatmap %d", i)
		}
	}
	return nil
}

// DrawHeatmap renders one heatmap centered on the canvas. Its style is resolved from its own
// style, then ctx.HeatmapStyle, then the built-in default.
func DrawHeatmap(ctx style.DrawContext, h results.Heatmap, canvas *Canvas) error {
	s := style.Resolve(h.Style(), ctx.HeatmapStyle, style.Builtin())
	return paint(canvas, h, s, false)
}

// DrawMasks renders masks in list order. Only non-zero mask pixels are painted.
func DrawMasks(ctx style.DrawContext, masks []results.Mask, canvas *Canvas) error {
	for i, m := range masks {
		s := style.Resolve(m.Style(), ctx.MaskStyle, style.Builtin())
		if err := paint(canvas, m, s, true); err != nil {
			return errors.Wrapf(err, "mask %d", i)
		}
	}
	return nil
}

// paint colors the raster into a transparent canvas-sized overlay at the centering offset and
// composites the overlay onto the canvas.
func paint(canvas *Canvas, r raster, s style.Style, skipZero bool) error {
	if canvas == nil {
		return ErrNilCanvas
	}
	if err := s.Validate(); err != nil {
		return errors.Wrapf(ErrMalformedStyle, "%v", err)
	}

	cmap := s.Colormap
	if len(cmap) == 0 {
		cmap = gradient
	}
	alpha := s.Alpha()

	bounds := canvas.Bounds()
	cw, ch := bounds.Dx(), bounds.Dy()
	rw, rh := r.Dimensions()
	ox, oy := Offset(cw, rw), Offset(ch, rh)

	overlay := image.NewNRGBA(bounds)
	for y := 0; y < rh; y++ {
		dy := oy + y
		if dy >= ch {
			break
		}
		for x := 0; x < rw; x++ {
			dx := ox + x
			if dx >= cw {
				break
			}
			v := r.At(x, y)
			if skipZero && v == 0 {
				continue
			}
			c := cmap[v]
			overlay.SetNRGBA(bounds.Min.X+dx, bounds.Min.Y+dy, color.NRGBA{R: c.R, G: c.G, B: c.B, A: alpha})
		}
	}

	canvas.compose(overlay)
	return nil
}
