package results

import (
	"fmt"
	"image"
	"strings"

	"github.com/nvr-ai/go-anomaly/viz/style"
)

// Heatmap is a single-channel 8-bit anomaly raster with identity and confidence metadata.
//
// Heatmap is a value type. The With* methods return modified copies and never touch the
// raster, whose dimensions are fixed at construction.
type Heatmap struct {
	raster
	uid        *int
	id         *int
	name       string
	confidence *float32
	style      *style.Style
}

// NewHeatmap builds a heatmap from row-major raster bytes. The bytes are copied.
//
// Arguments:
//   - pix: The raster bytes, width*height long.
//   - width: The raster width.
//   - height: The raster height.
//
// Returns:
//   - Heatmap: The heatmap.
//   - error: ErrBufferSize if len(pix) != width*height.
//
// @example
// h, err := results.NewHeatmap([]uint8{0, 255, 127, 51}, 2, 2)
func NewHeatmap(pix []uint8, width, height int) (Heatmap, error) {
	r, err := newRaster(pix, width, height)
	if err != nil {
		return Heatmap{}, err
	}
	return Heatmap{raster: r}, nil
}

// HeatmapFromGray builds a heatmap from a gray image.
func HeatmapFromGray(g *image.Gray) Heatmap {
	return Heatmap{raster: rasterFromGray(g)}
}

// UID returns the sequence index, if set.
func (h Heatmap) UID() (int, bool) { return derefInt(h.uid) }

// ID returns the category id, if set.
func (h Heatmap) ID() (int, bool) { return derefInt(h.id) }

// Name returns the display name.
func (h Heatmap) Name() string { return h.name }

// Confidence returns the confidence, if set. It is always within [0, 1].
func (h Heatmap) Confidence() (float32, bool) {
	if h.confidence == nil {
		return 0, false
	}
	return *h.confidence, true
}

// Style returns the per-instance style override or nil.
func (h Heatmap) Style() *style.Style { return h.style }

// WithUID returns a copy with the sequence index set.
func (h Heatmap) WithUID(uid int) Heatmap {
	h.uid = &uid
	return h
}

// WithID returns a copy with the category id set.
func (h Heatmap) WithID(id int) Heatmap {
	h.id = &id
	return h
}

// WithName returns a copy with the display name set.
func (h Heatmap) WithName(name string) Heatmap {
	h.name = name
	return h
}

// WithConfidence returns a copy with the confidence set, clamped into [0, 1].
func (h Heatmap) WithConfidence(c float32) Heatmap {
	c = Clamp01(c)
	h.confidence = &c
	return h
}

// WithStyle returns a copy carrying a per-instance style override.
func (h Heatmap) WithStyle(s style.Style) Heatmap {
	h.style = &s
	return h
}

// Equal reports whether both heatmaps hold the same raster. Metadata is not compared.
func (h Heatmap) Equal(o Heatmap) bool {
	return h.raster.equal(o.raster)
}

// String implements fmt.Stringer.
func (h Heatmap) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Heatmap(%dx%d", h.width, h.height)
	if h.uid != nil {
		fmt.Fprintf(&b, " uid=%d", *h.uid)
	}
	if h.id != nil {
		fmt.Fprintf(&b, " id=%d", *h.id)
	}
	if h.name != "" {
		fmt.Fprintf(&b, " name=%s", h.name)
	}
	if h.confidence != nil {
		fmt.Fprintf(&b, " conf=%.3f", *h.confidence)
	}
	b.WriteString(")")
	return b.String()
}

func derefInt(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
