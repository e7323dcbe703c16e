package results

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-anomaly/viz/style"
)

// Mask is a binary single-channel raster (0 or 255) marking anomalous pixels.
type Mask struct {
	raster
	id    *int
	name  string
	style *style.Style
}

// NewMask builds a mask from row-major raster bytes. The bytes are copied.
func NewMask(pix []uint8, width, height int) (Mask, error) {
	r, err := newRaster(pix, width, height)
	if err != nil {
		return Mask{}, err
	}
	return Mask{raster: r}, nil
}

// MaskFromGray builds a mask from a gray image.
func MaskFromGray(g *image.Gray) Mask {
	return Mask{raster: rasterFromGray(g)}
}

// ID returns the category id, if set.
func (m Mask) ID() (int, bool) { return derefInt(m.id) }

// Name returns the display name.
func (m Mask) Name() string { return m.name }

// Style returns the per-instance style override or nil.
func (m Mask) Style() *style.Style { return m.style }

// WithID returns a copy with the category id set.
func (m Mask) WithID(id int) Mask {
	m.id = &id
	return m
}

// WithName returns a copy with the display name set.
func (m Mask) WithName(name string) Mask {
	m.name = name
	return m
}

// WithStyle returns a copy carrying a per-instance style override.
func (m Mask) WithStyle(s style.Style) Mask {
	m.style = &s
	return m
}

// Area returns the number of non-zero pixels.
func (m Mask) Area() int {
	n := 0
	for _, v := range m.pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Equal reports whether both masks hold the same raster.
func (m Mask) Equal(o Mask) bool {
	return m.raster.equal(o.raster)
}

// String implements fmt.Stringer.
func (m Mask) String() string {
	return fmt.Sprintf("Mask(%dx%d name=%s area=%d)", m.width, m.height, m.name, m.Area())
}
