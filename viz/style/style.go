// Package style - Rendering parameters for heatmaps and masks and their resolution order.
package style

import (
	"fmt"

	"github.com/pkg/errors"
)

// DefaultFillAlpha is the built-in overlay alpha.
const DefaultFillAlpha uint8 = 120

// ColormapSize is the number of entries a color lookup table must hold, one per byte value.
const ColormapSize = 256

// ErrColormapSize is returned when a color lookup table does not hold ColormapSize entries.
var ErrColormapSize = errors.New("colormap must have 256 entries")

// RGB is an opaque 8-bit color.
type RGB struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

// Colormap maps a raster byte value to a color.
type Colormap []RGB

// Validate checks the colormap length. An empty colormap is valid and means "not set".
func (c Colormap) Validate() error {
	if len(c) != 0 && len(c) != ColormapSize {
		return errors.Wrapf(ErrColormapSize, "got %d", len(c))
	}
	return nil
}

// Style holds rendering parameters. Unset fields defer to the next tier during Resolve.
type Style struct {
	// FillAlpha is the overlay alpha. nil means unset.
	FillAlpha *uint8 `json:"fill_alpha,omitempty" yaml:"fill_alpha,omitempty"`
	// Colormap is the color lookup table. Empty means unset; the resolved style then uses
	// the built-in gradient.
	Colormap Colormap `json:"colormap,omitempty" yaml:"colormap,omitempty"`
}

// New returns a style with both fields set.
func New(alpha uint8, cmap Colormap) Style {
	return Style{FillAlpha: &alpha, Colormap: cmap}
}

// WithFillAlpha returns a copy of s with the fill alpha set.
func (s Style) WithFillAlpha(alpha uint8) Style {
	s.FillAlpha = &alpha
	return s
}

// WithColormap returns a copy of s with the colormap set.
func (s Style) WithColormap(cmap Colormap) Style {
	s.Colormap = cmap
	return s
}

// Alpha returns the fill alpha or DefaultFillAlpha when unset.
func (s Style) Alpha() uint8 {
	if s.FillAlpha == nil {
		return DefaultFillAlpha
	}
	return *s.FillAlpha
}

// Validate checks the style for rendering.
func (s Style) Validate() error {
	return s.Colormap.Validate()
}

// String implements fmt.Stringer.
func (s Style) String() string {
	cmap := "gradient"
	if len(s.Colormap) > 0 {
		cmap = fmt.Sprintf("colormap[%d]", len(s.Colormap))
	}
	if s.FillAlpha == nil {
		return fmt.Sprintf("Style(alpha=unset %s)", cmap)
	}
	return fmt.Sprintf("Style(alpha=%d %s)", *s.FillAlpha, cmap)
}

// Builtin returns the hard-coded default style: alpha 120 and the gradient.
func Builtin() Style {
	return New(DefaultFillAlpha, nil)
}

// Resolve merges the three style tiers. Each field is taken from the first tier that sets it:
// local, then the category global default, then builtin. local and global may be nil.
//
// Arguments:
//   - local: The drawable's own style.
//   - global: The caller-supplied default for the drawable's category.
//   - builtin: The hard-coded default.
//
// Returns:
//   - Style: The resolved style.
//
// @example
// s := style.Resolve(h.Style(), ctx.HeatmapStyle, style.Builtin())
func Resolve(local, global *Style, builtin Style) Style {
	out := builtin
	for _, tier := range []*Style{global, local} {
		if tier == nil {
			continue
		}
		if tier.FillAlpha != nil {
			a := *tier.FillAlpha
			out.FillAlpha = &a
		}
		if len(tier.Colormap) > 0 {
			out.Colormap = tier.Colormap
		}
	}
	return out
}

// DrawContext carries the caller's per-category default styles.
type DrawContext struct {
	HeatmapStyle *Style `json:"heatmap_style,omitempty" yaml:"heatmap_style,omitempty"`
	MaskStyle    *Style `json:"mask_style,omitempty"    yaml:"mask_style,omitempty"`
}
