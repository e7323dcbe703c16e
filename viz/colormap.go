package viz

import (
	"image/color"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"

	"github.com/nvr-ai/go-anomaly/viz/style"
)

// ErrUnknownColormap is returned by Colormap for an unregistered name.
var ErrUnknownColormap = errors.New("unknown colormap")

// GradientName selects the built-in gradient (an unset colormap).
const GradientName = "gradient"

var colormaps = map[string]func() palette.Palette{
	"heat": func() palette.Palette { return palette.Heat(style.ColormapSize, 1) },
	"rainbow": func() palette.Palette {
		return palette.Rainbow(style.ColormapSize, palette.Blue, palette.Red, 1, 1, 1)
	},
	"blackbody": func() palette.Palette { return unit(moreland.BlackBody()).Palette(style.ColormapSize) },
	"kindlmann": func() palette.Palette { return unit(moreland.Kindlmann()).Palette(style.ColormapSize) },
	"bluered":   func() palette.Palette { return unit(moreland.SmoothBlueRed()).Palette(style.ColormapSize) },
}

// unit maps a color map over [0, 1].
func unit(m palette.ColorMap) palette.ColorMap {
	m.SetMax(1)
	m.SetMin(0)
	return m
}

// Colormap returns a named 256-entry colormap. GradientName (or "") returns nil, which
// renders with the built-in gradient.
//
// Arguments:
//   - name: One of ColormapNames.
//
// Returns:
//   - style.Colormap: The lookup table.
//   - error: ErrUnknownColormap for an unknown name.
func Colormap(name string) (style.Colormap, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == GradientName {
		return nil, nil
	}
	build, ok := colormaps[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColormap, "%q", name)
	}
	return FromColors(build().Colors())
}

// ColormapNames returns the registered colormap names, including GradientName.
func ColormapNames() []string {
	names := []string{GradientName}
	for n := range colormaps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FromColors converts 256 colors into a colormap, dropping alpha.
func FromColors(colors []color.Color) (style.Colormap, error) {
	if len(colors) != style.ColormapSize {
		return nil, errors.Wrapf(style.ErrColormapSize, "got %d colors", len(colors))
	}
	cmap := make(style.Colormap, len(colors))
	for i, c := range colors {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		cmap[i] = style.RGB{R: n.R, G: n.G, B: n.B}
	}
	return cmap, nil
}
