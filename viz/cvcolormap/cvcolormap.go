// Package cvcolormap - OpenCV colormaps as heatmap lookup tables.
package cvcolormap

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-anomaly/viz/style"
)

// ErrUnknownColormap is returned for a name with no OpenCV colormap.
var ErrUnknownColormap = errors.New("unknown opencv colormap")

var kinds = map[string]gocv.ColormapTypes{
	"autumn":  gocv.ColormapAutumn,
	"bone":    gocv.ColormapBone,
	"jet":     gocv.ColormapJet,
	"winter":  gocv.ColormapWinter,
	"rainbow": gocv.ColormapRainbow,
	"ocean":   gocv.ColormapOcean,
	"summer":  gocv.ColormapSummer,
	"spring":  gocv.ColormapSpring,
	"cool":    gocv.ColormapCool,
	"pink":    gocv.ColormapPink,
	"hot":     gocv.ColormapHot,
	"parula":  gocv.ColormapParula,
}

// Names returns the supported colormap names, sorted.
func Names() []string {
	out := make([]string, 0, len(kinds))
	for n := range kinds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the named OpenCV colormap.
func Lookup(name string) (style.Colormap, error) {
	kind, ok := kinds[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColormap, "%q", name)
	}
	return Colormap(kind)
}

// Colormap samples an OpenCV colormap at every byte value.
//
// Arguments:
//   - kind: The OpenCV colormap.
//
// Returns:
//   - style.Colormap: A 256-entry lookup table in RGB order.
//   - error: An error if OpenCV returned an unexpected matrix.
//
// @example
// cmap, err := cvcolormap.Colormap(gocv.ColormapJet)
func Colormap(kind gocv.ColormapTypes) (style.Colormap, error) {
	ramp := gocv.NewMatWithSize(1, style.ColormapSize, gocv.MatTypeCV8UC1)
	defer ramp.Close()
	for i := 0; i < style.ColormapSize; i++ {
		ramp.SetUCharAt(0, i, uint8(i))
	}

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(ramp, &colored, kind)

	if colored.Empty() || colored.Cols() != style.ColormapSize || colored.Channels() != 3 {
		return nil, errors.Errorf("colormap %d: unexpected output %dx%dx%d",
			kind, colored.Rows(), colored.Cols(), colored.Channels())
	}

	cmap := make(style.Colormap, style.ColormapSize)
	for i := range cmap {
		bgr := colored.GetVecbAt(0, i)
		cmap[i] = style.RGB{R: bgr[2], G: bgr[1], B: bgr[0]}
	}
	return cmap, nil
}
