// Package images - Raster resampling filters and image decoding for the anomaly pipeline.
package images

import (
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// ResampleFilter defines the resampling algorithm used for image scaling.
type ResampleFilter int

const (
	// NearestNeighborFilter uses nearest-neighbor interpolation (fastest, lowest quality).
	NearestNeighborFilter ResampleFilter = iota
	// TriangleFilter uses the linear (tent) kernel. When downscaling, the kernel is widened to
	// the scale factor, which makes it area preserving.
	TriangleFilter
	// BicubicFilter uses bicubic interpolation.
	BicubicFilter
	// MitchellNetravaliFilter uses Mitchell-Netravali cubic filter (balanced).
	MitchellNetravaliFilter
	// Lanczos2Filter uses Lanczos resampling with a=2.
	Lanczos2Filter
	// Lanczos3Filter uses Lanczos resampling with a=3 (slowest, best quality).
	Lanczos3Filter
	// CatmullRomFilter uses the Catmull-Rom cubic kernel.
	CatmullRomFilter
	// ApproxBiLinearFilter uses a fast bilinear approximation that does not widen the kernel.
	ApproxBiLinearFilter
)

var filterNames = map[ResampleFilter]string{
	NearestNeighborFilter:   "nearest",
	TriangleFilter:          "triangle",
	BicubicFilter:           "bicubic",
	MitchellNetravaliFilter: "mitchell",
	Lanczos2Filter:          "lanczos2",
	Lanczos3Filter:          "lanczos3",
	CatmullRomFilter:        "catmullrom",
	ApproxBiLinearFilter:    "approxbilinear",
}

// filterAliases are alternative spellings accepted by ParseFilter.
var filterAliases = map[string]ResampleFilter{
	"bilinear":    TriangleFilter,
	"linear":      TriangleFilter,
	"lanczos":     Lanczos3Filter,
	"gaussian":    MitchellNetravaliFilter,
	"catmull-rom": CatmullRomFilter,
}

// String implements fmt.Stringer.
func (f ResampleFilter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseFilter resolves a filter name (case-insensitive).
//
// Arguments:
//   - name: The filter name, e.g. "triangle", "lanczos3", "catmullrom".
//
// Returns:
//   - ResampleFilter: The filter.
//   - error: An error if the name is unknown.
func ParseFilter(name string) (ResampleFilter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range filterNames {
		if n == name {
			return f, nil
		}
	}
	if f, ok := filterAliases[name]; ok {
		return f, nil
	}
	return 0, errors.Errorf("unknown resample filter %q", name)
}

// interpolation returns the nfnt kernel for filters implemented by nfnt/resize.
func (f ResampleFilter) interpolation() (resize.InterpolationFunction, bool) {
	switch f {
	case NearestNeighborFilter:
		return resize.NearestNeighbor, true
	case TriangleFilter:
		return resize.Bilinear, true
	case BicubicFilter:
		return resize.Bicubic, true
	case MitchellNetravaliFilter:
		return resize.MitchellNetravali, true
	case Lanczos2Filter:
		return resize.Lanczos2, true
	case Lanczos3Filter:
		return resize.Lanczos3, true
	default:
		return 0, false
	}
}

// scaler returns the x/image kernel for the remaining filters.
func (f ResampleFilter) scaler() draw.Scaler {
	switch f {
	case CatmullRomFilter:
		return draw.CatmullRom
	case ApproxBiLinearFilter:
		return draw.ApproxBiLinear
	default:
		return draw.BiLinear
	}
}
