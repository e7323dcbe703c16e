package images

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Resize scales img to width x height with the given filter.
//
// Arguments:
//   - img: The source image.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//   - filter: The resampling filter.
//
// Returns:
//   - image.Image: The resized image. Its bounds start at (0, 0).
//   - error: An error if a target dimension is not positive.
//
// @example
// resized, err := Resize(src, 392, 392, Lanczos3Filter)
func Resize(img image.Image, width, height int, filter ResampleFilter) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid target size %dx%d", width, height)
	}

	if interp, ok := filter.interpolation(); ok {
		return resize.Resize(uint(width), uint(height), img, interp), nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	filter.scaler().Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// ResizeGray scales a single-channel raster. A raster already at the target size is copied.
//
// Arguments:
//   - src: The source raster.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//   - filter: The resampling filter.
//
// Returns:
//   - *image.Gray: The resized raster.
//   - error: An error if a target dimension is not positive.
func ResizeGray(src *image.Gray, width, height int, filter ResampleFilter) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid target size %dx%d", width, height)
	}

	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if b.Dx() == width && b.Dy() == height {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst, nil
	}

	if interp, ok := filter.interpolation(); ok {
		out := resize.Resize(uint(width), uint(height), src, interp)
		// nfnt keeps *image.Gray for gray input; other results are converted.
		if g, ok := out.(*image.Gray); ok {
			return g, nil
		}
		draw.Draw(dst, dst.Bounds(), out, out.Bounds().Min, draw.Src)
		return dst, nil
	}

	filter.scaler().Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, nil
}
