// Package images - Image definition for processing utilities.
package images

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	// Registered decoders.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromPath returns the image format implied by a file extension.
func FormatFromPath(path string) (ImageFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

// Decode decodes the encoded bytes and fills in Width and Height.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the data cannot be decoded.
func (i *Image) Decode() (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(i.Data))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s image", i.Format)
	}
	if i.Format == "" {
		i.Format = ImageFormat(format)
	}
	i.Width, i.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return img, nil
}
