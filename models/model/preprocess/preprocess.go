// Package preprocess - Converts decoded images into the batched input tensor of an anomaly model.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-anomaly/images"
	"github.com/nvr-ai/go-anomaly/inference"
)

// Channels is the number of input channels produced.
const Channels = 3

// InputName is the name of the batched input tensor.
const InputName = "images"

// ColorMode defines the channel order written into the tensor.
type ColorMode int

const (
	// ColorModeRGB writes channels as R, G, B.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR writes channels as B, G, R (common for OpenCV trained models).
	ColorModeBGR
)

// ImageNetMean is the per-channel RGB mean of ImageNet in [0, 1] units.
var ImageNetMean = []float32{0.485, 0.456, 0.406}

// ImageNetStd is the per-channel RGB standard deviation of ImageNet in [0, 1] units.
var ImageNetStd = []float32{0.229, 0.224, 0.225}

// Config defines preprocessing for a specific model.
type Config struct {
	// Width is the model input width.
	Width int `json:"width" yaml:"width"`
	// Height is the model input height.
	Height int `json:"height" yaml:"height"`
	// Filter is the resampling filter used to reach Width x Height.
	Filter images.ResampleFilter `json:"filter" yaml:"filter"`
	// Normalize scales 8-bit pixel values to [0, 1].
	Normalize bool `json:"normalize" yaml:"normalize"`
	// Mean and Std, when set, standardize each channel as (v-mean)/std after scaling.
	Mean []float32 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std  []float32 `json:"std,omitempty"  yaml:"std,omitempty"`
	// ColorMode defines the channel order.
	ColorMode ColorMode `json:"color_mode" yaml:"color_mode"`
	// KeepAspectRatio, if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool `json:"keep_aspect_ratio" yaml:"keep_aspect_ratio"`
	// LetterboxColor is the color used for letterbox padding (default black).
	LetterboxColor color.Color `json:"-" yaml:"-"`
	// Workers bounds the number of images processed concurrently (0 = GOMAXPROCS).
	Workers int `json:"workers" yaml:"workers"`
}

// WithSize returns a copy of c targeting width x height.
func (c Config) WithSize(width, height int) Config {
	c.Width = width
	c.Height = height
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("invalid input size %dx%d", c.Width, c.Height)
	}
	if (len(c.Mean) > 0 || len(c.Std) > 0) && (len(c.Mean) != Channels || len(c.Std) != Channels) {
		return errors.Errorf("mean and std need %d values, got %d and %d", Channels, len(c.Mean), len(c.Std))
	}
	for i, s := range c.Std {
		if s == 0 {
			return errors.Errorf("std[%d] is zero", i)
		}
	}
	return nil
}

// Preprocessor converts images into model input tensors.
type Preprocessor struct {
	config Config
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: An error if the configuration is invalid.
//
// @example
//
//	p, err := NewPreprocessor(Config{
//	    Width:     392,
//	    Height:    392,
//	    Filter:    images.Lanczos3Filter,
//	    Normalize: true,
//	    Mean:      ImageNetMean,
//	    Std:       ImageNetStd,
//	})
func NewPreprocessor(config Config) (*Preprocessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.LetterboxColor == nil {
		config.LetterboxColor = color.Black
	}
	return &Preprocessor{config: config}, nil
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() Config {
	return p.config
}

// ProcessImages converts a batch of images into one [B, 3, H, W] tensor. Images are processed
// in parallel; item order in the tensor matches input order.
//
// Arguments:
//   - imgs: The decoded input images.
//
// Returns:
//   - *inference.Tensor: The batched CHW tensor.
//   - error: An error if the batch is empty or an image cannot be processed.
func (p *Preprocessor) ProcessImages(imgs []image.Image) (*inference.Tensor, error) {
	if len(imgs) == 0 {
		return nil, errors.New("no images to preprocess")
	}

	workers := p.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	per := Channels * p.config.Height * p.config.Width
	batch := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(len(imgs), Channels, p.config.Height, p.config.Width))
	data, ok := batch.Data().([]float32)
	if !ok || len(data) != len(imgs)*per {
		return nil, errors.Errorf("allocating %dx%dx%dx%d input batch", len(imgs), Channels, p.config.Height, p.config.Width)
	}
	errs := make([]error, len(imgs))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, img := range imgs {
		wg.Add(1)
		go func(idx int, img image.Image) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := p.process(img, data[idx*per:(idx+1)*per]); err != nil {
				errs[idx] = errors.Wrapf(err, "failed to preprocess image %d", idx)
			}
		}(i, img)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return inference.FromDense(InputName, batch)
}

// Process converts a single image into a [1, 3, H, W] tensor.
func (p *Preprocessor) Process(img image.Image) (*inference.Tensor, error) {
	return p.ProcessImages([]image.Image{img})
}

// process writes the CHW values of one image into dst.
func (p *Preprocessor) process(img image.Image, dst []float32) error {
	if img == nil {
		return errors.New("image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("invalid image dimensions: %dx%d", b.Dx(), b.Dy())
	}

	resized, err := p.resizeImage(img)
	if err != nil {
		return err
	}
	p.imageToTensor(resized, dst)
	p.normalize(dst)
	return nil
}

// resizeImage resizes the image to the model's input dimensions and returns it as RGBA.
func (p *Preprocessor) resizeImage(img image.Image) (*image.RGBA, error) {
	w, h := p.config.Width, p.config.Height
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	if !p.config.KeepAspectRatio {
		resized, err := images.Resize(img, w, h, p.config.Filter)
		if err != nil {
			return nil, err
		}
		draw.Draw(dst, dst.Bounds(), resized, resized.Bounds().Min, draw.Src)
		return dst, nil
	}

	// Calculate scale to maintain aspect ratio.
	bounds := img.Bounds()
	scale := math.Min(float64(w)/float64(bounds.Dx()), float64(h)/float64(bounds.Dy()))
	newWidth := max(1, int(float64(bounds.Dx())*scale))
	newHeight := max(1, int(float64(bounds.Dy())*scale))

	resized, err := images.Resize(img, newWidth, newHeight, p.config.Filter)
	if err != nil {
		return nil, err
	}

	padLeft := (w - newWidth) / 2
	padTop := (h - newHeight) / 2

	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: p.config.LetterboxColor}, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, resized.Bounds().Min, draw.Src)
	return dst, nil
}

// imageToTensor writes 8-bit channel values in CHW order.
func (p *Preprocessor) imageToTensor(img *image.RGBA, dst []float32) {
	width, height := p.config.Width, p.config.Height
	plane := width * height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := img.PixOffset(x, y)
			r, g, b := float32(img.Pix[off]), float32(img.Pix[off+1]), float32(img.Pix[off+2])
			if p.config.ColorMode == ColorModeBGR {
				r, b = b, r
			}
			i := y*width + x
			dst[i] = r
			dst[plane+i] = g
			dst[2*plane+i] = b
		}
	}
}

// normalize applies scaling and per-channel standardization in place.
func (p *Preprocessor) normalize(dst []float32) {
	if p.config.Normalize {
		for i := range dst {
			dst[i] /= 255.0
		}
	}
	if len(p.config.Mean) != Channels {
		return
	}
	plane := len(dst) / Channels
	for c := 0; c < Channels; c++ {
		mean, std := p.config.Mean[c], p.config.Std[c]
		channel := dst[c*plane : (c+1)*plane]
		for i := range channel {
			channel[i] = (channel[i] - mean) / std
		}
	}
}
