// Package postprocess - Turns anomaly model output tensors into per-image results.
package postprocess

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-anomaly/images"
	"github.com/nvr-ai/go-anomaly/inference"
)

// ErrShapeMismatch is returned when the output tensors are missing or their ranks do not fit
// the configured layout. It is the same value as inference.ErrShapeMismatch.
var ErrShapeMismatch = inference.ErrShapeMismatch

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid postprocess config")

// Probability names emitted for derived scores.
const (
	PeakScoreName = "peak_anomaly_score"
	MeanScoreName = "mean_anomaly_score"
)

// Layout selects how output tensors are assigned to roles.
type Layout string

const (
	// LayoutDualTensor reads a global score tensor ([B] or [B,1]) and a spatial map tensor
	// ([B,1,H,W] or [B,H,W]). The global score becomes the heatmap confidence.
	LayoutDualTensor Layout = "dual"
	// LayoutSingleTensor reads a spatial map tensor only and derives the confidence as the
	// peak of the clamped map.
	LayoutSingleTensor Layout = "single"
)

// ResizeConfig is the optional presentation resize applied to output rasters.
type ResizeConfig struct {
	Width  int                   `json:"width"  yaml:"width"`
	Height int                   `json:"height" yaml:"height"`
	Filter images.ResampleFilter `json:"filter" yaml:"filter"`
}

// Config describes one model family's output convention. It is a plain value; build it once
// and hand it to New.
type Config struct {
	// Layout is the tensor-role convention.
	Layout Layout `json:"layout" yaml:"layout"`
	// MinOutputs is the number of output tensors the engine must return. Zero means "as many
	// as the tensor roles need".
	MinOutputs int `json:"min_outputs" yaml:"min_outputs"`
	// ScoreTensor is the index of the global score tensor (dual layout only).
	ScoreTensor int `json:"score_tensor" yaml:"score_tensor"`
	// MapTensor is the index of the spatial map tensor.
	MapTensor int `json:"map_tensor" yaml:"map_tensor"`
	// Squeeze accepts a map tensor of rank 4 with a singleton channel axis.
	Squeeze bool `json:"squeeze" yaml:"squeeze"`
	// Channel, when set, reads this channel of a rank 4 map of any channel count. nil requires
	// a singleton channel axis. Only used with Squeeze.
	Channel *int `json:"channel,omitempty" yaml:"channel,omitempty"`
	// EdgeIgnorePixels forces columns x < e and x >= width-e to zero.
	EdgeIgnorePixels int `json:"edge_ignore_pixels" yaml:"edge_ignore_pixels"`
	// Resize, when set, resizes heatmap and mask rasters after quantization.
	Resize *ResizeConfig `json:"resize,omitempty" yaml:"resize,omitempty"`
	// HeatmapName is the display name attached to every heatmap.
	HeatmapName string `json:"heatmap_name" yaml:"heatmap_name"`
	// EmitPeakScore adds the peak of the clamped map as a Prob.
	EmitPeakScore bool `json:"emit_peak_score" yaml:"emit_peak_score"`
	// EmitMeanScore adds the mean of the clamped map as a Prob.
	EmitMeanScore bool `json:"emit_mean_score" yaml:"emit_mean_score"`
	// MaskThreshold, when set, adds a binary mask of clamped values >= threshold.
	MaskThreshold *float32 `json:"mask_threshold,omitempty" yaml:"mask_threshold,omitempty"`
	// Workers bounds the number of batch items processed concurrently. 0 or 1 is sequential.
	Workers int `json:"workers" yaml:"workers"`
}

// DualTensor returns the default dual-tensor convention: score at 0, map at 2.
func DualTensor() Config {
	return Config{
		Layout:      LayoutDualTensor,
		ScoreTensor: 0,
		MapTensor:   2,
		Squeeze:     true,
	}
}

// SingleTensor returns the default single-tensor convention: map at 0.
func SingleTensor() Config {
	return Config{
		Layout:        LayoutSingleTensor,
		MapTensor:     0,
		Squeeze:       true,
		EmitPeakScore: true,
	}
}

// RequiredOutputs returns the number of output tensors a forward call must produce.
func (c Config) RequiredOutputs() int {
	need := c.MapTensor + 1
	if c.Layout == LayoutDualTensor && c.ScoreTensor+1 > need {
		need = c.ScoreTensor + 1
	}
	if c.MinOutputs > need {
		need = c.MinOutputs
	}
	return need
}

// Validate checks the configuration.
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the offending field, or nil.
func (c Config) Validate() error {
	switch c.Layout {
	case LayoutDualTensor, LayoutSingleTensor:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown layout %q", c.Layout)
	}
	if c.MapTensor < 0 || c.ScoreTensor < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative tensor index (score=%d map=%d)", c.ScoreTensor, c.MapTensor)
	}
	if c.Layout == LayoutDualTensor && c.ScoreTensor == c.MapTensor {
		return errors.Wrapf(ErrInvalidConfig, "score and map share tensor %d", c.MapTensor)
	}
	if c.Channel != nil && *c.Channel < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative channel %d", *c.Channel)
	}
	if c.MinOutputs < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative min outputs %d", c.MinOutputs)
	}
	if c.MinOutputs > 0 && c.MinOutputs < c.roleOutputs() {
		return errors.Wrapf(ErrInvalidConfig, "min outputs %d is smaller than the %d tensors the roles need",
			c.MinOutputs, c.roleOutputs())
	}
	if c.EdgeIgnorePixels < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative edge ignore band %d", c.EdgeIgnorePixels)
	}
	if c.Resize != nil && (c.Resize.Width <= 0 || c.Resize.Height <= 0) {
		return errors.Wrapf(ErrInvalidConfig, "resize target %dx%d", c.Resize.Width, c.Resize.Height)
	}
	if c.MaskThreshold != nil && (*c.MaskThreshold < 0 || *c.MaskThreshold > 1) {
		return errors.Wrapf(ErrInvalidConfig, "mask threshold %v outside [0,1]", *c.MaskThreshold)
	}
	if c.Workers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative workers %d", c.Workers)
	}
	return nil
}

func (c Config) roleOutputs() int {
	return Config{Layout: c.Layout, ScoreTensor: c.ScoreTensor, MapTensor: c.MapTensor}.RequiredOutputs()
}

// String implements fmt.Stringer.
func (c Config) String() string {
	return fmt.Sprintf("postprocess.Config(layout=%s outputs=%d edge=%d)", c.Layout, c.RequiredOutputs(), c.EdgeIgnorePixels)
}
