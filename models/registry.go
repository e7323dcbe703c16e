// Package models - Registry of anomaly model presets.
package models

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-anomaly/images"
	"github.com/nvr-ai/go-anomaly/models/model"
	"github.com/nvr-ai/go-anomaly/models/model/preprocess"
	"github.com/nvr-ai/go-anomaly/models/postprocess"
)

// ErrUnknownModel is returned by Lookup for a name with no preset.
var ErrUnknownModel = errors.New("unknown model")

// HeatmapName is the display name of every anomaly heatmap.
const HeatmapName = "anomaly"

var presets = map[model.Name]func() model.Config{
	model.ModelNameGLASS:    GLASS,
	model.ModelNameDinomaly: Dinomaly,
	model.ModelNameUniNet:   UniNet,
}

// imageNet returns the preprocessing shared by every preset: exact resize, [0,1] scaling and
// ImageNet standardization.
func imageNet(size int, filter images.ResampleFilter) preprocess.Config {
	return preprocess.Config{
		Width:     size,
		Height:    size,
		Filter:    filter,
		Normalize: true,
		Mean:      preprocess.ImageNetMean,
		Std:       preprocess.ImageNetStd,
		ColorMode: preprocess.ColorModeRGB,
	}
}

// GLASS returns the GLASS preset: one [B,H,W] or [B,1,H,W] anomaly map, peak and mean scores,
// heatmaps resized to 900x900 with a triangle filter.
func GLASS() model.Config {
	post := postprocess.SingleTensor()
	post.HeatmapName = HeatmapName
	post.EmitPeakScore = true
	post.EmitMeanScore = true
	post.Resize = &postprocess.ResizeConfig{Width: 900, Height: 900, Filter: images.TriangleFilter}

	return model.Config{
		Name:          model.ModelNameGLASS,
		DefaultHeight: 288,
		DefaultWidth:  288,
		Preprocess:    imageNet(288, images.CatmullRomFilter),
		Postprocess:   post,
	}
}

// Dinomaly returns the Dinomaly preset: at least four outputs, global score at 0 and the
// anomaly map at 2.
func Dinomaly() model.Config {
	post := postprocess.DualTensor()
	post.MinOutputs = 4
	post.HeatmapName = HeatmapName

	return model.Config{
		Name:          model.ModelNameDinomaly,
		DefaultHeight: 384,
		DefaultWidth:  384,
		Preprocess:    imageNet(384, images.Lanczos3Filter),
		Postprocess:   post,
	}
}

// UniNet returns the UniNet preset: global score at 0 and a [B,1,H,W] anomaly map at 2.
func UniNet() model.Config {
	post := postprocess.DualTensor()
	post.MinOutputs = 3
	post.HeatmapName = HeatmapName

	return model.Config{
		Name:          model.ModelNameUniNet,
		DefaultHeight: 392,
		DefaultWidth:  392,
		Preprocess:    imageNet(392, images.Lanczos3Filter),
		Postprocess:   post,
	}
}

// Lookup returns the preset for a model name (case-insensitive).
//
// Arguments:
//   - name: The model name, e.g. "glass".
//
// Returns:
//   - model.Config: A fresh copy of the preset.
//   - error: ErrUnknownModel if no preset exists.
func Lookup(name string) (model.Config, error) {
	preset, ok := presets[model.Name(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return model.Config{}, errors.Wrapf(ErrUnknownModel, "%q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return preset(), nil
}

// Names returns the registered model names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
