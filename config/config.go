// Package config - Layered application configuration: defaults, YAML file, environment.
package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-anomaly/images"
	"github.com/nvr-ai/go-anomaly/inference"
	"github.com/nvr-ai/go-anomaly/logger"
	"github.com/nvr-ai/go-anomaly/models"
	"github.com/nvr-ai/go-anomaly/models/model"
	"github.com/nvr-ai/go-anomaly/models/postprocess"
	"github.com/nvr-ai/go-anomaly/store"
)

// EnvPrefix prefixes environment overrides. ANOMALY_MODEL_NAME sets model.name.
const EnvPrefix = "ANOMALY_"

// ModelConfig selects the model preset and its ONNX graph.
type ModelConfig struct {
	Name           string             `koanf:"name"           yaml:"name"`
	Path           string             `koanf:"path"           yaml:"path"`
	SharedLibrary  string             `koanf:"sharedlibrary"  yaml:"sharedlibrary"`
	InputNames     []string           `koanf:"inputnames"     yaml:"inputnames"`
	OutputNames    []string           `koanf:"outputnames"    yaml:"outputnames"`
	IntraOpThreads int                `koanf:"intraopthreads" yaml:"intraopthreads"`
	Provider       inference.Provider `koanf:"provider"       yaml:"provider"`
	Precision      string             `koanf:"precision"      yaml:"precision"`
}

// ONNX returns the engine configuration. Precision must have passed Validate.
func (m ModelConfig) ONNX() inference.ONNXConfig {
	precision, _ := inference.ParsePrecision(m.Precision)
	return inference.ONNXConfig{
		ModelPath:         m.Path,
		SharedLibraryPath: m.SharedLibrary,
		InputNames:        m.InputNames,
		OutputNames:       m.OutputNames,
		IntraOpThreads:    m.IntraOpThreads,
		Provider:          m.Provider,
		Precision:         precision,
	}
}

// PostprocessConfig overrides preset postprocessing fields. Unset fields keep the preset value.
type PostprocessConfig struct {
	EdgeIgnorePixels *int     `koanf:"edgeignorepixels" yaml:"edgeignorepixels,omitempty"`
	ResizeWidth      int      `koanf:"resizewidth"      yaml:"resizewidth,omitempty"`
	ResizeHeight     int      `koanf:"resizeheight"     yaml:"resizeheight,omitempty"`
	ResizeFilter     string   `koanf:"resizefilter"     yaml:"resizefilter,omitempty"`
	DisableResize    bool     `koanf:"disableresize"    yaml:"disableresize,omitempty"`
	EmitPeakScore    *bool    `koanf:"emitpeakscore"    yaml:"emitpeakscore,omitempty"`
	EmitMeanScore    *bool    `koanf:"emitmeanscore"    yaml:"emitmeanscore,omitempty"`
	MaskThreshold    *float32 `koanf:"maskthreshold"    yaml:"maskthreshold,omitempty"`
	Workers          int      `koanf:"workers"          yaml:"workers,omitempty"`
}

// RenderConfig sets the global heatmap style.
type RenderConfig struct {
	// FillAlpha is the overlay alpha; negative leaves the built-in default.
	FillAlpha int `koanf:"fillalpha" yaml:"fillalpha"`
	// Colormap names a colormap preset; "gradient" is the built-in gradient.
	Colormap string `koanf:"colormap" yaml:"colormap"`
	// MaskAlpha is the mask overlay alpha; negative leaves the built-in default.
	MaskAlpha int `koanf:"maskalpha" yaml:"maskalpha"`
}

// StoreConfig enables the results store.
type StoreConfig struct {
	Enabled      bool `koanf:"enabled" yaml:"enabled"`
	store.Config `koanf:",squash" yaml:",inline"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Log         logger.Config     `koanf:"log"         yaml:"log"`
	Model       ModelConfig       `koanf:"model"       yaml:"model"`
	Postprocess PostprocessConfig `koanf:"postprocess" yaml:"postprocess"`
	Render      RenderConfig      `koanf:"render"      yaml:"render"`
	Store       StoreConfig       `koanf:"store"       yaml:"store"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":          "info",
		"model.name":         string(model.ModelNameUniNet),
		"model.provider":     string(inference.ProviderCPU),
		"render.fillalpha":   -1,
		"render.maskalpha":   -1,
		"render.colormap":    "gradient",
		"store.addr":         "localhost:6379",
		"store.ttl":          "24h",
		"store.keyprefix":    store.DefaultKeyPrefix,
	}
}

// Load reads the configuration. path may be empty to skip the file layer.
//
// Layers, later wins:
//  1. built-in defaults
//  2. the YAML file at path
//  3. ANOMALY_ environment variables, "_" separating levels
//
// Returns:
//   - AppConfig: The validated configuration.
//   - error: An error if a layer fails to load or validation fails.
//
// @example
// cfg, err := config.Load("config/config.yaml")
func Load(path string) (AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return AppConfig{}, errors.Wrap(err, "load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return AppConfig{}, errors.Wrapf(err, "load %s", path)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", ".")
		if strings.Contains(value, ",") {
			return key, strings.Split(strings.TrimSpace(value), ",")
		}
		return key, value
	}), nil); err != nil {
		return AppConfig{}, errors.Wrap(err, "load environment")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field rules.
func (c AppConfig) Validate() error {
	if _, err := models.Lookup(c.Model.Name); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := inference.ParsePrecision(c.Model.Precision); err != nil {
		return err
	}
	p := c.Postprocess
	if p.EdgeIgnorePixels != nil && *p.EdgeIgnorePixels < 0 {
		return errors.Errorf("postprocess.edgeignorepixels must not be negative, got %d", *p.EdgeIgnorePixels)
	}
	if (p.ResizeWidth > 0) != (p.ResizeHeight > 0) || p.ResizeWidth < 0 || p.ResizeHeight < 0 {
		return errors.Errorf("postprocess resize needs both sides, got %dx%d", p.ResizeWidth, p.ResizeHeight)
	}
	if p.ResizeFilter != "" {
		if _, err := images.ParseFilter(p.ResizeFilter); err != nil {
			return err
		}
	}
	if c.Render.FillAlpha > 255 || c.Render.MaskAlpha > 255 {
		return errors.Errorf("render alpha must be at most 255, got %d/%d", c.Render.FillAlpha, c.Render.MaskAlpha)
	}
	if c.Store.Enabled && c.Store.Addr == "" {
		return errors.New("store.addr is required when the store is enabled")
	}
	if c.Store.TTL < 0 {
		return errors.Errorf("store.ttl must not be negative, got %s", c.Store.TTL)
	}
	return nil
}

// ModelConfig resolves the preset named by Model.Name with the postprocess overrides applied.
func (c AppConfig) ModelConfig() (model.Config, error) {
	mc, err := models.Lookup(c.Model.Name)
	if err != nil {
		return model.Config{}, err
	}
	mc.Postprocess, err = c.Postprocess.Apply(mc.Postprocess)
	if err != nil {
		return model.Config{}, err
	}
	return mc, mc.Validate()
}

// Apply returns pc with the overrides applied.
func (p PostprocessConfig) Apply(pc postprocess.Config) (postprocess.Config, error) {
	if p.EdgeIgnorePixels != nil {
		pc.EdgeIgnorePixels = *p.EdgeIgnorePixels
	}
	if p.EmitPeakScore != nil {
		pc.EmitPeakScore = *p.EmitPeakScore
	}
	if p.EmitMeanScore != nil {
		pc.EmitMeanScore = *p.EmitMeanScore
	}
	if p.MaskThreshold != nil {
		t := *p.MaskThreshold
		pc.MaskThreshold = &t
	}
	if p.Workers > 0 {
		pc.Workers = p.Workers
	}

	switch {
	case p.DisableResize:
		pc.Resize = nil
	case p.ResizeWidth > 0 || p.ResizeFilter != "":
		r := postprocess.ResizeConfig{Filter: images.TriangleFilter}
		if pc.Resize != nil {
			r = *pc.Resize
		}
		if p.ResizeWidth > 0 {
			r.Width, r.Height = p.ResizeWidth, p.ResizeHeight
		}
		if p.ResizeFilter != "" {
			f, err := images.ParseFilter(p.ResizeFilter)
			if err != nil {
				return pc, err
			}
			r.Filter = f
		}
		pc.Resize = &r
	}
	return pc, pc.Validate()
}
