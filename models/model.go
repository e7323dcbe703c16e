// Package models - End-to-end anomaly model: preprocess, inference, postprocess.
package models

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-anomaly/inference"
	"github.com/nvr-ai/go-anomaly/models/model"
	"github.com/nvr-ai/go-anomaly/models/model/preprocess"
	"github.com/nvr-ai/go-anomaly/models/postprocess"
	"github.com/nvr-ai/go-anomaly/profiler"
	"github.com/nvr-ai/go-anomaly/results"
)

// Stage names recorded into profiler.Timings by Forward.
const (
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
)

// Model runs one anomaly model family over batches of images.
type Model struct {
	cfg    model.Config
	engine inference.Engine
	pre    *preprocess.Preprocessor
	post   *postprocess.Strategy
	batch  int
	logger *zap.Logger
}

// New builds a model around an engine. The input size is taken from the engine's declared
// input dimensions, falling back to the configuration defaults for undeclared axes.
//
// Arguments:
//   - cfg: The model configuration, usually from Lookup.
//   - engine: The inference engine. The model takes ownership and closes it in Close.
//   - logger: The logger (nil disables logging).
//
// Returns:
//   - *Model: The model.
//   - error: An error if the configuration is invalid.
//
// @example
// cfg, _ := models.Lookup("dinomaly")
// m, err := models.New(cfg, engine, logger)
func New(cfg model.Config, engine inference.Engine, logger *zap.Logger) (*Model, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dims := engine.InputDims()
	height := dims.HeightOr(cfg.DefaultHeight)
	width := dims.WidthOr(cfg.DefaultWidth)

	pre, err := preprocess.NewPreprocessor(cfg.Preprocess.WithSize(width, height))
	if err != nil {
		return nil, errors.Wrapf(err, "model %s preprocess", cfg.Name)
	}
	post, err := postprocess.New(cfg.Postprocess)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:    cfg,
		engine: engine,
		pre:    pre,
		post:   post,
		batch:  dims.BatchOr(1),
		logger: logger.With(zap.String("model", string(cfg.Name))),
	}
	m.logger.Info("model ready",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("batch", m.batch),
		zap.Int("required_outputs", cfg.Postprocess.RequiredOutputs()),
	)
	return m, nil
}

// Forward runs preprocess, inference and postprocess for a batch of images.
//
// The call is all-or-nothing: on error no results are returned. Engine errors are returned
// unchanged.
//
// Arguments:
//   - ctx: The context for the engine call.
//   - imgs: The input images.
//   - timings: Optional stage timing collector (nil records nothing).
//
// Returns:
//   - []results.Result: One result per input image, in input order.
//   - error: The first error encountered.
func (m *Model) Forward(ctx context.Context, imgs []image.Image, timings *profiler.Timings) ([]results.Result, error) {
	done := timings.Track(StagePreprocess)
	input, err := m.pre.ProcessImages(imgs)
	done()
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", m.cfg.Name)
	}

	done = timings.Track(StageInference)
	outputs, err := m.engine.Run(ctx, []*inference.Tensor{input})
	done()
	if err != nil {
		return nil, err
	}
	if ce := m.logger.Check(zap.DebugLevel, "engine outputs"); ce != nil {
		shapes := make([]string, len(outputs))
		for i, o := range outputs {
			shapes[i] = o.String()
		}
		ce.Write(zap.Strings("outputs", shapes))
	}

	done = timings.Track(StagePostprocess)
	res, err := m.post.Postprocess(outputs)
	done()
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", m.cfg.Name)
	}
	if len(res) != len(imgs) {
		return nil, errors.Wrapf(postprocess.ErrShapeMismatch,
			"model %s: %d results for %d images", m.cfg.Name, len(res), len(imgs))
	}

	m.logger.Debug("forward complete", zap.Int("images", len(imgs)))
	return res, nil
}

// Config returns the model configuration.
func (m *Model) Config() model.Config { return m.cfg }

// Name returns the model name.
func (m *Model) Name() model.Name { return m.cfg.Name }

// InputSize returns the resolved input width and height.
func (m *Model) InputSize() (int, int) {
	c := m.pre.Config()
	return c.Width, c.Height
}

// BatchSize returns the engine's preferred batch size.
func (m *Model) BatchSize() int { return m.batch }

// Close releases the engine.
func (m *Model) Close() error {
	return m.engine.Close()
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	w, h := m.InputSize()
	return fmt.Sprintf("Model(%s %dx%d batch=%d)", m.cfg.Name, w, h, m.batch)
}
