// Package model - Static per-model configuration.
package model

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-anomaly/models/model/preprocess"
	"github.com/nvr-ai/go-anomaly/models/postprocess"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameGLASS is the name of the GLASS model.
	ModelNameGLASS Name = "glass"
	// ModelNameDinomaly is the name of the Dinomaly model.
	ModelNameDinomaly Name = "dinomaly"
	// ModelNameUniNet is the name of the UniNet model.
	ModelNameUniNet Name = "uninet"
)

// Config is the read-only configuration of one anomaly model family.
type Config struct {
	// Name identifies the model.
	Name Name `json:"name" yaml:"name"`
	// DefaultHeight is the input height used when the engine does not declare one.
	DefaultHeight int `json:"default_height" yaml:"default_height"`
	// DefaultWidth is the input width used when the engine does not declare one.
	DefaultWidth int `json:"default_width" yaml:"default_width"`
	// Preprocess configures the input tensor. Its size is replaced by the resolved input size.
	Preprocess preprocess.Config `json:"preprocess" yaml:"preprocess"`
	// Postprocess configures the output convention.
	Postprocess postprocess.Config `json:"postprocess" yaml:"postprocess"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("model name is empty")
	}
	if c.DefaultHeight <= 0 || c.DefaultWidth <= 0 {
		return errors.Errorf("model %s: invalid default input size %dx%d", c.Name, c.DefaultWidth, c.DefaultHeight)
	}
	if err := c.Postprocess.Validate(); err != nil {
		return errors.Wrapf(err, "model %s", c.Name)
	}
	return nil
}

// String implements fmt.Stringer.
func (c Config) String() string {
	return fmt.Sprintf("model.Config(%s %dx%d %s)", c.Name, c.DefaultWidth, c.DefaultHeight, c.Postprocess)
}
