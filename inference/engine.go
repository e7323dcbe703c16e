// Package inference - Inference engine interface and declared input dimensions.
package inference

import (
	"context"
	"fmt"
)

// Engine defines the contract of an external inference engine.
//
// Run accepts a batch of input tensors and returns the output tensors of one forward call
// in graph output order. Implementations are opaque to postprocessing: any failure they
// return is propagated unchanged by callers.
type Engine interface {
	Run(ctx context.Context, inputs []*Tensor) ([]*Tensor, error)
	InputDims() InputDims
	Close() error
}

// Dim is an optional bounded range for one input axis.
type Dim struct {
	// Min is the smallest accepted size.
	Min int `json:"min" yaml:"min"`
	// Opt is the preferred size.
	Opt int `json:"opt" yaml:"opt"`
	// Max is the largest accepted size.
	Max int `json:"max" yaml:"max"`
}

// Fixed returns a Dim where min, opt and max all equal n.
func Fixed(n int) *Dim {
	return &Dim{Min: n, Opt: n, Max: n}
}

// String implements fmt.Stringer.
func (d Dim) String() string {
	if d.Min == d.Max {
		return fmt.Sprintf("%d", d.Opt)
	}
	return fmt.Sprintf("%d..%d..%d", d.Min, d.Opt, d.Max)
}

// InputDims holds the declared input batch, height and width of an engine. A nil axis
// means the engine did not declare it (for example a dynamic ONNX axis).
type InputDims struct {
	Batch  *Dim `json:"batch,omitempty"  yaml:"batch,omitempty"`
	Height *Dim `json:"height,omitempty" yaml:"height,omitempty"`
	Width  *Dim `json:"width,omitempty"  yaml:"width,omitempty"`
}

// BatchOr returns the preferred batch size or def when the axis is not declared.
func (d InputDims) BatchOr(def int) int {
	return optOr(d.Batch, def)
}

// HeightOr returns the preferred input height or def when the axis is not declared.
func (d InputDims) HeightOr(def int) int {
	return optOr(d.Height, def)
}

// WidthOr returns the preferred input width or def when the axis is not declared.
func (d InputDims) WidthOr(def int) int {
	return optOr(d.Width, def)
}

func optOr(d *Dim, def int) int {
	if d == nil || d.Opt <= 0 {
		return def
	}
	return d.Opt
}
