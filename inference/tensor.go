// Package inference - Tensors exchanged with inference engines.
package inference

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrShapeMismatch is returned when a tensor backing does not hold exactly the number of
// elements its shape declares.
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Tensor is a named, row-major float32 array produced or consumed by an Engine.
//
// The shape held by Tensor is authoritative, so singleton axes are never collapsed.
type Tensor struct {
	// Name is the graph input/output name the tensor is bound to (may be empty).
	Name  string
	shape []int
	data  []float32
}

// NewTensor creates a tensor over data with the given shape.
//
// Arguments:
//   - name: The tensor name.
//   - shape: The dimensions of the tensor, outermost first.
//   - data: The row-major backing data. It is not copied.
//
// Returns:
//   - *Tensor: The tensor.
//   - error: ErrShapeMismatch if len(data) does not equal the product of shape.
//
// @example
// t, err := NewTensor("anomaly_map", []int{1, 1, 4, 4}, make([]float32, 16))
func NewTensor(name string, shape []int, data []float32) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.Wrapf(ErrShapeMismatch, "tensor %q has no dimensions", name)
	}

	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "tensor %q has negative dimension in %v", name, shape)
		}
		size *= d
	}
	if size != len(data) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"tensor %q shape %v needs %d elements, got %d", name, shape, size, len(data))
	}

	return &Tensor{Name: name, shape: append([]int(nil), shape...), data: data}, nil
}

// MustTensor is like NewTensor but panics on error. Intended for fixtures.
func MustTensor(name string, shape []int, data []float32) *Tensor {
	t, err := NewTensor(name, shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// FromDense wraps a gorgonia dense float32 tensor.
//
// Arguments:
//   - name: The tensor name.
//   - d: The dense tensor. Its backing must be []float32.
//
// Returns:
//   - *Tensor: The tensor sharing d's backing.
//   - error: An error if the dense tensor does not hold float32 data.
func FromDense(name string, d *tensor.Dense) (*Tensor, error) {
	if d == nil {
		return nil, errors.Errorf("tensor %q: nil dense", name)
	}
	var data []float32
	switch v := d.Data().(type) {
	case []float32:
		data = v
	case float32:
		// Single element dense tensors report a scalar.
		data = []float32{v}
	default:
		return nil, errors.Errorf("tensor %q: unsupported dtype %v", name, d.Dtype())
	}
	return NewTensor(name, d.Shape().Clone(), data)
}

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Len returns the size of the leading (batch) axis.
func (t *Tensor) Len() int {
	return t.shape[0]
}

// Float32s returns the row-major backing data. Callers must treat it as read-only.
func (t *Tensor) Float32s() []float32 {
	return t.data
}

// Dense returns a gorgonia view of the tensor sharing the same backing data.
func (t *Tensor) Dense() *tensor.Dense {
	return tensor.New(tensor.WithShape(t.shape...), tensor.WithBacking(t.data))
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	return fmt.Sprintf("Tensor(%s %v)", t.Name, t.shape)
}
