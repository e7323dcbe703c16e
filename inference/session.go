// Package inference - ONNX Runtime backed engine.
package inference

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Provider names an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA runs on NVIDIA GPUs.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML runs on Apple CoreML.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO runs on Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// ONNXConfig configures an ONNXEngine.
type ONNXConfig struct {
	// ModelPath is the path of the .onnx file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// SharedLibraryPath overrides the onnxruntime shared library location.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// InputNames are the graph inputs. Empty means "read them from the model".
	InputNames []string `json:"input_names" yaml:"input_names"`
	// OutputNames are the graph outputs in the order postprocessing expects them.
	// Empty means "read them from the model".
	OutputNames []string `json:"output_names" yaml:"output_names"`
	// IntraOpThreads sets the intra-op thread count (0 = runtime default).
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// Provider selects the execution provider.
	Provider Provider `json:"provider" yaml:"provider"`
	// Precision is the OpenVINO precision hint. Ignored by other providers.
	Precision Precision `json:"precision,omitempty" yaml:"precision,omitempty"`
}

// ONNXEngine implements Engine over an onnxruntime dynamic session.
type ONNXEngine struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
	dims    InputDims
}

// ErrEngineClosed is returned by Run after Close.
var ErrEngineClosed = errors.New("engine is closed")

var envOnce sync.Once
var envErr error

// NewONNXEngine loads a model and creates an inference session for it.
//
// Order of operations:
//  1. Library path check and environment initialization (once per process).
//  2. Model introspection: input/output names and the declared input dimensions.
//  3. Session options and execution provider.
//  4. Session creation.
//
// Arguments:
//   - cfg: The engine configuration.
//
// Returns:
//   - *ONNXEngine: The engine. Callers must Close it.
//   - error: An error if the runtime, model or session cannot be initialized.
func NewONNXEngine(cfg ONNXConfig) (*ONNXEngine, error) {
	if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model info from %s", cfg.ModelPath)
	}
	if len(inputInfo) == 0 {
		return nil, errors.Errorf("model %s declares no inputs", cfg.ModelPath)
	}

	inputs := cfg.InputNames
	if len(inputs) == 0 {
		for _, info := range inputInfo {
			inputs = append(inputs, info.Name)
		}
	}
	outputs := cfg.OutputNames
	if len(outputs) == 0 {
		for _, info := range outputInfo {
			outputs = append(outputs, info.Name)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating ORT session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return nil, errors.Wrap(err, "setting intra-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "setting graph optimization level")
	}
	if err := appendProvider(options, cfg.Provider, cfg.Precision); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputs, outputs, options)
	if err != nil {
		return nil, errors.Wrap(err, "creating ORT session")
	}

	return &ONNXEngine{
		session: session,
		inputs:  inputs,
		outputs: outputs,
		dims:    dimsFromShape(inputInfo[0].Dimensions),
	}, nil
}

// Run executes one forward call. Inputs bind to the configured input names by position and
// outputs are returned in configured output order.
func (e *ONNXEngine) Run(ctx context.Context, inputs []*Tensor) ([]*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.closed() {
		return nil, ErrEngineClosed
	}
	if len(inputs) != len(e.inputs) {
		return nil, errors.Errorf("engine expects %d inputs, got %d", len(e.inputs), len(inputs))
	}

	in := make([]ort.Value, len(inputs))
	for i, t := range inputs {
		shape := make([]int64, t.Rank())
		for j, d := range t.Shape() {
			shape[j] = int64(d)
		}
		v, err := ort.NewTensor(ort.NewShape(shape...), t.Float32s())
		if err != nil {
			destroyValues(in)
			return nil, errors.Wrapf(err, "binding input %s", e.inputs[i])
		}
		in[i] = v
	}
	defer destroyValues(in)

	out := make([]ort.Value, len(e.outputs))

	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	err := e.session.Run(in, out)
	e.mu.Unlock()
	defer destroyValues(out)
	if err != nil {
		return nil, errors.Wrap(err, "running ORT session")
	}

	result := make([]*Tensor, len(out))
	for i, v := range out {
		ft, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Errorf("output %s is %T, want float32 tensor", e.outputs[i], v)
		}
		shape := ft.GetShape()
		dims := make([]int, len(shape))
		for j, d := range shape {
			dims[j] = int(d)
		}
		t, err := outputTensor(e.outputs[i], dims, ft.GetData())
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// InputDims returns the declared dimensions of the first model input.
func (e *ONNXEngine) InputDims() InputDims {
	return e.dims
}

func (e *ONNXEngine) closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session == nil
}

// Close releases the native session.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// dimsFromShape reads an NCHW input shape. Dynamic axes (<= 0) are left undeclared.
func dimsFromShape(shape ort.Shape) InputDims {
	at := func(i int) *Dim {
		if i >= len(shape) || shape[i] <= 0 {
			return nil
		}
		return Fixed(int(shape[i]))
	}
	if len(shape) != 4 {
		return InputDims{}
	}
	return InputDims{Batch: at(0), Height: at(2), Width: at(3)}
}

func appendProvider(options *ort.SessionOptions, provider Provider, precision Precision) error {
	switch provider {
	case "", ProviderCPU:
		return nil
	case ProviderCoreML:
		return errors.Wrap(options.AppendExecutionProviderCoreML(0), "enabling CoreML")
	case ProviderOpenVINO:
		return errors.Wrap(options.AppendExecutionProviderOpenVINO(openVINOOptions(precision)), "enabling OpenVINO")
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "creating CUDA options")
		}
		defer cuda.Destroy()
		return errors.Wrap(options.AppendExecutionProviderCUDA(cuda), "enabling CUDA")
	default:
		return errors.Errorf("unsupported execution provider %q", provider)
	}
}

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath == "" {
			libPath = SharedLibPath()
		}
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		envErr = errors.Wrap(ort.InitializeEnvironment(), "initializing ORT environment")
	})
	return envErr
}

// SharedLibPath returns the default onnxruntime shared library path for the current platform.
func SharedLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

// outputTensor copies a runtime-owned output buffer into a dense tensor of the given shape.
func outputTensor(name string, dims []int, data []float32) (*Tensor, error) {
	size := 1
	for _, d := range dims {
		size *= d
	}
	if size != len(data) {
		return nil, errors.Wrapf(ErrShapeMismatch, "output %s shape %v holds %d values", name, dims, len(data))
	}
	if size == 0 {
		return NewTensor(name, dims, nil)
	}
	dense := tensor.New(tensor.WithShape(dims...), tensor.WithBacking(append([]float32(nil), data...)))
	return FromDense(name, dense)
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}

// String implements fmt.Stringer.
func (e *ONNXEngine) String() string {
	return fmt.Sprintf("ONNXEngine(inputs=%v outputs=%v)", e.inputs, e.outputs)
}
