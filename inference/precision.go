package inference

import (
	"strings"

	"github.com/pkg/errors"
)

// Precision is the OpenVINO inference precision hint.
//
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type Precision string

const (
	// PrecisionAccuracy keeps the model's own input precision (OpenVINO default).
	PrecisionAccuracy Precision = "ACCURACY"
	// PrecisionFP32 runs in 32-bit floating point.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 runs in 16-bit floating point.
	PrecisionFP16 Precision = "FP16"
)

// ParsePrecision parses a precision name case-insensitively. An empty name is "unset".
func ParsePrecision(name string) (Precision, error) {
	p := Precision(strings.ToUpper(strings.TrimSpace(name)))
	switch p {
	case "", PrecisionAccuracy, PrecisionFP32, PrecisionFP16:
		return p, nil
	default:
		return "", errors.Errorf("unsupported precision %q", name)
	}
}

// openVINOOptions returns the OpenVINO provider options for a precision hint.
func openVINOOptions(p Precision) map[string]string {
	opts := map[string]string{"device_type": "CPU"}
	if p != "" {
		opts["precision"] = string(p)
	}
	return opts
}
