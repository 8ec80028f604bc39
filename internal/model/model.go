// Package model defines the boundary to the inference engine.
//
// The network itself is an opaque asset. This package only fixes the
// contract of the buffers that cross the boundary: an Executor receives a
// flat float32 input of the configured tensor length and returns a flat
// float32 output of exactly OutputSize values.
//
// Concrete engines live in subpackages (model/tflite, model/onnx) so that
// packages depending on the contract do not link the native runtimes.
package model

import (
	"errors"
	"fmt"
)

// ErrModelLoad is returned when a model asset cannot be opened or an engine
// cannot be constructed from it. It is fatal to pipeline initialization.
var ErrModelLoad = errors.New("model load failure")

// Executor runs a loaded network.
type Executor interface {
	// Infer runs the network on input and returns a fresh output slice of
	// length OutputSize. Implementations may not be safe for concurrent use.
	Infer(input []float32) ([]float32, error)

	// InputSize is the number of float32 values Infer expects.
	InputSize() int

	// OutputSize is the length of the output vector, the class count C.
	OutputSize() int

	// Close releases the engine and its asset.
	Close() error
}

// Func adapts a plain function into an Executor. It is used for stub engines
// and for wrapping engines owned elsewhere.
type Func struct {
	In  int
	Out int
	Fn  func(input []float32) ([]float32, error)
}

// Infer checks the buffer sizes around Fn.
func (f *Func) Infer(input []float32) ([]float32, error) {
	if err := CheckInput(input, f.In); err != nil {
		return nil, err
	}
	out, err := f.Fn(input)
	if err != nil {
		return nil, err
	}
	if len(out) != f.Out {
		return nil, fmt.Errorf("inference returned %d values, want %d", len(out), f.Out)
	}
	return out, nil
}

func (f *Func) InputSize() int  { return f.In }
func (f *Func) OutputSize() int { return f.Out }
func (f *Func) Close() error    { return nil }

// Constant returns an Executor that ignores its input and always returns a
// copy of out.
func Constant(inputSize int, out []float32) *Func {
	return &Func{
		In:  inputSize,
		Out: len(out),
		Fn: func([]float32) ([]float32, error) {
			return append([]float32(nil), out...), nil
		},
	}
}

// CheckInput verifies that input holds exactly want values.
func CheckInput(input []float32, want int) error {
	if len(input) != want {
		return fmt.Errorf("input tensor has %d values, model expects %d", len(input), want)
	}
	return nil
}

// Options configure an engine backend.
type Options struct {
	// Path is the model asset file.
	Path string
	// Threads is the intra-op thread count; <= 0 lets the backend decide.
	Threads int
	// InputShape is the expected input tensor shape, batch first.
	InputShape []int64
	// OutputSize is the expected class count.
	OutputSize int
	// InputName and OutputName select graph tensors for backends that
	// address tensors by name.
	InputName  string
	OutputName string
	// LibraryPath points at a shared runtime library for backends that load
	// one dynamically.
	LibraryPath string
}

// InputSize returns the product of InputShape.
func (o Options) InputSize() int {
	if len(o.InputShape) == 0 {
		return 0
	}
	n := 1
	for _, d := range o.InputShape {
		n *= int(d)
	}
	return n
}
