// Package tflite runs flatbuffer models with the TensorFlow Lite C runtime.
//
// The model asset is memory-mapped and handed to the interpreter without
// copying; the mapping stays alive until Close. Input and output tensors are
// checked against the configured shapes once at load so that a mismatched
// asset fails at startup rather than on the first frame.
package tflite

import (
	"fmt"
	"runtime"
	"sync"

	tflite "github.com/tphakala/go-tflite"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/model"
)

// Executor is a TFLite interpreter bound to one model asset.
type Executor struct {
	mu          sync.Mutex
	asset       *model.Asset
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputSize   int
	outputSize  int
}

// New loads the model at opts.Path and allocates its tensors. Every failure
// wraps model.ErrModelLoad.
func New(opts model.Options, logger *zap.Logger) (*Executor, error) {
	asset, err := model.OpenAsset(opts.Path)
	if err != nil {
		return nil, err
	}

	e, err := newFromAsset(asset, opts, logger)
	if err != nil {
		asset.Close()
		return nil, err
	}
	return e, nil
}

func newFromAsset(asset *model.Asset, opts model.Options, logger *zap.Logger) (*Executor, error) {
	m := tflite.NewModel(asset.Bytes())
	if m == nil {
		return nil, fmt.Errorf("%w: cannot load tflite model from %s", model.ErrModelLoad, asset.Path())
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Warn("tflite", zap.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(m, options)
	if interpreter == nil {
		options.Delete()
		m.Delete()
		return nil, fmt.Errorf("%w: cannot create tflite interpreter", model.ErrModelLoad)
	}

	e := &Executor{
		asset:       asset,
		model:       m,
		options:     options,
		interpreter: interpreter,
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		e.release()
		return nil, fmt.Errorf("%w: tensor allocation failed", model.ErrModelLoad)
	}

	if err := e.checkTensors(opts); err != nil {
		e.release()
		return nil, err
	}

	logger.Info("tflite model loaded",
		zap.String("path", asset.Path()),
		zap.Int("bytes", asset.Size()),
		zap.Int("threads", threads),
		zap.Int("input_size", e.inputSize),
		zap.Int("output_size", e.outputSize))

	return e, nil
}

// checkTensors records the tensor sizes and compares them with opts.
func (e *Executor) checkTensors(opts model.Options) error {
	input := e.interpreter.GetInputTensor(0)
	if input == nil {
		return fmt.Errorf("%w: model has no input tensor", model.ErrModelLoad)
	}
	if input.Type() != tflite.Float32 {
		return fmt.Errorf("%w: input tensor type %v, want float32", model.ErrModelLoad, input.Type())
	}
	e.inputSize = len(input.Float32s())

	output := e.interpreter.GetOutputTensor(0)
	if output == nil {
		return fmt.Errorf("%w: model has no output tensor", model.ErrModelLoad)
	}
	if output.Type() != tflite.Float32 {
		return fmt.Errorf("%w: output tensor type %v, want float32", model.ErrModelLoad, output.Type())
	}
	size, err := scoreCount(output.NumDims(), output.Dim)
	if err != nil {
		return err
	}
	e.outputSize = size

	if want := opts.InputSize(); want > 0 && want != e.inputSize {
		return fmt.Errorf("%w: model input holds %d values, configured shape %v holds %d",
			model.ErrModelLoad, e.inputSize, opts.InputShape, want)
	}
	if opts.OutputSize > 0 && opts.OutputSize != e.outputSize {
		return fmt.Errorf("%w: model emits %d scores, configured for %d",
			model.ErrModelLoad, e.outputSize, opts.OutputSize)
	}
	return nil
}

// scoreCount returns the innermost dimension of an output tensor with
// numDims dimensions. Scalar outputs carry no label axis.
func scoreCount(numDims int, dim func(int) int) (int, error) {
	if numDims == 0 {
		return 0, fmt.Errorf("%w: output tensor is a scalar, want one score per label", model.ErrModelLoad)
	}
	return dim(numDims - 1), nil
}

// Infer copies input into the interpreter, invokes it and copies the scores
// out.
func (e *Executor) Infer(input []float32) ([]float32, error) {
	if err := model.CheckInput(input, e.inputSize); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter == nil {
		return nil, fmt.Errorf("tflite executor is closed")
	}

	copy(e.interpreter.GetInputTensor(0).Float32s(), input)

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: status %v", status)
	}

	out := make([]float32, e.outputSize)
	copy(out, e.interpreter.GetOutputTensor(0).Float32s())
	return out, nil
}

func (e *Executor) InputSize() int  { return e.inputSize }
func (e *Executor) OutputSize() int { return e.outputSize }

// Close deletes the interpreter and unmaps the asset.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.release()
}

func (e *Executor) release() error {
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	var err error
	if e.asset != nil {
		err = multierr.Append(err, e.asset.Close())
		e.asset = nil
	}
	return err
}
