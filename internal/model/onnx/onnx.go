// Package onnx runs ONNX models through onnxruntime.
//
// The runtime environment is process-wide: it is initialized by the first
// executor and destroyed when the last one closes. Input and output tensors
// are allocated once and reused for every inference.
package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/model"
)

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// Executor is an onnxruntime session with pre-allocated tensors.
type Executor struct {
	mu           sync.Mutex
	asset        *model.Asset
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputSize    int
	outputSize   int
}

// New creates a session for the model at opts.Path. opts.InputShape and
// opts.OutputSize are required because ONNX sessions bind fixed-size
// tensors. Every failure wraps model.ErrModelLoad.
func New(opts model.Options, logger *zap.Logger) (*Executor, error) {
	if len(opts.InputShape) == 0 || opts.OutputSize <= 0 {
		return nil, fmt.Errorf("%w: onnx backend needs an input shape and output size", model.ErrModelLoad)
	}

	inputName, outputName := opts.InputName, opts.OutputName
	if inputName == "" {
		inputName = "input"
	}
	if outputName == "" {
		outputName = "output"
	}

	if err := acquireEnvironment(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelLoad, err)
	}

	e := &Executor{
		inputSize:  opts.InputSize(),
		outputSize: opts.OutputSize,
	}

	if err := e.open(opts, inputName, outputName); err != nil {
		err = multierr.Append(err, e.release())
		return nil, fmt.Errorf("%w: %v", model.ErrModelLoad, err)
	}

	logger.Info("onnx model loaded",
		zap.String("path", opts.Path),
		zap.Int64s("input_shape", opts.InputShape),
		zap.Int("output_size", opts.OutputSize),
		zap.String("input_name", inputName),
		zap.String("output_name", outputName))

	return e, nil
}

func (e *Executor) open(opts model.Options, inputName, outputName string) error {
	asset, err := model.OpenAsset(opts.Path)
	if err != nil {
		return err
	}
	e.asset = asset

	e.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(opts.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	e.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.OutputSize)))
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	var sessionOpts *ort.SessionOptions
	if opts.Threads > 0 {
		sessionOpts, err = ort.NewSessionOptions()
		if err != nil {
			return fmt.Errorf("failed to create session options: %w", err)
		}
		defer sessionOpts.Destroy()
		if err := sessionOpts.SetIntraOpNumThreads(opts.Threads); err != nil {
			return fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	e.session, err = ort.NewAdvancedSessionWithONNXData(asset.Bytes(),
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{e.inputTensor}, []ort.ArbitraryTensor{e.outputTensor},
		sessionOpts)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return nil
}

// Infer copies input into the bound input tensor, runs the session and
// returns a copy of the output tensor.
func (e *Executor) Infer(input []float32) ([]float32, error) {
	if err := model.CheckInput(input, e.inputSize); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, fmt.Errorf("onnx executor is closed")
	}

	copy(e.inputTensor.GetData(), input)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, e.outputSize)
	copy(out, e.outputTensor.GetData())
	return out, nil
}

func (e *Executor) InputSize() int  { return e.inputSize }
func (e *Executor) OutputSize() int { return e.outputSize }

// Close destroys the session and tensors and releases the runtime
// environment reference.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil && e.inputTensor == nil && e.asset == nil {
		return nil
	}
	return e.release()
}

func (e *Executor) release() error {
	var err error
	if e.session != nil {
		err = multierr.Append(err, e.session.Destroy())
		e.session = nil
	}
	if e.inputTensor != nil {
		err = multierr.Append(err, e.inputTensor.Destroy())
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		err = multierr.Append(err, e.outputTensor.Destroy())
		e.outputTensor = nil
	}
	if e.asset != nil {
		err = multierr.Append(err, e.asset.Close())
		e.asset = nil
	}
	return multierr.Append(err, releaseEnvironment())
}
