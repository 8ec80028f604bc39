package pipeline

import (
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/frame"
	"github.com/ironsheep/shape-classifier/internal/metrics"
	"github.com/ironsheep/shape-classifier/internal/model"
	"github.com/ironsheep/shape-classifier/internal/scores"
	"github.com/ironsheep/shape-classifier/internal/tensor"
)

// ErrInputSizeMismatch is returned by New when the executor expects a
// different number of input values than the tensor spec packs.
var ErrInputSizeMismatch = errors.New("input size mismatch")

// Result is the outcome of classifying one frame.
type Result struct {
	Seq       uint64         `json:"seq"`
	Label     string         `json:"label"`
	Index     int            `json:"index"`
	Score     float32        `json:"score"`
	Ranking   []scores.Score `json:"ranking,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Latency   time.Duration  `json:"latency_ns"`
}

// Options configure a Classifier.
type Options struct {
	Mode   frame.ColorMode
	Spec   tensor.Spec
	Labels []string

	// TopN > 0 attaches the TopN best scores to every Result.
	TopN int

	// SnapshotDir, when set, receives every SnapshotEvery-th packed image
	// as PNG.
	SnapshotDir   string
	SnapshotEvery int

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Classifier turns frames and images into labels.
type Classifier struct {
	mode    frame.ColorMode
	packer  *tensor.Packer
	exec    model.Executor
	labels  []string
	topN    int
	snap    *snapshotter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New builds a Classifier around exec. The executor is borrowed: closing
// it remains the caller's job.
func New(exec model.Executor, opts Options) (*Classifier, error) {
	packer, err := tensor.NewPacker(opts.Spec)
	if err != nil {
		return nil, err
	}
	if err := scores.CheckCount(exec.OutputSize(), opts.Labels); err != nil {
		return nil, err
	}
	if exec.InputSize() != opts.Spec.Len() {
		return nil, fmt.Errorf("%w: model expects %d values, pipeline packs %d (shape %v)",
			ErrInputSizeMismatch, exec.InputSize(), opts.Spec.Len(), opts.Spec.Shape())
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Classifier{
		mode:    opts.Mode,
		packer:  packer,
		exec:    exec,
		labels:  append([]string(nil), opts.Labels...),
		topN:    opts.TopN,
		metrics: opts.Metrics,
		logger:  logger,
	}
	if opts.SnapshotDir != "" {
		c.snap, err = newSnapshotter(opts.SnapshotDir, opts.SnapshotEvery, logger)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Labels returns a copy of the label table.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Spec returns the tensor spec frames are packed with.
func (c *Classifier) Spec() tensor.Spec {
	return c.packer.Spec()
}

// Mode returns the colour mode frames are decoded with.
func (c *Classifier) Mode() frame.ColorMode {
	return c.mode
}

// Tensor decodes raw and packs it without running the model.
func (c *Classifier) Tensor(raw *frame.Raw) (tensor.Tensor, error) {
	img, err := frame.Decode(raw, c.mode)
	if err != nil {
		return nil, err
	}
	return c.packer.Pack(img), nil
}

// Process classifies one camera frame. Errors wrapping
// frame.ErrMalformedFrame mean the frame was skipped.
func (c *Classifier) Process(raw *frame.Raw) (Result, error) {
	start := time.Now()

	img, err := frame.Decode(raw, c.mode)
	if err != nil {
		if errors.Is(err, frame.ErrMalformedFrame) {
			c.metrics.FrameMalformed()
		}
		return Result{}, err
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = start
	}
	return c.classify(img, raw.Seq, ts, start)
}

// ClassifyImage classifies an already decoded image. Any size is accepted;
// the image is resized like a decoded frame.
func (c *Classifier) ClassifyImage(img image.Image) (Result, error) {
	start := time.Now()
	return c.classify(img, 0, start, start)
}

// Scores packs img and returns the raw model output.
func (c *Classifier) Scores(img image.Image) ([]float32, error) {
	out, err := c.exec.Infer(c.packer.Pack(img))
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return out, nil
}

// Rank classifies img and returns its n best scores.
func (c *Classifier) Rank(img image.Image, n int) ([]scores.Score, error) {
	out, err := c.Scores(img)
	if err != nil {
		return nil, err
	}
	return scores.Rank(out, c.labels, n)
}

func (c *Classifier) classify(img image.Image, seq uint64, ts, start time.Time) (Result, error) {
	resized := c.packer.Resize(img)
	input := c.packer.PackResized(resized)
	c.snap.offer(resized, seq)

	inferStart := time.Now()
	out, err := c.exec.Infer(input)
	inferTime := time.Since(inferStart)
	if err != nil {
		c.metrics.FrameFailed("infer")
		return Result{}, fmt.Errorf("inference failed: %w", err)
	}

	top, err := scores.Top(out, c.labels)
	if err != nil {
		c.metrics.FrameFailed("score")
		return Result{}, err
	}

	res := Result{
		Seq:       seq,
		Label:     top.Label,
		Index:     top.Index,
		Score:     top.Value,
		Timestamp: ts,
	}
	if c.topN > 0 {
		res.Ranking, _ = scores.Rank(out, c.labels, c.topN)
	}
	res.Latency = time.Since(start)

	c.metrics.RecordClassification(res.Label, inferTime.Seconds(), res.Latency.Seconds())
	return res, nil
}

// Info describes the configured pipeline.
type Info struct {
	ColorMode      string   `json:"color_mode"`
	Side           int      `json:"side"`
	Channels       int      `json:"channels"`
	Normalization  string   `json:"normalization"`
	Interpolation  string   `json:"interpolation"`
	Layout         string   `json:"layout"`
	PreserveAspect bool     `json:"preserve_aspect"`
	InputShape     []int64  `json:"input_shape"`
	InputSize      int      `json:"input_size"`
	OutputSize     int      `json:"output_size"`
	Labels         []string `json:"labels"`
}

// Info reports the pipeline configuration.
func (c *Classifier) Info() Info {
	spec := c.packer.Spec()
	return Info{
		ColorMode:      c.mode.String(),
		Side:           spec.Side,
		Channels:       spec.Channels,
		Normalization:  spec.Normalization.String(),
		Interpolation:  spec.Interpolation.String(),
		Layout:         spec.Layout.String(),
		PreserveAspect: spec.PreserveAspect,
		InputShape:     spec.Shape(),
		InputSize:      c.exec.InputSize(),
		OutputSize:     c.exec.OutputSize(),
		Labels:         c.Labels(),
	}
}
