package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/frame"
	"github.com/ironsheep/shape-classifier/internal/metrics"
)

// Sink receives classification results.
type Sink interface {
	Deliver(ctx context.Context, res Result) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, res Result) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, res Result) error {
	return f(ctx, res)
}

// mailbox is a single-slot buffer. put overwrites an unconsumed frame;
// ready carries at most one pending wake-up.
type mailbox struct {
	mu     sync.Mutex
	frame  *frame.Raw
	closed bool
	ready  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// put stores f and reports whether an unconsumed frame was replaced.
// Frames put after close are discarded.
func (m *mailbox) put(f *frame.Raw) (replaced, accepted bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, false
	}
	replaced = m.frame != nil
	m.frame = f
	m.mu.Unlock()

	m.signal()
	return replaced, true
}

// take removes the pending frame. done is true once the mailbox is closed
// and empty.
func (m *mailbox) take() (f *frame.Raw, done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, m.frame = m.frame, nil
	return f, f == nil && m.closed
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Stats are the worker's lifetime counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Malformed uint64 `json:"malformed"`
	Failed    uint64 `json:"failed"`
}

// Worker classifies frames from its mailbox one at a time.
type Worker struct {
	classifier *Classifier
	sink       Sink
	box        *mailbox
	metrics    *metrics.Metrics
	logger     *zap.Logger

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
	failed    atomic.Uint64
}

// NewWorker returns a worker delivering results from c to sink.
func NewWorker(c *Classifier, sink Sink, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		classifier: c,
		sink:       sink,
		box:        newMailbox(),
		metrics:    c.metrics,
		logger:     logger,
	}
}

// Submit hands f to the worker without blocking. A frame still waiting in
// the mailbox is dropped in favour of f.
func (w *Worker) Submit(f *frame.Raw) {
	replaced, accepted := w.box.put(f)
	if !accepted {
		return
	}
	w.received.Add(1)
	w.metrics.FrameReceived()
	if replaced {
		w.dropped.Add(1)
		w.metrics.FrameDropped()
	}
}

// Close stops accepting frames. Run processes a frame that is still
// pending and then returns.
func (w *Worker) Close() {
	w.box.close()
}

// Run processes frames until ctx is cancelled or the worker is closed and
// drained. It returns nil in both cases.
func (w *Worker) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		f, done := w.box.take()
		if done {
			return nil
		}
		if f != nil {
			w.handle(ctx, f)
			continue
		}

		select {
		case <-ctx.Done():
		case <-w.box.ready:
		}
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, f *frame.Raw) {
	res, err := w.classifier.Process(f)
	if err != nil {
		if errors.Is(err, frame.ErrMalformedFrame) {
			w.malformed.Add(1)
			w.logger.Debug("skipping malformed frame", zap.Uint64("seq", f.Seq), zap.Error(err))
			return
		}
		w.failed.Add(1)
		w.logger.Error("frame classification failed", zap.Uint64("seq", f.Seq), zap.Error(err))
		return
	}
	w.processed.Add(1)

	if w.sink == nil {
		return
	}
	if err := w.sink.Deliver(ctx, res); err != nil {
		w.logger.Warn("result delivery failed", zap.Uint64("seq", res.Seq), zap.Error(err))
	}
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Received:  w.received.Load(),
		Processed: w.processed.Load(),
		Dropped:   w.dropped.Load(),
		Malformed: w.malformed.Load(),
		Failed:    w.failed.Load(),
	}
}
