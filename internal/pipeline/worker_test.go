package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ironsheep/shape-classifier/internal/frame"
	"github.com/ironsheep/shape-classifier/internal/model"
	"github.com/ironsheep/shape-classifier/internal/scores"
	"github.com/ironsheep/shape-classifier/internal/tensor"
)

var smallSpec = tensor.Spec{
	Side:          8,
	Channels:      1,
	Normalization: tensor.SignedUnit,
	Interpolation: tensor.Nearest,
	Layout:        tensor.HWC,
}

// collector is a Sink recording every result.
type collector struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (c *collector) Deliver(_ context.Context, res Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
	return c.err
}

func (c *collector) seqs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.results))
	for i, r := range c.results {
		out[i] = r.Seq
	}
	return out
}

func newSmallClassifier(t *testing.T, exec model.Executor) *Classifier {
	t.Helper()
	return newClassifier(t, exec, Options{Mode: frame.Grayscale, Spec: smallSpec, Labels: scores.ShapeLabels})
}

func runWorker(ctx context.Context, w *Worker) <-chan error {
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestMailbox_KeepsLatest(t *testing.T) {
	m := newMailbox()

	if replaced, ok := m.put(&frame.Raw{Seq: 1}); replaced || !ok {
		t.Errorf("first put: replaced=%v accepted=%v", replaced, ok)
	}
	if replaced, _ := m.put(&frame.Raw{Seq: 2}); !replaced {
		t.Error("second put should replace the unconsumed frame")
	}

	f, done := m.take()
	if done || f == nil || f.Seq != 2 {
		t.Fatalf("take: got %+v done=%v, want seq 2", f, done)
	}
	if f, done := m.take(); f != nil || done {
		t.Errorf("empty take: got %+v done=%v", f, done)
	}
}

func TestMailbox_CloseDrains(t *testing.T) {
	m := newMailbox()
	m.put(&frame.Raw{Seq: 1})
	m.close()

	if _, ok := m.put(&frame.Raw{Seq: 2}); ok {
		t.Error("put after close should be rejected")
	}
	if f, done := m.take(); f == nil || f.Seq != 1 || done {
		t.Errorf("pending frame should survive close, got %+v done=%v", f, done)
	}
	if _, done := m.take(); !done {
		t.Error("closed empty mailbox should report done")
	}
}

func TestWorker_DeliversResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &collector{}
	w := NewWorker(newSmallClassifier(t, model.Constant(smallSpec.Len(), triangleScores)), sink, zap.NewNop())
	done := runWorker(context.Background(), w)

	w.Submit(createGrayFrame(16, 16, 255, 1))
	w.Close()
	waitDone(t, done)

	seqs := sink.seqs()
	if len(seqs) != 1 || seqs[0] != 1 {
		t.Fatalf("delivered: got %v, want [1]", seqs)
	}
	if sink.results[0].Label != "Triangle" {
		t.Errorf("label: got %s", sink.results[0].Label)
	}

	stats := w.Stats()
	if stats.Received != 1 || stats.Processed != 1 || stats.Dropped != 0 {
		t.Errorf("stats: got %+v", stats)
	}
}

func TestWorker_DropsWhileBusy(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	exec := &model.Func{In: smallSpec.Len(), Out: 8, Fn: func([]float32) ([]float32, error) {
		entered <- struct{}{}
		<-release
		return append([]float32(nil), triangleScores...), nil
	}}

	sink := &collector{}
	w := NewWorker(newSmallClassifier(t, exec), sink, zap.NewNop())
	done := runWorker(context.Background(), w)

	w.Submit(createGrayFrame(8, 8, 10, 1))
	<-entered

	// the worker is busy with frame 1: frames 2 and 3 are overwritten
	for seq := uint64(2); seq <= 4; seq++ {
		w.Submit(createGrayFrame(8, 8, 10, seq))
	}
	w.Close()
	close(release)
	waitDone(t, done)

	seqs := sink.seqs()
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 4 {
		t.Errorf("delivered: got %v, want [1 4]", seqs)
	}

	stats := w.Stats()
	want := Stats{Received: 4, Processed: 2, Dropped: 2}
	if stats != want {
		t.Errorf("stats: got %+v, want %+v", stats, want)
	}
}

func TestWorker_SkipsMalformedFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.DebugLevel)
	sink := &collector{}
	w := NewWorker(newSmallClassifier(t, model.Constant(smallSpec.Len(), triangleScores)), sink, zap.New(core))
	done := runWorker(context.Background(), w)

	bad := createGrayFrame(8, 8, 0, 1)
	bad.Planes = nil
	w.Submit(bad)
	for w.Stats().Malformed == 0 {
		time.Sleep(time.Millisecond)
	}
	w.Submit(createGrayFrame(8, 8, 0, 2))
	w.Close()
	waitDone(t, done)

	if seqs := sink.seqs(); len(seqs) != 1 || seqs[0] != 2 {
		t.Errorf("delivered: got %v, want [2]", seqs)
	}
	if n := logs.FilterMessage("skipping malformed frame").Len(); n != 1 {
		t.Errorf("malformed log entries: got %d, want 1", n)
	}
	if entry := logs.FilterMessage("skipping malformed frame").All()[0]; entry.Level != zapcore.DebugLevel {
		t.Errorf("malformed frames should log at debug, got %v", entry.Level)
	}
}

func TestWorker_SinkErrorKeepsGoing(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.WarnLevel)
	sink := &collector{err: errors.New("broker unavailable")}
	w := NewWorker(newSmallClassifier(t, model.Constant(smallSpec.Len(), triangleScores)), sink, zap.New(core))
	done := runWorker(context.Background(), w)

	w.Submit(createGrayFrame(8, 8, 0, 1))
	for w.Stats().Processed == 0 {
		time.Sleep(time.Millisecond)
	}
	w.Submit(createGrayFrame(8, 8, 0, 2))
	w.Close()
	waitDone(t, done)

	if n := len(sink.seqs()); n != 2 {
		t.Errorf("deliveries: got %d, want 2", n)
	}
	if n := logs.FilterMessage("result delivery failed").Len(); n != 2 {
		t.Errorf("warnings: got %d, want 2", n)
	}
}

func TestWorker_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := NewWorker(newSmallClassifier(t, model.Constant(smallSpec.Len(), triangleScores)), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := runWorker(ctx, w)

	cancel()
	waitDone(t, done)
}

func TestWorker_NilSink(t *testing.T) {
	w := NewWorker(newSmallClassifier(t, model.Constant(smallSpec.Len(), triangleScores)), nil, nil)
	w.Submit(createGrayFrame(8, 8, 0, 1))
	w.Close()

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if w.Stats().Processed != 1 {
		t.Errorf("stats: got %+v", w.Stats())
	}
}
