// Package sink delivers classification results.
//
// Every sink implements pipeline.Sink. Log writes results through zap, JSON
// writes one JSON object per line (stdout by default) and MQTT publishes the
// same JSON object to a broker topic. Multi fans a result out to several
// named sinks, counting failures per sink.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/metrics"
	"github.com/ironsheep/shape-classifier/internal/pipeline"
)

// Log writes each result as one info entry.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a sink logging to logger.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Deliver logs res.
func (s *Log) Deliver(_ context.Context, res pipeline.Result) error {
	fields := []zap.Field{
		zap.Uint64("seq", res.Seq),
		zap.String("label", res.Label),
		zap.Float32("score", res.Score),
		zap.Duration("latency", res.Latency),
	}
	if len(res.Ranking) > 0 {
		fields = append(fields, zap.Any("ranking", res.Ranking))
	}
	s.logger.Info("shape classified", fields...)
	return nil
}

// JSON writes results as JSON lines.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSON returns a sink writing to w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

// Deliver encodes res followed by a newline.
func (s *JSON) Deliver(_ context.Context, res pipeline.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// Named pairs a sink with the name used in logs and metrics.
type Named struct {
	Name string
	Sink pipeline.Sink
}

// Multi delivers to every sink in order. A failing sink does not stop
// delivery to the others.
type Multi struct {
	sinks   []Named
	metrics *metrics.Metrics
}

// NewMulti combines sinks. m may be nil.
func NewMulti(m *metrics.Metrics, sinks ...Named) *Multi {
	return &Multi{sinks: sinks, metrics: m}
}

// Deliver sends res to every sink and combines their errors.
func (s *Multi) Deliver(ctx context.Context, res pipeline.Result) error {
	var err error
	for _, n := range s.sinks {
		if derr := n.Sink.Deliver(ctx, res); derr != nil {
			s.metrics.SinkFailed(n.Name)
			err = multierr.Append(err, fmt.Errorf("%s: %w", n.Name, derr))
		}
	}
	return err
}

// Close closes every sink that holds resources.
func (s *Multi) Close() error {
	var err error
	for _, n := range s.sinks {
		if c, ok := n.Sink.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
