package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/frame"
)

// Raw reads back-to-back fixed-size frames from a byte stream.
type Raw struct {
	r        io.Reader
	closer   io.Closer
	format   frame.Format
	width    int
	height   int
	interval time.Duration
	logger   *zap.Logger

	err error
}

// RawOptions configure a Raw source.
type RawOptions struct {
	// Path is the frame file, or "-" for stdin.
	Path     string
	Format   frame.Format
	Width    int
	Height   int
	Interval time.Duration
}

// OpenRaw opens opts.Path for reading. The file is closed when the source
// stops.
func OpenRaw(opts RawOptions, logger *zap.Logger) (*Raw, error) {
	if opts.Path == "" || opts.Path == "-" {
		return NewRaw(os.Stdin, opts, logger)
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw frame source: %w", err)
	}
	s, err := NewRaw(f, opts, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewRaw reads frames from r.
func NewRaw(r io.Reader, opts RawOptions, logger *zap.Logger) (*Raw, error) {
	if err := frame.CheckDimensions(opts.Width, opts.Height); err != nil {
		return nil, fmt.Errorf("raw frame source: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Raw{
		r:        r,
		format:   opts.Format,
		width:    opts.Width,
		height:   opts.Height,
		interval: opts.Interval,
		logger:   logger,
	}, nil
}

// FrameSize is the number of bytes read per frame.
func (s *Raw) FrameSize() int {
	return s.format.FrameSize(s.width, s.height)
}

// Start reads frames until EOF, a read error or ctx cancellation. A stream
// ending inside a frame is reported through Err.
func (s *Raw) Start(ctx context.Context) (<-chan *frame.Raw, error) {
	out := make(chan *frame.Raw)
	size := s.FrameSize()

	go func() {
		defer close(out)
		if s.closer != nil {
			defer s.closer.Close()
		}

		var seq uint64
		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(s.r, buf)
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Debug("raw source exhausted", zap.Uint64("frames", seq))
				return
			case errors.Is(err, io.ErrUnexpectedEOF):
				s.err = fmt.Errorf("truncated frame %d: got %d of %d bytes", seq+1, n, size)
				return
			case err != nil:
				s.err = fmt.Errorf("failed to read frame %d: %w", seq+1, err)
				return
			}

			seq++
			raw := frame.FromBuffer(buf, s.format, s.width, s.height)
			raw.Seq = seq
			raw.Timestamp = time.Now()

			select {
			case out <- raw:
			case <-ctx.Done():
				return
			}

			if !sleep(ctx, s.interval) {
				return
			}
		}
	}()

	return out, nil
}

// Err reports why the source stopped early. It is valid after the frame
// channel is closed.
func (s *Raw) Err() error {
	return s.err
}
