package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/shape-classifier/internal/frame"
)

// Source supplies camera frames.
type Source interface {
	// Start begins producing frames. The channel is closed when the source
	// is exhausted or ctx is cancelled; Err then reports why it stopped.
	Start(ctx context.Context) (<-chan *frame.Raw, error)
	Err() error
}

// Run feeds frames from src into w until the source is exhausted, a
// component fails or ctx is cancelled. A frame pending when the source
// ends is still classified.
func Run(ctx context.Context, src Source, w *Worker) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(ctx)
	})

	g.Go(func() error {
		defer w.Close()

		frames, err := src.Start(ctx)
		if err != nil {
			return fmt.Errorf("failed to start frame source: %w", err)
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case f, ok := <-frames:
				if !ok {
					if err := src.Err(); err != nil {
						return fmt.Errorf("frame source failed: %w", err)
					}
					return nil
				}
				w.Submit(f)
			}
		}
	})

	return g.Wait()
}
