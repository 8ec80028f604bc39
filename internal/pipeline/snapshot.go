package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// snapshotter saves every n-th packed image for inspection. A nil
// snapshotter saves nothing.
type snapshotter struct {
	dir    string
	every  uint64
	count  atomic.Uint64
	logger *zap.Logger
}

func newSnapshotter(dir string, every int, logger *zap.Logger) (*snapshotter, error) {
	if every <= 0 {
		return nil, fmt.Errorf("snapshot interval must be positive, got %d", every)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &snapshotter{dir: dir, every: uint64(every), logger: logger}, nil
}

func (s *snapshotter) offer(img image.Image, seq uint64) {
	if s == nil {
		return
	}
	n := s.count.Add(1)
	if (n-1)%s.every != 0 {
		return
	}

	path := filepath.Join(s.dir, fmt.Sprintf("frame-%08d-%06d.png", seq, n))
	if err := imaging.Save(img, path); err != nil {
		s.logger.Warn("failed to save snapshot", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("snapshot saved", zap.String("path", path))
}
