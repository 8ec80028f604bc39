package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/frame"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// Images emits still images as camera frames.
type Images struct {
	paths    []string
	mode     frame.ColorMode
	loop     bool
	interval time.Duration
	cache    *Cache
	logger   *zap.Logger

	err error
}

// ImagesOptions configure an Images source.
type ImagesOptions struct {
	// Path is an image file or a directory whose images are emitted in
	// lexical order.
	Path string
	Mode frame.ColorMode
	// Loop restarts from the first image after the last one.
	Loop bool
	// Interval is the pause between frames; zero emits as fast as the
	// pipeline takes them.
	Interval time.Duration
}

// NewImages resolves opts.Path into the list of images to emit.
func NewImages(opts ImagesOptions, logger *zap.Logger) (*Images, error) {
	paths, err := listImages(opts.Path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Images{
		paths:    paths,
		mode:     opts.Mode,
		loop:     opts.Loop,
		interval: opts.Interval,
		cache:    NewCache(),
		logger:   logger,
	}, nil
}

func listImages(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("image source needs a path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image source: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(path, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", path)
	}
	sort.Strings(paths)
	return paths, nil
}

// Paths returns the images in emission order.
func (s *Images) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Start emits the images until they are exhausted, ctx is cancelled or an
// image fails to load.
func (s *Images) Start(ctx context.Context) (<-chan *frame.Raw, error) {
	out := make(chan *frame.Raw)

	go func() {
		defer close(out)

		var seq uint64
		for {
			for _, path := range s.paths {
				img, err := s.cache.Load(path)
				if err != nil {
					s.err = err
					return
				}

				// a single pass never reads the image again
				if !s.loop {
					s.cache.Evict(path)
				}

				seq++
				raw := ToRaw(img, s.mode)
				raw.Seq = seq
				raw.Timestamp = time.Now()

				select {
				case out <- raw:
				case <-ctx.Done():
					return
				}
				s.logger.Debug("frame emitted", zap.Uint64("seq", seq), zap.String("path", path))

				if !sleep(ctx, s.interval) {
					return
				}
			}
			if !s.loop {
				return
			}
		}
	}()

	return out, nil
}

// Err reports why the source stopped early. It is valid after the frame
// channel is closed.
func (s *Images) Err() error {
	return s.err
}

// sleep waits d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
