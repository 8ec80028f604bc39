package model

import (
	"fmt"
	"os"
	"sync"
)

// Asset is a read-only model file held in memory for the lifetime of an
// engine. On unix systems the file is memory-mapped; elsewhere it is read.
type Asset struct {
	path  string
	data  []byte
	unmap func([]byte) error
	once  sync.Once
}

// OpenAsset maps the model file at path. Errors wrap ErrModelLoad.
func OpenAsset(path string) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open model asset: %v", ErrModelLoad, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat model asset: %v", ErrModelLoad, err)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("%w: model asset %s is empty", ErrModelLoad, path)
	}

	data, unmap, err := mapFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to map model asset: %v", ErrModelLoad, err)
	}

	return &Asset{path: path, data: data, unmap: unmap}, nil
}

// Path returns the file the asset was loaded from.
func (a *Asset) Path() string { return a.path }

// Bytes returns the asset contents. The slice is read-only and invalid after
// Close.
func (a *Asset) Bytes() []byte { return a.data }

// Size returns the asset length in bytes.
func (a *Asset) Size() int { return len(a.data) }

// Close releases the mapping. It is safe to call more than once.
func (a *Asset) Close() error {
	var err error
	a.once.Do(func() {
		if a.unmap != nil {
			err = a.unmap(a.data)
		}
		a.data = nil
	})
	return err
}
