package model

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAsset(t *testing.T) {
	content := []byte("TFL3 fake flatbuffer payload")
	path := filepath.Join(t.TempDir(), "shape_classification_model.tflite")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write asset: %v", err)
	}

	a, err := OpenAsset(path)
	if err != nil {
		t.Fatalf("OpenAsset failed: %v", err)
	}

	if !bytes.Equal(a.Bytes(), content) {
		t.Errorf("asset bytes: got %q, want %q", a.Bytes(), content)
	}
	if a.Size() != len(content) {
		t.Errorf("size: got %d, want %d", a.Size(), len(content))
	}
	if a.Path() != path {
		t.Errorf("path: got %s, want %s", a.Path(), path)
	}

	if err := a.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if a.Bytes() != nil {
		t.Error("bytes should be released after Close")
	}
}

func TestOpenAsset_Failures(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.tflite")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("failed to write asset: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.tflite")},
		{"empty", empty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenAsset(tt.path)
			if !errors.Is(err, ErrModelLoad) {
				t.Errorf("expected ErrModelLoad, got %v", err)
			}
		})
	}
}

func TestFunc_ChecksSizes(t *testing.T) {
	f := &Func{
		In:  4,
		Out: 2,
		Fn: func(in []float32) ([]float32, error) {
			return []float32{in[0], in[3]}, nil
		},
	}

	out, err := f.Infer([]float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if out[0] != 1 || out[1] != 4 {
		t.Errorf("output: got %v", out)
	}

	if _, err := f.Infer([]float32{1, 2, 3}); err == nil {
		t.Error("Infer should reject short input")
	}

	bad := &Func{In: 1, Out: 3, Fn: func([]float32) ([]float32, error) { return []float32{1}, nil }}
	if _, err := bad.Infer([]float32{0}); err == nil {
		t.Error("Infer should reject wrong output length")
	}
}

func TestConstant_ReturnsCopy(t *testing.T) {
	c := Constant(2, []float32{0, 9.9})

	out, err := c.Infer([]float32{0, 0})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	out[1] = -1

	again, _ := c.Infer([]float32{0, 0})
	if again[1] != 9.9 {
		t.Error("Constant output should not alias between calls")
	}
	if c.OutputSize() != 2 || c.InputSize() != 2 {
		t.Errorf("sizes: in=%d out=%d", c.InputSize(), c.OutputSize())
	}
}

func TestOptions_InputSize(t *testing.T) {
	o := Options{InputShape: []int64{1, 224, 224, 3}}
	if got := o.InputSize(); got != 224*224*3 {
		t.Errorf("got %d, want %d", got, 224*224*3)
	}
	if (Options{}).InputSize() != 0 {
		t.Error("empty shape should have size 0")
	}
}
