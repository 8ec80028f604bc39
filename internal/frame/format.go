package frame

import (
	"fmt"
	"strings"
)

// Format describes how a contiguous raw buffer lays out a frame's planes.
type Format int

const (
	// FormatGray is a single luma plane.
	FormatGray Format = iota
	// FormatI420 is planar Y, U, V with 4:2:0 chroma.
	FormatI420
	// FormatNV21 is Y followed by interleaved V/U pairs (Android camera default).
	FormatNV21
	// FormatNV12 is Y followed by interleaved U/V pairs.
	FormatNV12
)

var formatNames = map[Format]string{
	FormatGray: "gray",
	FormatI420: "i420",
	FormatNV21: "nv21",
	FormatNV12: "nv12",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat converts a configuration string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gray", "grey", "y8":
		return FormatGray, nil
	case "i420", "yuv420p":
		return FormatI420, nil
	case "nv21":
		return FormatNV21, nil
	case "nv12":
		return FormatNV12, nil
	default:
		return 0, fmt.Errorf("unknown raw frame format %q", s)
	}
}

// FrameSize returns the number of bytes one w x h frame occupies in format f,
// or 0 when the dimensions fail CheckDimensions.
func (f Format) FrameSize(w, h int) int {
	if CheckDimensions(w, h) != nil {
		return 0
	}
	if f == FormatGray {
		return w * h
	}
	return NV21Size(w, h)
}

// FromBuffer describes buf as a frame in format f without copying. Plane
// slices alias buf, so buf must not be modified until the frame is decoded.
//
// Semi-planar formats are exposed the way camera APIs expose them: the U and
// V planes share the interleaved chroma buffer with a pixel stride of 2.
func FromBuffer(buf []byte, f Format, w, h int) *Raw {
	if CheckDimensions(w, h) != nil {
		return &Raw{Width: w, Height: h}
	}
	ySize := w * h
	if len(buf) < ySize {
		return &Raw{Planes: []Plane{{Data: buf, RowStride: w}}, Width: w, Height: h}
	}

	y := Plane{Data: buf[:ySize], RowStride: w, PixelStride: 1}
	if f == FormatGray {
		return &Raw{Planes: []Plane{y}, Width: w, Height: h}
	}

	cw, ch := ChromaSize(w, h)
	chroma := buf[ySize:]
	switch f {
	case FormatI420:
		u := Plane{Data: sub(chroma, 0, cw*ch), RowStride: cw, PixelStride: 1}
		v := Plane{Data: sub(chroma, cw*ch, 2*cw*ch), RowStride: cw, PixelStride: 1}
		return &Raw{Planes: []Plane{y, u, v}, Width: w, Height: h}
	case FormatNV21:
		v := Plane{Data: sub(chroma, 0, 2*cw*ch-1), RowStride: 2 * cw, PixelStride: 2}
		u := Plane{Data: sub(chroma, 1, 2*cw*ch), RowStride: 2 * cw, PixelStride: 2}
		return &Raw{Planes: []Plane{y, u, v}, Width: w, Height: h}
	default:
		u := Plane{Data: sub(chroma, 0, 2*cw*ch-1), RowStride: 2 * cw, PixelStride: 2}
		v := Plane{Data: sub(chroma, 1, 2*cw*ch), RowStride: 2 * cw, PixelStride: 2}
		return &Raw{Planes: []Plane{y, u, v}, Width: w, Height: h}
	}
}

// sub returns b[lo:hi] clipped to the length of b.
func sub(b []byte, lo, hi int) []byte {
	if lo > len(b) {
		lo = len(b)
	}
	if hi > len(b) {
		hi = len(b)
	}
	return b[lo:hi]
}
