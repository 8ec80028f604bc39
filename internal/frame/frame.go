package frame

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrMalformedFrame is returned when plane data cannot satisfy the frame's
// declared dimensions.
var ErrMalformedFrame = errors.New("malformed frame")

// MaxDimension bounds frame width and height. Larger frames are malformed.
const MaxDimension = 1 << 15

// CheckDimensions reports whether a w x h frame is within range.
func CheckDimensions(w, h int) error {
	if w <= 0 || h <= 0 || w > MaxDimension || h > MaxDimension {
		return fmt.Errorf("%w: invalid dimensions %dx%d (each must be 1..%d)", ErrMalformedFrame, w, h, MaxDimension)
	}
	return nil
}

// ColorMode selects which planes of a frame are decoded.
type ColorMode int

const (
	// Grayscale decodes the luma plane only.
	Grayscale ColorMode = iota
	// ColorYUV decodes luma and both chroma planes.
	ColorYUV
)

// String returns the configuration name of the mode.
func (m ColorMode) String() string {
	switch m {
	case Grayscale:
		return "grayscale"
	case ColorYUV:
		return "yuv"
	default:
		return fmt.Sprintf("ColorMode(%d)", int(m))
	}
}

// ParseColorMode converts a configuration string into a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grayscale", "gray", "grey":
		return Grayscale, nil
	case "yuv", "color", "colour", "color_yuv":
		return ColorYUV, nil
	default:
		return 0, fmt.Errorf("unknown color mode %q", s)
	}
}

// Plane is one 8-bit channel of a frame.
type Plane struct {
	// Data holds the plane bytes. It is only read during Decode.
	Data []byte

	// RowStride is the distance in bytes between the starts of two rows.
	// Zero means rows are tightly packed (width * PixelStride).
	RowStride int

	// PixelStride is the distance in bytes between two samples of a row.
	// Zero means 1. Semi-planar chroma uses 2.
	PixelStride int
}

// Raw is a single camera capture.
type Raw struct {
	// Planes are ordered Y, U, V. Grayscale frames may carry only Y.
	Planes []Plane

	Width  int
	Height int

	// Seq is a monotonically increasing capture number assigned by the source.
	Seq uint64

	// Timestamp is the capture time.
	Timestamp time.Time
}

// ChromaSize returns the dimensions of a 4:2:0 chroma plane for a frame of
// the given luma dimensions.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// strides resolves the effective row and pixel stride of p for a plane that
// is w samples wide.
func (p Plane) strides(w int) (row, pixel int) {
	pixel = p.PixelStride
	if pixel <= 0 {
		pixel = 1
	}
	row = p.RowStride
	if row <= 0 {
		row = w * pixel
	}
	return row, pixel
}

// required returns the minimum number of bytes a w x h plane occupies, or
// false if that extent does not fit in an int.
func required(w, h, row, pixel int) (int, bool) {
	if pixel > (math.MaxInt-1)/w {
		return 0, false
	}
	extent := (w-1)*pixel + 1
	if h > 1 && row > (math.MaxInt-extent)/(h-1) {
		return 0, false
	}
	return (h-1)*row + extent, true
}

// check validates that p can supply a w x h plane.
func (p Plane) check(name string, w, h int) error {
	if p.PixelStride > (math.MaxInt-1)/w {
		return fmt.Errorf("%w: %s pixel stride %d out of range", ErrMalformedFrame, name, p.PixelStride)
	}
	row, pixel := p.strides(w)
	if row < (w-1)*pixel+1 {
		return fmt.Errorf("%w: %s row stride %d shorter than row of %d samples", ErrMalformedFrame, name, row, w)
	}
	need, ok := required(w, h, row, pixel)
	if !ok {
		return fmt.Errorf("%w: %s plane extent overflows for %dx%d with row stride %d", ErrMalformedFrame, name, w, h, row)
	}
	if len(p.Data) < need {
		return fmt.Errorf("%w: %s plane has %d bytes, need %d for %dx%d", ErrMalformedFrame, name, len(p.Data), need, w, h)
	}
	return nil
}

// at returns the sample at (x, y) assuming check has passed.
func (p Plane) at(x, y, row, pixel int) byte {
	return p.Data[y*row+x*pixel]
}

// Validate checks that r carries enough plane data for mode.
func (r *Raw) Validate(mode ColorMode) error {
	if r == nil {
		return fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	if err := CheckDimensions(r.Width, r.Height); err != nil {
		return err
	}

	switch mode {
	case Grayscale:
		if len(r.Planes) < 1 {
			return fmt.Errorf("%w: grayscale frame has no planes", ErrMalformedFrame)
		}
		return r.Planes[0].check("Y", r.Width, r.Height)
	case ColorYUV:
		if len(r.Planes) != 3 {
			return fmt.Errorf("%w: yuv frame has %d planes, need 3", ErrMalformedFrame, len(r.Planes))
		}
		if err := r.Planes[0].check("Y", r.Width, r.Height); err != nil {
			return err
		}
		cw, ch := ChromaSize(r.Width, r.Height)
		if err := r.Planes[1].check("U", cw, ch); err != nil {
			return err
		}
		return r.Planes[2].check("V", cw, ch)
	default:
		return fmt.Errorf("unsupported color mode %v", mode)
	}
}
