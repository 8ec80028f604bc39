package tensor

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// Normalization maps a raw 0-255 intensity onto the range a model expects.
type Normalization int

const (
	// ZeroOne maps to [0, 1].
	ZeroOne Normalization = iota
	// SignedUnit maps to [-1, 1].
	SignedUnit
)

func (n Normalization) String() string {
	switch n {
	case ZeroOne:
		return "zero_one"
	case SignedUnit:
		return "signed_unit"
	default:
		return fmt.Sprintf("Normalization(%d)", int(n))
	}
}

// Range returns the inclusive bounds of normalized values.
func (n Normalization) Range() (lo, hi float32) {
	if n == SignedUnit {
		return -1, 1
	}
	return 0, 1
}

// Apply normalizes a single raw intensity.
func (n Normalization) Apply(raw uint8) float32 {
	if n == SignedUnit {
		return float32(raw)/127.5 - 1
	}
	return float32(raw) / 255
}

// ParseNormalization converts a configuration string into a Normalization.
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero_one", "zero-one", "0_1":
		return ZeroOne, nil
	case "signed_unit", "signed-unit", "-1_1":
		return SignedUnit, nil
	default:
		return 0, fmt.Errorf("unknown normalization %q", s)
	}
}

// Interpolation selects the resampling filter used to reach the model side.
type Interpolation int

const (
	Nearest Interpolation = iota
	Bilinear
	Lanczos
)

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case Lanczos:
		return "lanczos"
	default:
		return fmt.Sprintf("Interpolation(%d)", int(i))
	}
}

func (i Interpolation) filter() imaging.ResampleFilter {
	switch i {
	case Bilinear:
		return imaging.Linear
	case Lanczos:
		return imaging.Lanczos
	default:
		return imaging.NearestNeighbor
	}
}

// ParseInterpolation converts a configuration string into an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest", "nearest_neighbor":
		return Nearest, nil
	case "bilinear", "linear":
		return Bilinear, nil
	case "lanczos", "lanczos3":
		return Lanczos, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", s)
	}
}

// Layout is the order channels and pixels are written in.
type Layout int

const (
	// HWC writes all channels of a pixel before the next pixel.
	HWC Layout = iota
	// CHW writes a full plane per channel.
	CHW
)

func (l Layout) String() string {
	switch l {
	case HWC:
		return "hwc"
	case CHW:
		return "chw"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout converts a configuration string into a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hwc", "nhwc":
		return HWC, nil
	case "chw", "nchw":
		return CHW, nil
	default:
		return 0, fmt.Errorf("unknown tensor layout %q", s)
	}
}

// Spec is the fixed input contract of a model.
type Spec struct {
	// Side is the square input resolution S.
	Side int
	// Channels is K: 1 (luma) or 3 (RGB).
	Channels      int
	Normalization Normalization
	Interpolation Interpolation
	Layout        Layout
	// PreserveAspect scales to cover and center-crops instead of stretching.
	PreserveAspect bool
}

// Len returns S*S*K.
func (s Spec) Len() int {
	return s.Side * s.Side * s.Channels
}

// Shape returns the batch-of-one tensor shape for s's layout.
func (s Spec) Shape() []int64 {
	side, k := int64(s.Side), int64(s.Channels)
	if s.Layout == CHW {
		return []int64{1, k, side, side}
	}
	return []int64{1, side, side, k}
}

// Validate reports whether s describes a packable tensor.
func (s Spec) Validate() error {
	if s.Side <= 0 {
		return fmt.Errorf("tensor side must be positive, got %d", s.Side)
	}
	if s.Channels != 1 && s.Channels != 3 {
		return fmt.Errorf("tensor channels must be 1 or 3, got %d", s.Channels)
	}
	if s.Normalization != ZeroOne && s.Normalization != SignedUnit {
		return fmt.Errorf("unsupported normalization %v", s.Normalization)
	}
	if s.Interpolation < Nearest || s.Interpolation > Lanczos {
		return fmt.Errorf("unsupported interpolation %v", s.Interpolation)
	}
	if s.Layout != HWC && s.Layout != CHW {
		return fmt.Errorf("unsupported layout %v", s.Layout)
	}
	return nil
}
