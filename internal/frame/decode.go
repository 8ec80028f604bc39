package frame

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Decode converts r into an RGB pixel buffer according to mode.
//
// The returned image has bounds (0,0)-(Width,Height). Errors wrap
// ErrMalformedFrame when the plane data is insufficient; the frame should be
// dropped in that case.
func Decode(r *Raw, mode ColorMode) (*image.NRGBA, error) {
	if err := r.Validate(mode); err != nil {
		return nil, err
	}

	switch mode {
	case Grayscale:
		return decodeGray(r), nil
	case ColorYUV:
		return DecodeNV21(packNV21(r), r.Width, r.Height)
	default:
		return nil, fmt.Errorf("unsupported color mode %v", mode)
	}
}

// decodeGray replicates every luma sample into R, G and B.
func decodeGray(r *Raw) *image.NRGBA {
	w, h := r.Width, r.Height
	y := r.Planes[0]
	row, pixel := y.strides(w)

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for py := 0; py < h; py++ {
		off := py * dst.Stride
		for px := 0; px < w; px++ {
			v := y.at(px, py, row, pixel)
			dst.Pix[off+0] = v
			dst.Pix[off+1] = v
			dst.Pix[off+2] = v
			dst.Pix[off+3] = 0xff
			off += 4
		}
	}
	return dst
}

// NV21Size returns the byte length of an NV21 buffer for a w x h frame.
func NV21Size(w, h int) int {
	cw, ch := ChromaSize(w, h)
	return w*h + 2*cw*ch
}

// PackNV21 copies the Y, U and V planes of r into a single NV21 buffer: the
// luma samples row by row, followed by chroma rows of interleaved V/U pairs.
func PackNV21(r *Raw) ([]byte, error) {
	if err := r.Validate(ColorYUV); err != nil {
		return nil, err
	}
	return packNV21(r), nil
}

func packNV21(r *Raw) []byte {
	w, h := r.Width, r.Height
	cw, ch := ChromaSize(w, h)
	buf := make([]byte, NV21Size(w, h))

	y := r.Planes[0]
	yRow, yPixel := y.strides(w)
	i := 0
	for py := 0; py < h; py++ {
		if yPixel == 1 {
			start := py * yRow
			i += copy(buf[i:i+w], y.Data[start:start+w])
			continue
		}
		for px := 0; px < w; px++ {
			buf[i] = y.at(px, py, yRow, yPixel)
			i++
		}
	}

	u, v := r.Planes[1], r.Planes[2]
	uRow, uPixel := u.strides(cw)
	vRow, vPixel := v.strides(cw)
	for py := 0; py < ch; py++ {
		for px := 0; px < cw; px++ {
			buf[i] = v.at(px, py, vRow, vPixel)
			buf[i+1] = u.at(px, py, uRow, uPixel)
			i += 2
		}
	}
	return buf
}

// DecodeNV21 converts an NV21 buffer into RGB using the full-range BT.601
// transform of image/color.
func DecodeNV21(buf []byte, w, h int) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrMalformedFrame, w, h)
	}
	if need := NV21Size(w, h); len(buf) < need {
		return nil, fmt.Errorf("%w: nv21 buffer has %d bytes, need %d for %dx%d", ErrMalformedFrame, len(buf), need, w, h)
	}

	cw, ch := ChromaSize(w, h)
	ycc := &image.YCbCr{
		Y:              buf[:w*h],
		Cb:             make([]byte, cw*ch),
		Cr:             make([]byte, cw*ch),
		YStride:        w,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, w, h),
	}

	vu := buf[w*h:]
	for i := 0; i < cw*ch; i++ {
		ycc.Cr[i] = vu[2*i]
		ycc.Cb[i] = vu[2*i+1]
	}

	return imaging.Clone(ycc), nil
}
