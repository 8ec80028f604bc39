package tensor

import (
	"image"

	"github.com/disintegration/imaging"
)

// Tensor is a flat model input of length Spec.Len().
type Tensor []float32

// Packer turns pixel buffers into Tensors for one fixed Spec. It holds no
// per-frame state and is safe for concurrent use.
type Packer struct {
	spec Spec
}

// NewPacker validates spec and returns a Packer for it.
func NewPacker(spec Spec) (*Packer, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Packer{spec: spec}, nil
}

// Spec returns the packer's configuration.
func (p *Packer) Spec() Spec {
	return p.spec
}

// Resize scales img to Side x Side with the configured filter and aspect
// policy. The result is the exact image Pack encodes.
func (p *Packer) Resize(img image.Image) *image.NRGBA {
	side := p.spec.Side
	filter := p.spec.Interpolation.filter()
	if p.spec.PreserveAspect {
		return imaging.Fill(img, side, side, imaging.Center, filter)
	}
	return imaging.Resize(img, side, side, filter)
}

// Pack resizes img and encodes it. It never fails: the output always holds
// exactly Side*Side*Channels values inside the normalization range.
func (p *Packer) Pack(img image.Image) Tensor {
	return p.PackResized(p.Resize(img))
}

// PackResized encodes an image that is already Side x Side. Images of any
// other size are resized first.
func (p *Packer) PackResized(img *image.NRGBA) Tensor {
	side := p.spec.Side
	if img.Rect.Dx() != side || img.Rect.Dy() != side {
		img = p.Resize(img)
	}

	k := p.spec.Channels
	norm := p.spec.Normalization
	plane := side * side
	out := make(Tensor, plane*k)

	for y := 0; y < side; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+side*4]
		for x := 0; x < side; x++ {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			px := y*side + x

			if k == 1 {
				out[px] = norm.Apply(luma(r, g, b))
				continue
			}

			if p.spec.Layout == CHW {
				out[px] = norm.Apply(r)
				out[plane+px] = norm.Apply(g)
				out[2*plane+px] = norm.Apply(b)
			} else {
				out[px*3] = norm.Apply(r)
				out[px*3+1] = norm.Apply(g)
				out[px*3+2] = norm.Apply(b)
			}
		}
	}
	return out
}

// luma computes BT.601 luminance with the same fixed-point weights as
// color.GrayModel, so r == g == b yields that value exactly.
func luma(r, g, b uint8) uint8 {
	y := (19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16
	return uint8(y)
}
