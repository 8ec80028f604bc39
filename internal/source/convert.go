package source

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"

	"github.com/ironsheep/shape-classifier/internal/frame"
)

// ToRaw converts img into the planes a camera delivers in mode: a single
// luma plane for Grayscale, or Y, U and V planes with 2x2 subsampled chroma
// for ColorYUV.
func ToRaw(img image.Image, mode frame.ColorMode) *frame.Raw {
	if mode == frame.Grayscale {
		return grayPlanes(img)
	}
	return yuvPlanes(img)
}

func grayPlanes(img image.Image) *frame.Raw {
	gray := effect.GrayscaleWithWeights(img, 0.299, 0.587, 0.114)
	b := gray.Bounds()
	return &frame.Raw{
		Planes: []frame.Plane{{Data: gray.Pix, RowStride: gray.Stride}},
		Width:  b.Dx(),
		Height: b.Dy(),
	}
}

// yuvPlanes writes full-resolution luma and takes each chroma sample from
// the top-left pixel of its 2x2 block.
func yuvPlanes(img image.Image) *frame.Raw {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cw, ch := frame.ChromaSize(w, h)

	y := make([]byte, w*h)
	u := make([]byte, cw*ch)
	v := make([]byte, cw*ch)

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+px, b.Min.Y+py)).(color.NRGBA)
			yy, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
			y[py*w+px] = yy
			if px%2 == 0 && py%2 == 0 {
				i := (py/2)*cw + px/2
				u[i] = cb
				v[i] = cr
			}
		}
	}

	return &frame.Raw{
		Planes: []frame.Plane{{Data: y}, {Data: u}, {Data: v}},
		Width:  w,
		Height: h,
	}
}
