package vision

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// maxFrameWidth bounds per-frame work. Camera snapshots arrive at anything
// from 640x480 to 4K; feature extraction does not benefit from more pixels.
const maxFrameWidth = 640

// Frame is an immutable RGB pixel grid. Pix holds 3 bytes per pixel in
// row-major order. The pipeline never keeps a Frame beyond the current and
// previous one per source.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// FromImage decodes an image.Image into a Frame, downscaling anything wider
// than maxFrameWidth to keep extraction cost bounded and deterministic.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return &Frame{}
	}

	if b.Dx() > maxFrameWidth {
		h := b.Dy() * maxFrameWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxFrameWidth, h))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
		b = dst.Bounds()
	}

	f := &Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]uint8, b.Dx()*b.Dy()*3),
	}

	if rgba, ok := img.(*image.RGBA); ok {
		i := 0
		for y := 0; y < f.Height; y++ {
			row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+f.Width*4]
			for x := 0; x < f.Width; x++ {
				f.Pix[i] = row[x*4]
				f.Pix[i+1] = row[x*4+1]
				f.Pix[i+2] = row[x*4+2]
				i += 3
			}
		}
		return f
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			f.Pix[i] = uint8(r >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return f
}

func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0
}

// Gray returns the single-channel intensity image (ITU-R 601 weights, the
// same conversion OpenCV applies for grayscale).
func (f *Frame) Gray() []uint8 {
	if f.Empty() {
		return nil
	}
	out := make([]uint8, f.Width*f.Height)
	for i := range out {
		r := uint32(f.Pix[i*3])
		g := uint32(f.Pix[i*3+1])
		b := uint32(f.Pix[i*3+2])
		out[i] = uint8((299*r + 587*g + 114*b) / 1000)
	}
	return out
}
