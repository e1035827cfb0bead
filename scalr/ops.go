package scalr

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Op is one post-processing operation applied to the scaled image. Ops run in
// the order given to Resize; the first failing op aborts the chain.
type Op func(image.Image) (image.Image, error)

// OpGrayscale converts the image to grayscale.
func OpGrayscale(src image.Image) (image.Image, error) {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			dst.Set(x, y, color.RGBA{R: g.Y, G: g.Y, B: g.Y, A: alphaAt(src, x, y)})
		}
	}
	return dst, nil
}

// OpBrighter lightens the image by 10%.
func OpBrighter(src image.Image) (image.Image, error) {
	return rescale(src, 1.1), nil
}

// OpDarker darkens the image by 10%.
func OpDarker(src image.Image) (image.Image, error) {
	return rescale(src, 0.9), nil
}

// antialiasKernel is a very light 3x3 blur. Heavier kernels soften images
// noticeably; this one just takes the edge off scaling artifacts.
var antialiasKernel = [9]float64{
	0.00, 0.08, 0.00,
	0.08, 0.68, 0.08,
	0.00, 0.08, 0.00,
}

// OpAntialias applies a light convolution blur that smooths jagged edges
// introduced by aggressive downscaling.
func OpAntialias(src image.Image) (image.Image, error) {
	bounds := src.Bounds()
	in := toRGBA(src)
	dst := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var r, g, b, a float64
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					w := antialiasKernel[k]
					k++
					if w == 0 {
						continue
					}
					sx, sy := clamp(x+dx, bounds.Min.X, bounds.Max.X-1), clamp(y+dy, bounds.Min.Y, bounds.Max.Y-1)
					c := in.RGBAAt(sx, sy)
					r += w * float64(c.R)
					g += w * float64(c.G)
					b += w * float64(c.B)
					a += w * float64(c.A)
				}
			}
			dst.SetRGBA(x, y, color.RGBA{R: clampByte(r), G: clampByte(g), B: clampByte(b), A: clampByte(a)})
		}
	}
	return dst, nil
}

func rescale(src image.Image, factor float64) image.Image {
	bounds := src.Bounds()
	in := toRGBA(src)
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := in.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: clampByte(float64(c.R) * factor),
				G: clampByte(float64(c.G) * factor),
				B: clampByte(float64(c.B) * factor),
				A: c.A,
			})
		}
	}
	return dst
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	bounds := src.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, src, bounds.Min, draw.Src)
	return rgba
}

func alphaAt(src image.Image, x, y int) uint8 {
	_, _, _, a := src.At(x, y).RGBA()
	return uint8(a >> 8)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
