package composite

import (
	"image"
	"math"

	"github.com/taigrr/facemask/pkg/render"
)

// Erode replaces every pixel by the minimum of its 3×3 neighborhood.
// Neighbors outside the image are ignored, so the border does not erode.
func Erode(src *image.Gray) *image.Gray {
	r := src.Bounds()
	w, h := r.Dx(), r.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := range h {
		for x := range w {
			v := uint8(255)
			for dy := -1; dy <= 1; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					v = min(v, src.Pix[yy*src.Stride+xx])
				}
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}

// GaussianKernel returns a normalized 1D Gaussian kernel of the given odd
// size.
func GaussianKernel(size int, sigma float64) []float64 {
	if size <= 1 || sigma <= 0 {
		return []float64{1}
	}
	half := size / 2
	kernel := make([]float64, 2*half+1)
	twoSigmaSq := 2 * sigma * sigma
	sum := 0.0
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(-(x * x) / twoSigmaSq)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// Blur applies a separable Gaussian blur. Samples past the edge mirror
// around the border pixel without repeating it.
func Blur(src *image.Gray, size int, sigma float64) *image.Gray {
	r := src.Bounds()
	w, h := r.Dx(), r.Dy()
	kernel := GaussianKernel(size, sigma)
	half := len(kernel) / 2

	temp := make([]float64, w*h)
	for y := range h {
		for x := range w {
			var sum float64
			for k, kw := range kernel {
				xx := reflect101(x+k-half, w)
				sum += float64(src.Pix[y*src.Stride+xx]) * kw
			}
			temp[y*w+x] = sum
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			var sum float64
			for k, kw := range kernel {
				yy := reflect101(y+k-half, h)
				sum += temp[yy*w+x] * kw
			}
			dst.Pix[y*dst.Stride+x] = clampUint8(sum)
		}
	}
	return dst
}

// reflect101 maps an out-of-range index into [0, n) as
// ... 2 1 | 0 1 2 ... n-1 | n-2 ...
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// clampUint8 rounds v and clamps it to a byte.
func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// Fuse blends fg over bg with alpha/255 as the foreground weight. fg may
// carry a fourth channel, which is ignored. The result is truncated to
// 8 bits.
func Fuse(fg, bg *render.Pixmap, alpha *image.Gray) *render.Pixmap {
	w, h := bg.Width, bg.Height
	out := render.NewPixmap(w, h, 3)
	fc, bc := fg.Channels, bg.Channels

	for y := range h {
		for x := range w {
			i := y*w + x
			a := float64(alpha.Pix[y*alpha.Stride+x]) / 255
			for c := range 3 {
				f := float64(fg.Pix[i*fc+c])
				b := float64(bg.Pix[i*bc+c])
				out.Pix[i*3+c] = uint8(f*a + b*(1-a))
			}
		}
	}
	return out
}
