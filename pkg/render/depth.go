package render

import (
	"image"
	"math"
)

// NormalizeDepth maps the positive depths under mask to 8-bit values with
// the nearest pixel brightest. depth holds one float per mask pixel. The
// result is all zero when no masked pixel has a positive depth or when
// every such depth is equal.
func NormalizeDepth(depth []float64, mask *image.Gray) *image.Gray {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	lo, hi := math.Inf(1), math.Inf(-1)
	found := false
	for y := range h {
		for x := range w {
			d := depth[y*w+x]
			if mask.Pix[y*mask.Stride+x] > 0 && d > 0 {
				lo, hi = min(lo, d), max(hi, d)
				found = true
			}
		}
	}
	if !found || hi <= lo {
		return out
	}

	span := hi - lo
	for y := range h {
		for x := range w {
			if mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			v := (depth[y*w+x] - lo) / span * 255
			v = min(max(v, 0), 255)
			out.Pix[y*out.Stride+x] = uint8(255 - v)
		}
	}
	return out
}
