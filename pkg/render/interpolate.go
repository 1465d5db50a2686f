package render

import (
	"github.com/taigrr/facemask/internal/parallel"
	"github.com/taigrr/facemask/pkg/math3d"
)

// Interpolate blends a per-vertex attribute of k channels across the
// covered pixels of rast. attr holds k floats per vertex. The result has k
// floats per pixel and is zero where no triangle was drawn.
//
// The third weight is 1-w0-w1. If any weight is negative, w0 and w1 are
// clamped to zero and the third becomes max(1-w0-w1, 0); the weights are
// not renormalized.
func Interpolate(attr []float64, k int, rast *RasterBuffer, tri [][3]int32, workers int) []float64 {
	out := make([]float64, rast.Width*rast.Height*k)
	if k <= 0 {
		return out
	}
	n := len(attr) / k

	parallel.For(workers, rast.Height, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := range rast.Width {
				idx := y*rast.Width + x
				rec := rast.Data[idx*RasterChannels : idx*RasterChannels+RasterChannels]
				id := rec[3]
				t := int(id - 1)
				if id == 0 || t < 0 || t >= len(tri) {
					continue
				}
				i0, i1, i2 := int(tri[t][0]), int(tri[t][1]), int(tri[t][2])
				if i0 < 0 || i1 < 0 || i2 < 0 || i0 >= n || i1 >= n || i2 >= n {
					continue
				}

				w0, w1 := rec[0], rec[1]
				w2 := 1 - w0 - w1
				if w0 < 0 || w1 < 0 || w2 < 0 {
					w0, w1 = max(w0, 0), max(w1, 0)
					w2 = max(1-w0-w1, 0)
				}

				dst := out[idx*k : idx*k+k]
				a0, a1, a2 := attr[i0*k:i0*k+k], attr[i1*k:i1*k+k], attr[i2*k:i2*k+k]
				for c := range k {
					dst[c] = w0*a0[c] + w1*a1[c] + w2*a2[c]
				}
			}
		}
	})
	return out
}

// FlattenVec3 packs vectors into x, y, z triples for Interpolate.
func FlattenVec3(v []math3d.Vec3) []float64 {
	out := make([]float64, 0, 3*len(v))
	for _, p := range v {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

// FlattenVec2 packs vectors into x, y pairs for Interpolate.
func FlattenVec2(v []math3d.Vec2) []float64 {
	out := make([]float64, 0, 2*len(v))
	for _, p := range v {
		out = append(out, p.X, p.Y)
	}
	return out
}
