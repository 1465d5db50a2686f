// Package render rasterizes reconstructed faces into shape or texture images
// together with a coverage mask and a normalized depth map.
package render

import (
	"image"
	"math"

	"github.com/taigrr/facemask/internal/parallel"
	"github.com/taigrr/facemask/pkg/math3d"
)

const (
	// insideEpsilon admits pixels whose barycentric weights are slightly
	// negative so shared edges leave no cracks.
	insideEpsilon = 1e-5
	// minDenom rejects pixels against triangles whose NDC area vanishes.
	minDenom = 1e-12
	// defaultTileRows is the height of one rasterization band.
	defaultTileRows = 16
)

// RasterChannels is the number of floats stored per pixel in a RasterBuffer.
const RasterChannels = 4

// RasterBuffer holds, per pixel, the clamped barycentric weights w0 and w1,
// the NDC depth and the covering triangle index plus one. Uncovered pixels
// are all zero.
type RasterBuffer struct {
	Width  int
	Height int
	Data   []float64 // row-major, RasterChannels floats per pixel
}

// NewRasterBuffer allocates a zeroed buffer.
func NewRasterBuffer(width, height int) *RasterBuffer {
	return &RasterBuffer{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height*RasterChannels),
	}
}

// At returns the raster record at (x, y). id is the triangle index plus
// one, or zero for background.
func (b *RasterBuffer) At(x, y int) (w0, w1, z float64, id int) {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return 0, 0, 0, 0
	}
	o := (y*b.Width + x) * RasterChannels
	return b.Data[o], b.Data[o+1], b.Data[o+2], int(b.Data[o+3])
}

// TriangleID returns the triangle index plus one covering (x, y), or zero.
func (b *RasterBuffer) TriangleID(x, y int) int {
	_, _, _, id := b.At(x, y)
	return id
}

// Mask returns a coverage image: 255 where a triangle was drawn, 0 elsewhere.
func (b *RasterBuffer) Mask() *image.Gray {
	m := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for i := range b.Width * b.Height {
		if b.Data[i*RasterChannels+3] > 0 {
			m.Pix[i] = 255
		}
	}
	return m
}

// Covered reports how many pixels are covered by a triangle.
func (b *RasterBuffer) Covered() int {
	n := 0
	for i := range b.Width * b.Height {
		if b.Data[i*RasterChannels+3] > 0 {
			n++
		}
	}
	return n
}

// triSetup is the per-triangle state computed once before the tile pass.
type triSetup struct {
	visible bool
	ndc     [3]math3d.Vec3
	// pixel bounding box, inclusive
	minX, maxX, minY, maxY int
	// NDC bounding box
	nMinX, nMaxX, nMinY, nMaxY float64
}

// Rasterizer is a z-buffered triangle rasterizer. The frame is split into
// horizontal tiles; each tile is owned by one worker and walks the
// triangles binned to it in index order, so no locking is needed and the
// result does not depend on scheduling. Equal depths keep the lower index.
//
// A Rasterizer reuses its buffers between calls and is not safe for
// concurrent use.
type Rasterizer struct {
	// Workers bounds the number of tiles rasterized at once. Zero means
	// GOMAXPROCS.
	Workers int
	// TileRows is the height of one tile in pixels. Zero selects a default.
	TileRows int

	zbuf  []float64
	ndc   []math3d.Vec3
	setup []triSetup
	bins  [][]int32
	out   *RasterBuffer
}

// NewRasterizer creates a rasterizer with the given worker bound.
func NewRasterizer(workers int) *Rasterizer {
	return &Rasterizer{Workers: workers, TileRows: defaultTileRows}
}

// Rasterize draws tri over vertices with the row-vector projection proj
// into an h×w raster buffer. Vertices are in camera space with the camera
// at the origin; triangles facing away from the origin are culled.
//
// The returned buffer is owned by the rasterizer and is overwritten by the
// next call.
func (r *Rasterizer) Rasterize(vertices []math3d.Vec3, tri [][3]int32, proj math3d.Mat4, h, w int) *RasterBuffer {
	r.reset(len(vertices), len(tri), h, w)
	out := r.out
	if h <= 0 || w <= 0 {
		return out
	}

	ndc := r.ndc
	parallel.For(r.Workers, len(vertices), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			clip := proj.MulVec4(math3d.V4FromV3(vertices[i], 1))
			ndc[i] = math3d.V3(clip.X/clip.W, clip.Y/clip.W, clip.Z/clip.W)
		}
	})

	setup := r.setup
	parallel.For(r.Workers, len(tri), func(lo, hi int) {
		for t := lo; t < hi; t++ {
			setup[t] = setupTriangle(vertices, ndc, tri[t], h, w)
		}
	})

	tileRows := r.TileRows
	if tileRows <= 0 {
		tileRows = defaultTileRows
	}
	for t := range setup {
		s := &setup[t]
		if !s.visible {
			continue
		}
		for b := s.minY / tileRows; b <= s.maxY/tileRows; b++ {
			r.bins[b] = append(r.bins[b], int32(t))
		}
	}

	parallel.Each(r.Workers, len(r.bins), func(b int) {
		y0 := b * tileRows
		y1 := min(y0+tileRows, h) - 1
		for _, t := range r.bins[b] {
			r.drawTriangle(&setup[t], int(t), y0, y1, h, w)
		}
	})
	return out
}

// reset sizes the arena for a frame and clears the depth and output
// buffers.
func (r *Rasterizer) reset(nv, nt, h, w int) {
	h, w = max(h, 0), max(w, 0)
	px := h * w
	if cap(r.zbuf) < px {
		r.zbuf = make([]float64, px)
	}
	r.zbuf = r.zbuf[:px]
	for i := range r.zbuf {
		r.zbuf[i] = math.Inf(1)
	}

	if r.out == nil || cap(r.out.Data) < px*RasterChannels {
		r.out = NewRasterBuffer(w, h)
	}
	r.out.Width, r.out.Height = w, h
	r.out.Data = r.out.Data[:px*RasterChannels]
	clear(r.out.Data)

	if cap(r.ndc) < nv {
		r.ndc = make([]math3d.Vec3, nv)
	}
	r.ndc = r.ndc[:nv]
	if cap(r.setup) < nt {
		r.setup = make([]triSetup, nt)
	}
	r.setup = r.setup[:nt]

	tileRows := r.TileRows
	if tileRows <= 0 {
		tileRows = defaultTileRows
	}
	nb := (h + tileRows - 1) / tileRows
	if cap(r.bins) < nb {
		r.bins = append(r.bins[:cap(r.bins)], make([][]int32, nb-cap(r.bins))...)
	}
	r.bins = r.bins[:nb]
	for i := range r.bins {
		r.bins[i] = r.bins[i][:0]
	}
}

// setupTriangle applies the frustum and back-face tests and computes the
// pixel and NDC bounding boxes of one triangle.
func setupTriangle(vertices, ndc []math3d.Vec3, t [3]int32, h, w int) triSetup {
	var s triSetup
	for _, i := range t {
		if i < 0 || int(i) >= len(ndc) {
			return s
		}
	}
	p0, p1, p2 := ndc[t[0]], ndc[t[1]], ndc[t[2]]
	if !p0.IsFinite() || !p1.IsFinite() || !p2.IsFinite() {
		return s
	}
	if max(p0.Z, p1.Z, p2.Z) < -1 || min(p0.Z, p1.Z, p2.Z) > 1 {
		return s
	}

	v0, v1, v2 := vertices[t[0]], vertices[t[1]], vertices[t[2]]
	n := v1.Sub(v0).Cross(v2.Sub(v0))
	// The camera sits at the origin, so v0 is the view direction.
	if n.Dot(v0) >= 0 {
		return s
	}

	toPixel := func(v float64, size int) float64 {
		return (v + 1) * 0.5 * float64(size-1)
	}
	px0, px1, px2 := toPixel(p0.X, w), toPixel(p1.X, w), toPixel(p2.X, w)
	py0, py1, py2 := toPixel(p0.Y, h), toPixel(p1.Y, h), toPixel(p2.Y, h)

	s.minX = max(0, int(math.Floor(min(px0, px1, px2))-1))
	s.maxX = min(w-1, int(math.Ceil(max(px0, px1, px2))+1))
	s.minY = max(0, int(math.Floor(min(py0, py1, py2))-1))
	s.maxY = min(h-1, int(math.Ceil(max(py0, py1, py2))+1))
	if s.minX > s.maxX || s.minY > s.maxY {
		return s
	}

	s.nMinX, s.nMaxX = min(p0.X, p1.X, p2.X), max(p0.X, p1.X, p2.X)
	s.nMinY, s.nMaxY = min(p0.Y, p1.Y, p2.Y), max(p0.Y, p1.Y, p2.Y)
	s.ndc = [3]math3d.Vec3{p0, p1, p2}
	s.visible = true
	return s
}

// drawTriangle scans the rows [y0, y1] of a triangle's bounding box.
func (r *Rasterizer) drawTriangle(s *triSetup, t, y0, y1, h, w int) {
	p0, p1, p2 := s.ndc[0], s.ndc[1], s.ndc[2]
	zbuf, data := r.zbuf, r.out.Data

	for y := max(s.minY, y0); y <= min(s.maxY, y1); y++ {
		ny := (float64(y)+0.5)/float64(h)*2 - 1
		if ny < s.nMinY || ny > s.nMaxY {
			continue
		}
		for x := s.minX; x <= s.maxX; x++ {
			nx := (float64(x)+0.5)/float64(w)*2 - 1
			if nx < s.nMinX || nx > s.nMaxX {
				continue
			}
			w0, w1, w2, ok := barycentric(nx, ny, p0, p1, p2)
			if !ok || w0 < -insideEpsilon || w1 < -insideEpsilon || w2 < -insideEpsilon {
				continue
			}
			z := w0*p0.Z + w1*p1.Z + w2*p2.Z
			idx := y*w + x
			if z < zbuf[idx] {
				zbuf[idx] = z
				o := idx * RasterChannels
				data[o] = max(w0, 0)
				data[o+1] = max(w1, 0)
				data[o+2] = z
				data[o+3] = float64(t + 1)
			}
		}
	}
}

// barycentric returns the weights of (px, py) with respect to the xy
// projection of p0, p1, p2. ok is false when the triangle is degenerate.
func barycentric(px, py float64, p0, p1, p2 math3d.Vec3) (w0, w1, w2 float64, ok bool) {
	v0x, v0y := p1.X-p0.X, p1.Y-p0.Y
	v1x, v1y := p2.X-p0.X, p2.Y-p0.Y
	v2x, v2y := px-p0.X, py-p0.Y

	d00 := v0x*v0x + v0y*v0y
	d01 := v0x*v1x + v0y*v1y
	d11 := v1x*v1x + v1y*v1y
	d20 := v2x*v0x + v2y*v0y
	d21 := v2x*v1x + v2y*v1y

	denom := d00*d11 - d01*d01
	if math.Abs(denom) < minDenom {
		return 0, 0, 0, false
	}
	w1 = (d11*d20 - d01*d21) / denom
	w2 = (d00*d21 - d01*d20) / denom
	w0 = 1 - w1 - w2
	return w0, w1, w2, true
}
