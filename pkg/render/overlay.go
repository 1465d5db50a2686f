package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/math3d"
)

// MarkerColor is the default landmark overlay color.
var MarkerColor = color.NRGBA{R: 255, G: 64, B: 64, A: 255}

// landmarkContours groups the 68-point layout into open polylines. The
// eye and lip rings are closed by repeating their first point.
var landmarkContours = [][]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, // jaw
	{17, 18, 19, 20, 21},                                 // right brow
	{22, 23, 24, 25, 26},                                 // left brow
	{27, 28, 29, 30},                                     // nose bridge
	{31, 32, 33, 34, 35},                                 // nostrils
	{36, 37, 38, 39, 40, 41, 36},                         // right eye
	{42, 43, 44, 45, 46, 47, 42},                         // left eye
	{48, 49, 50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 48}, // outer lip
	{60, 61, 62, 63, 64, 65, 66, 67, 60},                 // inner lip
}

// WorldToScreen projects a camera-space point, with y growing downward, to
// pixel coordinates. visible is false behind the camera plane.
func (c *Camera) WorldToScreen(p math3d.Vec3) (x, y float64, visible bool) {
	clip := c.ProjectionMatrix().MulVec4(math3d.V4FromV3(p, 1))
	if clip.W <= 0 {
		return 0, 0, false
	}
	n := float64(c.Size)
	x = (clip.X/clip.W+1)*n/2 - 0.5
	y = (clip.Y/clip.W+1)*n/2 - 0.5
	return x, y, true
}

// DrawLine draws a line from (x0, y0) to (x1, y1) using Bresenham's
// algorithm. The segment is clipped to the pixmap first, so the walk never
// leaves the image however far away the endpoints are.
func (p *Pixmap) DrawLine(x0, y0, x1, y1 int, c color.NRGBA) {
	fx0, fy0, fx1, fy1, ok := clipSegment(float64(x0), float64(y0), float64(x1), float64(y1), p.Width, p.Height)
	if !ok {
		return
	}
	x0, y0, x1, y1 = round(fx0), round(fy0), round(fx1), round(fy1)

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		p.SetPixel(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// clipSegment clips a segment to [0, w-1] x [0, h-1] with the
// Liang-Barsky algorithm. ok is false when nothing of it is inside.
func clipSegment(x0, y0, x1, y1 float64, w, h int) (cx0, cy0, cx1, cy1 float64, ok bool) {
	if w <= 0 || h <= 0 {
		return 0, 0, 0, 0, false
	}
	for _, v := range [4]float64{x0, y0, x1, y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, 0, false
		}
	}
	dx, dy := x1-x0, y1-y0
	xmax, ymax := float64(w-1), float64(h-1)
	ps := [4]float64{-dx, dx, -dy, dy}
	qs := [4]float64{x0, xmax - x0, y0, ymax - y0}

	t0, t1 := 0.0, 1.0
	for i, p := range ps {
		q := qs[i]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = max(t0, r)
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = min(t1, r)
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// DrawMarker draws a cross of the given radius centered on (x, y).
func (p *Pixmap) DrawMarker(x, y, radius int, c color.NRGBA) {
	p.DrawLine(x-radius, y, x+radius, y, c)
	p.DrawLine(x, y-radius, x, y+radius, c)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Overlay draws projected geometry on top of a rendered image.
type Overlay struct {
	camera *Camera
	pix    *Pixmap
}

// NewOverlay returns an overlay drawing into pix through camera.
func NewOverlay(camera *Camera, pix *Pixmap) *Overlay {
	return &Overlay{camera: camera, pix: pix}
}

// DrawLine3D draws a segment between two camera-space points. Segments with
// an endpoint behind the camera are skipped.
func (o *Overlay) DrawLine3D(p1, p2 math3d.Vec3, c color.NRGBA) {
	x1, y1, vis1 := o.camera.WorldToScreen(p1)
	x2, y2, vis2 := o.camera.WorldToScreen(p2)
	if !vis1 || !vis2 {
		return
	}
	x1, y1, x2, y2, ok := clipSegment(x1, y1, x2, y2, o.pix.Width, o.pix.Height)
	if !ok {
		return
	}
	o.pix.DrawLine(round(x1), round(y1), round(x2), round(y2), c)
}

// DrawPoints marks each camera-space point inside the view frustum and
// returns how many were drawn.
func (o *Overlay) DrawPoints(points []math3d.Vec3, c color.NRGBA) int {
	f := NewFrustum(o.camera.ProjectionMatrix())
	radius := max(o.pix.Width/112, 1)
	drawn := 0
	for _, pt := range points {
		if !f.ContainsPoint(pt) {
			continue
		}
		x, y, ok := o.camera.WorldToScreen(pt)
		if !ok {
			continue
		}
		o.pix.DrawMarker(round(x), round(y), radius, c)
		drawn++
	}
	return drawn
}

// DrawLandmarks marks the key points of p. A full 68-point set is also
// joined into the facial contours.
func (o *Overlay) DrawLandmarks(p *face.Parameter, keyPoints []int32, c color.NRGBA) error {
	points := make([]math3d.Vec3, len(keyPoints))
	for i, k := range keyPoints {
		if k < 0 || int(k) >= len(p.Vertex) {
			return fmt.Errorf("%w: key point %d references vertex %d", face.ErrInvalidInput, i, k)
		}
		v := p.Vertex[k]
		points[i] = math3d.V3(v.X, -v.Y, v.Z)
	}
	if len(points) == face.NumLandmarks {
		for _, contour := range landmarkContours {
			for i := 1; i < len(contour); i++ {
				o.DrawLine3D(points[contour[i-1]], points[contour[i]], c)
			}
		}
	}
	o.DrawPoints(points, c)
	return nil
}

// DrawLandmarks overlays the model's key points on res.Image.
func (r *Renderer) DrawLandmarks(res *Result, c color.NRGBA) error {
	if len(r.model.KeyPoints) == 0 {
		return fmt.Errorf("%w: model has no key points", face.ErrInvalidInput)
	}
	return NewOverlay(r.Camera, res.Image).DrawLandmarks(res.Parameter, r.model.KeyPoints, c)
}

func round(v float64) int {
	return int(math.Round(v))
}
