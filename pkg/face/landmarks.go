package face

import (
	"fmt"

	"github.com/taigrr/facemask/pkg/math3d"
)

// NumLandmarks is the number of 2D landmarks carried in FormatInfo.
const NumLandmarks = 68

// Pinhole intrinsics of the regressor's camera, in pixels of a 224 px input.
const (
	Focal  = 1015.0
	Center = 112.0
)

// ProjectLandmarks projects the given vertices of p through the pinhole
// camera and returns image points with y growing downward in an image of
// height size.
func ProjectLandmarks(p *Parameter, keyPoints []int32, size int) ([]math3d.Vec2, error) {
	out := make([]math3d.Vec2, len(keyPoints))
	for i, k := range keyPoints {
		if k < 0 || int(k) >= len(p.Vertex) {
			return nil, fmt.Errorf("%w: key point %d references vertex %d", ErrInvalidInput, i, k)
		}
		v := p.Vertex[k]
		if v.Z == 0 {
			return nil, fmt.Errorf("%w: key point %d lies on the camera plane", ErrNumericDegeneracy, i)
		}
		x := Focal*v.X/v.Z + Center
		y := Focal*v.Y/v.Z + Center
		out[i] = math3d.V2(x, float64(size-1)-y)
	}
	return out, nil
}

// Landmark returns landmark i of a flat x,y list.
func Landmark(landmarks [2 * NumLandmarks]int, i int) (x, y int) {
	return landmarks[2*i], landmarks[2*i+1]
}

// FivePoints reduces 68 landmarks to eye centers, nose tip and mouth
// corners, with y flipped so it grows upward in an image of the given
// height.
func FivePoints(landmarks [2 * NumLandmarks]int, height int) [5]math3d.Vec2 {
	mid := func(a, b int) (int, int) {
		ax, ay := Landmark(landmarks, a)
		bx, by := Landmark(landmarks, b)
		return (ax + bx) / 2, (ay + by) / 2
	}
	var pts [5][2]int
	pts[0][0], pts[0][1] = mid(36, 39)
	pts[1][0], pts[1][1] = mid(42, 45)
	pts[2][0], pts[2][1] = Landmark(landmarks, 30)
	pts[3][0], pts[3][1] = Landmark(landmarks, 48)
	pts[4][0], pts[4][1] = Landmark(landmarks, 54)

	var out [5]math3d.Vec2
	for i, p := range pts {
		out[i] = math3d.V2(float64(p[0]), float64(height-1-p[1]))
	}
	return out
}
