package render

import (
	"math"

	"github.com/taigrr/facemask/pkg/math3d"
)

// Camera describes the fixed pinhole camera the coefficients were regressed
// against: a square image of Size pixels with focal length Focal, looking
// down +z from Distance units in front of the model origin.
type Camera struct {
	Focal    float64 // focal length in pixels
	Size     int     // image width and height in pixels
	Near     float64 // near clipping plane
	Far      float64 // far clipping plane
	Distance float64 // camera to model origin

	projMatrix math3d.Mat4
	projDirty  bool
}

// NewCamera returns the default 224px camera with focal length 1015.
func NewCamera() *Camera {
	return &Camera{
		Focal:     1015,
		Size:      224,
		Near:      5,
		Far:       15,
		Distance:  10,
		projDirty: true,
	}
}

// FOV returns the vertical field of view in radians.
func (c *Camera) FOV() float64 {
	return 2 * math.Atan(float64(c.Size)/2/c.Focal)
}

// SetSize changes the image size and invalidates the projection.
func (c *Camera) SetSize(size int) {
	c.Size = size
	c.projDirty = true
}

// SetFocal changes the focal length and invalidates the projection.
func (c *Camera) SetFocal(focal float64) {
	c.Focal = focal
	c.projDirty = true
}

// SetClipPlanes sets the near and far clipping planes.
func (c *Camera) SetClipPlanes(near, far float64) {
	c.Near = near
	c.Far = far
	c.projDirty = true
}

// ProjectionMatrix returns the forward-looking perspective matrix. For the
// default camera it maps (x, y, z) to clip space as
//
//	[9.0625x, 9.0625y, 2z-15, z]
func (c *Camera) ProjectionMatrix() math3d.Mat4 {
	if c.projDirty || c.projMatrix == (math3d.Mat4{}) {
		c.projMatrix = math3d.PerspectiveForward(c.FOV(), 1, c.Near, c.Far)
		c.projDirty = false
	}
	return c.projMatrix
}
