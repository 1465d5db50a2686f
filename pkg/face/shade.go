package face

import (
	"github.com/taigrr/facemask/internal/parallel"
	"github.com/taigrr/facemask/pkg/math3d"
)

// Lighting constants of the shape-only render.
const (
	LightIntensity = 1.7
	ShapeAlbedo    = 0.78
)

// lights are the five fixed directions, normalized once.
var lights = [...]math3d.Vec3{
	math3d.V3(-1, 1, 1).Normalize(),
	math3d.V3(1, 1, 1).Normalize(),
	math3d.V3(-1, -1, 1).Normalize(),
	math3d.V3(1, -1, 1).Normalize(),
	math3d.V3(0, 0, 1).Normalize(),
}

// Shade returns a gray Lambertian shading per vertex: the clamped cosine to
// each light times LightIntensity, averaged over the lights and multiplied
// by ShapeAlbedo. All three channels are equal.
func Shade(normals []math3d.Vec3, workers int) []math3d.Vec3 {
	out := make([]math3d.Vec3, len(normals))
	parallel.For(workers, len(normals), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = shadeVertex(normals[i])
		}
	})
	return out
}

func shadeVertex(n math3d.Vec3) math3d.Vec3 {
	var sum float64
	for _, l := range lights {
		term := min(max(n.Dot(l), 0), 1)
		sum += LightIntensity * term
	}
	g := sum / float64(len(lights)) * ShapeAlbedo
	return math3d.V3(g, g, g)
}
