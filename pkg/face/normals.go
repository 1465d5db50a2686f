package face

import (
	"fmt"

	"github.com/taigrr/facemask/internal/parallel"
	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/math3d"
)

// degenerateArea is the cross-product length below which Strict mode
// reports a triangle as degenerate.
const degenerateArea = 1e-12

// NormalOptions tunes ComputeNormals.
type NormalOptions struct {
	// Strict makes zero-area triangles an error instead of contributing a
	// zero normal.
	Strict  bool
	Workers int
}

// ComputeNormals returns unit vertex normals of shape rotated by rotation.
// Each triangle normal is normalize((v1-v2)×(v2-v3)); each vertex sums the
// normals of the triangles in its point buffer and normalizes the sum.
func ComputeNormals(shape []math3d.Vec3, rotation math3d.Mat3, tri [][3]int32, pointBuf [][bfm.NeighborSlots]int32, opts NormalOptions) ([]math3d.Vec3, error) {
	faceNorm := make([]math3d.Vec3, len(tri))
	degenerate := make([]bool, len(tri))

	parallel.For(opts.Workers, len(tri), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			t := tri[i]
			v1, v2, v3 := shape[t[0]], shape[t[1]], shape[t[2]]
			n := v1.Sub(v2).Cross(v2.Sub(v3))
			degenerate[i] = n.Len() < degenerateArea
			faceNorm[i] = n.Normalize()
		}
	})

	if opts.Strict {
		for i, d := range degenerate {
			if d {
				return nil, fmt.Errorf("%w: triangle %d has zero area", ErrNumericDegeneracy, i)
			}
		}
	}

	out := make([]math3d.Vec3, len(pointBuf))
	parallel.For(opts.Workers, len(pointBuf), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			var sum math3d.Vec3
			for _, t := range pointBuf[i] {
				sum = sum.Add(faceNorm[t])
			}
			out[i] = rotation.RowMul(sum.Normalize())
		}
	})
	return out, nil
}

// Normals fills p.Normal from p.Shape using the reconstructor's model.
func (r *Reconstructor) Normals(p *Parameter, strict bool) error {
	m := r.model
	if r.modelErr != nil {
		return r.modelErr
	}
	n, err := ComputeNormals(p.Shape, p.Rotation, m.Tri, m.PointBuf, NormalOptions{Strict: strict, Workers: r.Workers})
	if err != nil {
		return err
	}
	p.Normal = n
	return nil
}
