package face

import (
	"gonum.org/v1/gonum/mat"

	"github.com/taigrr/facemask/internal/parallel"
	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/math3d"
)

// DefaultCameraDistance is the distance from the camera to the model origin.
const DefaultCameraDistance = 10.0

// Parameter is the per-call geometry of one face. It is created by
// Reconstruct and filled in further by the normal and shading stages.
type Parameter struct {
	// Shape is the model-space geometry.
	Shape []math3d.Vec3
	// Rotation is R^T for R = Rz·Ry·Rx, applied as v·Rotation.
	Rotation math3d.Mat3
	// Translation is added after rotation, before the camera shift.
	Translation math3d.Vec3
	// Vertex is the camera-space geometry after rotation, translation and
	// the camera shift.
	Vertex []math3d.Vec3
	// Texture is the per-vertex albedo in [0,1].
	Texture []math3d.Vec3
	// Normal holds rotated unit vertex normals.
	Normal []math3d.Vec3
	// Shading holds the per-vertex gray shading.
	Shading []math3d.Vec3
}

// Reconstructor expands coefficient vectors against a model.
type Reconstructor struct {
	model *bfm.Model
	// modelErr is the result of validating model once at construction.
	modelErr error

	// CameraDistance is subtracted from to flip z into camera space.
	CameraDistance float64
	// Workers bounds the per-vertex parallelism. Zero means GOMAXPROCS.
	Workers int
}

// NewReconstructor returns a reconstructor bound to model. The model is
// validated once here, and every later call returns that error.
func NewReconstructor(model *bfm.Model) *Reconstructor {
	return &Reconstructor{
		model:          model,
		modelErr:       model.Validate(),
		CameraDistance: DefaultCameraDistance,
	}
}

// Model returns the bound model.
func (r *Reconstructor) Model() *bfm.Model {
	return r.model
}

// Reconstruct computes shape, albedo, rotation and camera-space vertices.
// Normals and shading are left empty.
func (r *Reconstructor) Reconstruct(c Coefficients) (*Parameter, error) {
	m := r.model
	if r.modelErr != nil {
		return nil, r.modelErr
	}

	shape := expand(m.MeanShape, m.IDBase, c.Identity[:], m.ExpBase, c.Expression[:])
	albedo := expand(m.TexMean, m.TexBase, c.Texture[:], nil, nil)

	n := m.VertexCount()
	p := &Parameter{
		Shape:    make([]math3d.Vec3, n),
		Rotation: math3d.EulerRotation(c.Angles[0], c.Angles[1], c.Angles[2]).Transpose(),
		Vertex:   make([]math3d.Vec3, n),
		Texture:  make([]math3d.Vec3, n),
	}
	t := math3d.V3(c.Translation[0], c.Translation[1], c.Translation[2])
	p.Translation = t

	parallel.For(r.Workers, n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			s := math3d.V3(shape.AtVec(3*i), shape.AtVec(3*i+1), shape.AtVec(3*i+2))
			p.Shape[i] = s

			v := p.Rotation.RowMul(s).Add(t)
			v.Z = r.CameraDistance - v.Z
			p.Vertex[i] = v

			p.Texture[i] = math3d.V3(albedo.AtVec(3*i), albedo.AtVec(3*i+1), albedo.AtVec(3*i+2)).Scale(1.0 / 255)
		}
	})
	return p, nil
}

// expand returns mean + a·ca + b·cb. b may be nil.
func expand(mean *mat.VecDense, a *mat.Dense, ca []float64, b *mat.Dense, cb []float64) *mat.VecDense {
	var out mat.VecDense
	out.MulVec(a, mat.NewVecDense(len(ca), ca))
	if b != nil {
		var tmp mat.VecDense
		tmp.MulVec(b, mat.NewVecDense(len(cb), cb))
		out.AddVec(&out, &tmp)
	}
	out.AddVec(&out, mean)
	return &out
}
