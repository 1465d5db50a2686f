// Package bfm holds the morphable face model: the mean shape and texture,
// their identity, expression and albedo bases, the triangle topology, the
// per-vertex neighbor table and the UV layout.
//
// A Model is loaded once and shared read-only by every render call.
package bfm

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/taigrr/facemask/pkg/math3d"
)

// Dimensions of the reference asset and of the coefficient sub-ranges.
const (
	NumVertices   = 35709
	NumTriangles  = 70789
	IDDims        = 80
	ExpDims       = 64
	TexDims       = 80
	NeighborSlots = 8
	NumKeyPoints  = 68
)

// Array names inside the model container.
const (
	KeyMeanShape = "mean_shape"
	KeyIDBase    = "id_base"
	KeyExpBase   = "exp_base"
	KeyTexMean   = "tex_mean"
	KeyTexBase   = "tex_base"
	KeyPointBuf  = "point_buf"
	KeyTri       = "tri"
	KeyUV        = "bfm_uv"
	KeyKeyPoints = "key_points"
)

var (
	// ErrModelNotLoaded is returned when a render is attempted without a model.
	ErrModelNotLoaded = errors.New("bfm: model not loaded")
	// ErrBadContainer is returned for malformed container data.
	ErrBadContainer = errors.New("bfm: bad container")
	// ErrMissingArray is returned when a required array is absent.
	ErrMissingArray = errors.New("bfm: missing array")
	// ErrShape is returned when arrays disagree on their dimensions.
	ErrShape = errors.New("bfm: inconsistent shape")
)

// Model is the morphable model. Bases are stored as 3V×K matrices so a
// coefficient vector c expands to base·c, with coordinates interleaved
// x0 y0 z0 x1 ...
type Model struct {
	MeanShape *mat.VecDense
	IDBase    *mat.Dense
	ExpBase   *mat.Dense
	TexMean   *mat.VecDense
	TexBase   *mat.Dense

	// PointBuf lists, per vertex, triangles touching it. Every slot holds a
	// valid triangle index; vertices with fewer neighbors repeat entries.
	PointBuf [][NeighborSlots]int32
	Tri      [][3]int32

	// UV holds texture coordinates with v already flipped to image rows.
	UV []math3d.Vec2

	// KeyPoints lists the vertices of the 68 facial landmarks. Optional.
	KeyPoints []int32
}

// VertexCount returns the number of vertices.
func (m *Model) VertexCount() int {
	if m == nil || m.MeanShape == nil {
		return 0
	}
	return m.MeanShape.Len() / 3
}

// TriangleCount returns the number of triangles.
func (m *Model) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Tri)
}

// Loaded reports whether the model carries geometry.
func (m *Model) Loaded() bool {
	return m.VertexCount() > 0 && m.TriangleCount() > 0
}

// Validate checks that all arrays agree on the vertex count and that every
// index in Tri, PointBuf and KeyPoints is in range.
func (m *Model) Validate() error {
	if !m.Loaded() {
		return ErrModelNotLoaded
	}
	v := m.VertexCount()
	n := 3 * v
	if m.MeanShape.Len() != n {
		return fmt.Errorf("%w: mean shape has %d values, not a multiple of 3", ErrShape, m.MeanShape.Len())
	}
	if err := checkBase(KeyIDBase, m.IDBase, n, IDDims); err != nil {
		return err
	}
	if err := checkBase(KeyExpBase, m.ExpBase, n, ExpDims); err != nil {
		return err
	}
	if err := checkBase(KeyTexBase, m.TexBase, n, TexDims); err != nil {
		return err
	}
	if m.TexMean == nil || m.TexMean.Len() != n {
		return fmt.Errorf("%w: %s length does not match %d", ErrShape, KeyTexMean, n)
	}
	if len(m.PointBuf) != v {
		return fmt.Errorf("%w: %s has %d rows, want %d", ErrShape, KeyPointBuf, len(m.PointBuf), v)
	}
	if len(m.UV) != v {
		return fmt.Errorf("%w: %s has %d rows, want %d", ErrShape, KeyUV, len(m.UV), v)
	}

	for i, t := range m.Tri {
		for _, idx := range t {
			if idx < 0 || int(idx) >= v {
				return fmt.Errorf("%w: triangle %d references vertex %d", ErrShape, i, idx)
			}
		}
	}
	tris := int32(len(m.Tri))
	for i, nb := range m.PointBuf {
		for _, idx := range nb {
			if idx < 0 || idx >= tris {
				return fmt.Errorf("%w: vertex %d references triangle %d", ErrShape, i, idx)
			}
		}
	}
	for i, idx := range m.KeyPoints {
		if idx < 0 || int(idx) >= v {
			return fmt.Errorf("%w: key point %d references vertex %d", ErrShape, i, idx)
		}
	}
	return nil
}

func checkBase(name string, b *mat.Dense, rows, cols int) error {
	if b == nil {
		return fmt.Errorf("%w: %s", ErrMissingArray, name)
	}
	r, c := b.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrShape, name, r, c, rows, cols)
	}
	return nil
}
