// Package models assembles reconstructed faces into meshes and moves them
// in and out of glTF.
package models

import (
	"fmt"

	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/math3d"
)

// Space selects which coordinates of a reconstructed face a mesh carries.
type Space int

const (
	// ModelSpace keeps the shape before pose is applied.
	ModelSpace Space = iota
	// PosedSpace applies rotation and translation but not the camera
	// shift, so the mesh keeps a right-handed frame and its winding.
	PosedSpace
)

// Mesh is an indexed triangle mesh with per-vertex attributes.
type Mesh struct {
	Name     string
	Vertices []MeshVertex
	Faces    [][3]int

	// Bounding box (calculated on build and load)
	BoundsMin math3d.Vec3
	BoundsMax math3d.Vec3
}

// MeshVertex holds all vertex attributes.
type MeshVertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3
	UV       math3d.Vec2
	Color    math3d.Vec3 // albedo in [0,1]
}

// NewMesh creates an empty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{Name: name}
}

// FromParameter builds a mesh from a reconstructed face. UVs and triangles
// come from model. Normals are taken from p when they match the requested
// space and otherwise recomputed from the model's point buffer.
func FromParameter(p *face.Parameter, model *bfm.Model, space Space) (*Mesh, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if p == nil || len(p.Shape) != model.VertexCount() {
		return nil, fmt.Errorf("%w: parameter does not match the model", face.ErrInvalidInput)
	}

	mesh := NewMesh("face")
	mesh.Vertices = make([]MeshVertex, len(p.Shape))
	for i, s := range p.Shape {
		v := MeshVertex{Position: s}
		if space == PosedSpace {
			v.Position = p.Rotation.RowMul(s).Add(p.Translation)
		}
		if i < len(model.UV) {
			v.UV = model.UV[i]
		}
		if i < len(p.Texture) {
			v.Color = p.Texture[i]
		}
		mesh.Vertices[i] = v
	}

	mesh.Faces = make([][3]int, len(model.Tri))
	for i, t := range model.Tri {
		mesh.Faces[i] = [3]int{int(t[0]), int(t[1]), int(t[2])}
	}

	normals := p.Normal
	if space == ModelSpace || len(normals) != len(p.Shape) {
		rotation := p.Rotation
		if space == ModelSpace {
			rotation = math3d.Identity3()
		}
		var err error
		normals, err = face.ComputeNormals(p.Shape, rotation, model.Tri, model.PointBuf, face.NormalOptions{})
		if err != nil {
			return nil, err
		}
	}
	for i := range mesh.Vertices {
		mesh.Vertices[i].Normal = normals[i]
	}
	mesh.CalculateBounds()
	return mesh, nil
}

// CalculateBounds computes the axis-aligned bounding box.
func (m *Mesh) CalculateBounds() {
	if len(m.Vertices) == 0 {
		return
	}

	m.BoundsMin = m.Vertices[0].Position
	m.BoundsMax = m.Vertices[0].Position

	for _, v := range m.Vertices[1:] {
		m.BoundsMin = m.BoundsMin.Min(v.Position)
		m.BoundsMax = m.BoundsMax.Max(v.Position)
	}
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() math3d.Vec3 {
	return m.BoundsMin.Add(m.BoundsMax).Scale(0.5)
}

// Size returns the dimensions of the bounding box.
func (m *Mesh) Size() math3d.Vec3 {
	return m.BoundsMax.Sub(m.BoundsMin)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// CalculateSmoothNormals computes area-weighted averaged vertex normals.
func (m *Mesh) CalculateSmoothNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = math3d.Vec3{}
	}

	for _, f := range m.Faces {
		v0 := m.Vertices[f[0]].Position
		v1 := m.Vertices[f[1]].Position
		v2 := m.Vertices[f[2]].Position

		normal := v1.Sub(v0).Cross(v2.Sub(v0)) // Don't normalize yet

		for _, idx := range f {
			m.Vertices[idx].Normal = m.Vertices[idx].Normal.Add(normal)
		}
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = m.Vertices[i].Normal.Normalize()
	}
}
