package models

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/taigrr/facemask/pkg/math3d"
)

// WriteGLB encodes m as a binary glTF with positions, normals, UVs, vertex
// colors and 32-bit indices in a single primitive.
func WriteGLB(w io.Writer, m *Mesh) error {
	doc := buildDocument(m)
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode glb: %w", err)
	}
	return nil
}

// SaveGLB writes m to path as binary glTF.
func SaveGLB(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteGLB(f, m); err != nil {
		return err
	}
	return f.Close()
}

func buildDocument(m *Mesh) *gltf.Document {
	positions := make([][3]float32, len(m.Vertices))
	normals := make([][3]float32, len(m.Vertices))
	uvs := make([][2]float32, len(m.Vertices))
	colors := make([][3]uint8, len(m.Vertices))
	for i, v := range m.Vertices {
		positions[i] = [3]float32{float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z)}
		normals[i] = [3]float32{float32(v.Normal.X), float32(v.Normal.Y), float32(v.Normal.Z)}
		// glTF puts V=0 at the top of the image, like the model UVs.
		uvs[i] = [2]float32{float32(v.UV.X), float32(v.UV.Y)}
		colors[i] = [3]uint8{unorm8(v.Color.X), unorm8(v.Color.Y), unorm8(v.Color.Z)}
	}
	indices := make([]uint32, 0, 3*len(m.Faces))
	for _, f := range m.Faces {
		indices = append(indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}

	doc := gltf.NewDocument()
	attrs := gltf.PrimitiveAttributes{
		gltf.POSITION:   modeler.WritePosition(doc, positions),
		gltf.NORMAL:     modeler.WriteNormal(doc, normals),
		gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
		gltf.COLOR_0:    modeler.WriteColor(doc, colors),
	}
	doc.Meshes = []*gltf.Mesh{{
		Name: m.Name,
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
			Attributes: attrs,
			Mode:       gltf.PrimitiveTriangles,
		}},
	}}
	doc.Nodes = []*gltf.Node{{Name: m.Name, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc
}

// unorm8 maps [0,1] to a normalized byte.
func unorm8(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 1) * 255))
}

// LoadGLB loads a binary glTF file.
func LoadGLB(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return meshFromDocument(doc, filepath.Base(path))
}

// ReadGLB decodes a binary glTF stream.
func ReadGLB(r io.Reader) (*Mesh, error) {
	var doc gltf.Document
	if err := gltf.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}
	return meshFromDocument(&doc, "face")
}

func meshFromDocument(doc *gltf.Document, name string) (*Mesh, error) {
	mesh := NewMesh(name)
	for _, m := range doc.Meshes {
		if err := processMesh(doc, m, mesh); err != nil {
			return nil, fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
	}

	hasNormals := false
	for _, v := range mesh.Vertices {
		if v.Normal.Len() > 0.001 {
			hasNormals = true
			break
		}
	}
	if !hasNormals {
		mesh.CalculateSmoothNormals()
	}

	mesh.CalculateBounds()
	return mesh, nil
}

// processMesh appends the triangle primitives of a glTF mesh.
func processMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) error {
	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			// Skip non-triangle primitives (lines, points, etc)
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3Accessor(doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		var normals []math3d.Vec3
		if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
			if normals, err = readVec3Accessor(doc, idx); err != nil {
				return fmt.Errorf("read normals: %w", err)
			}
		}

		var uvs []math3d.Vec2
		if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
			if uvs, err = readVec2Accessor(doc, idx); err != nil {
				return fmt.Errorf("read uvs: %w", err)
			}
		}

		var colors []math3d.Vec3
		if idx, ok := prim.Attributes[gltf.COLOR_0]; ok {
			if colors, err = readVec3Accessor(doc, idx); err != nil {
				return fmt.Errorf("read colors: %w", err)
			}
		}

		base := len(mesh.Vertices)
		for i := range positions {
			v := MeshVertex{Position: positions[i]}
			if i < len(normals) {
				v.Normal = normals[i]
			}
			if i < len(uvs) {
				v.UV = uvs[i]
			}
			if i < len(colors) {
				v.Color = colors[i]
			}
			mesh.Vertices = append(mesh.Vertices, v)
		}

		if prim.Indices != nil {
			indices, err := readIndices(doc, *prim.Indices)
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
			for i := 0; i+2 < len(indices); i += 3 {
				mesh.Faces = append(mesh.Faces, [3]int{base + indices[i], base + indices[i+1], base + indices[i+2]})
			}
		} else {
			// No indices, assume sequential triangles
			for i := 0; i+2 < len(positions); i += 3 {
				mesh.Faces = append(mesh.Faces, [3]int{base + i, base + i + 1, base + i + 2})
			}
		}
	}

	for _, f := range mesh.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(mesh.Vertices) {
				return fmt.Errorf("index %d out of range [0, %d)", idx, len(mesh.Vertices))
			}
		}
	}
	return nil
}

// readVec3Accessor reads float or normalized unsigned VEC3 data.
func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	vals, err := readComponents(doc, accessorIdx, gltf.AccessorVec3)
	if err != nil {
		return nil, err
	}
	out := make([]math3d.Vec3, len(vals)/3)
	for i := range out {
		out[i] = math3d.V3(vals[3*i], vals[3*i+1], vals[3*i+2])
	}
	return out, nil
}

// readVec2Accessor reads float VEC2 data.
func readVec2Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec2, error) {
	vals, err := readComponents(doc, accessorIdx, gltf.AccessorVec2)
	if err != nil {
		return nil, err
	}
	out := make([]math3d.Vec2, len(vals)/2)
	for i := range out {
		out[i] = math3d.V2(vals[2*i], vals[2*i+1])
	}
	return out, nil
}

// readIndices reads unsigned SCALAR index data.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Normalized {
		return nil, fmt.Errorf("normalized index accessor")
	}
	vals, err := readComponents(doc, accessorIdx, gltf.AccessorScalar)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out, nil
}

// readComponents reads every component of an accessor as float64.
// Normalized unsigned integers are scaled to [0,1].
func readComponents(doc *gltf.Document, accessorIdx int, want gltf.AccessorType) ([]float64, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != want {
		return nil, fmt.Errorf("expected %v, got %v", want, accessor.Type)
	}
	if accessor.BufferView == nil {
		return nil, fmt.Errorf("accessor has no buffer view")
	}

	bufferView := doc.BufferViews[*accessor.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]
	if buffer.URI != "" && buffer.Data == nil {
		return nil, fmt.Errorf("external buffers not supported yet")
	}
	if buffer.Data == nil {
		return nil, fmt.Errorf("buffer has no data")
	}

	size, read, scale, err := componentReader(accessor.ComponentType)
	if err != nil {
		return nil, err
	}
	if !accessor.Normalized {
		scale = 1
	}
	n := componentsPer(want)
	stride := bufferView.ByteStride
	if stride == 0 {
		stride = size * n
	}
	start := bufferView.ByteOffset + accessor.ByteOffset
	if accessor.Count > 0 {
		end := start + (accessor.Count-1)*stride + size*n
		if end > len(buffer.Data) {
			return nil, fmt.Errorf("accessor reads past the buffer (%d > %d)", end, len(buffer.Data))
		}
	}

	out := make([]float64, 0, accessor.Count*n)
	for i := range accessor.Count {
		offset := start + i*stride
		for j := range n {
			out = append(out, read(buffer.Data[offset+j*size:])*scale)
		}
	}
	return out, nil
}

// componentReader returns the byte size, decoder and normalization scale of
// a component type.
func componentReader(ct gltf.ComponentType) (int, func([]byte) float64, float64, error) {
	switch ct {
	case gltf.ComponentFloat:
		return 4, func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, 1, nil
	case gltf.ComponentUbyte:
		return 1, func(b []byte) float64 { return float64(b[0]) }, 1.0 / math.MaxUint8, nil
	case gltf.ComponentUshort:
		return 2, func(b []byte) float64 {
			return float64(binary.LittleEndian.Uint16(b))
		}, 1.0 / math.MaxUint16, nil
	case gltf.ComponentUint:
		return 4, func(b []byte) float64 {
			return float64(binary.LittleEndian.Uint32(b))
		}, 1.0 / math.MaxUint32, nil
	}
	return 0, nil, 0, fmt.Errorf("unsupported component type %v", ct)
}

func componentsPer(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	}
	return 1
}
