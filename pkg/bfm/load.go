package bfm

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/taigrr/facemask/pkg/math3d"
)

// LoadFile reads and validates a model container from disk.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

// Load reads and validates a model container.
func Load(r io.Reader) (*Model, error) {
	c, err := ReadContainer(r)
	if err != nil {
		return nil, err
	}
	return FromContainer(c)
}

// FromContainer builds a model from decoded arrays. Bases may be stored
// either as 3V×K or K×3V; the v texture coordinate is flipped.
func FromContainer(c *Container) (*Model, error) {
	mean, err := vector(c, KeyMeanShape)
	if err != nil {
		return nil, err
	}
	n := mean.Len()
	if n == 0 || n%3 != 0 {
		return nil, fmt.Errorf("%w: %s has %d values", ErrShape, KeyMeanShape, n)
	}
	v := n / 3

	m := &Model{MeanShape: mean}
	if m.TexMean, err = vector(c, KeyTexMean); err != nil {
		return nil, err
	}
	if m.IDBase, err = basis(c, KeyIDBase, n, IDDims); err != nil {
		return nil, err
	}
	if m.ExpBase, err = basis(c, KeyExpBase, n, ExpDims); err != nil {
		return nil, err
	}
	if m.TexBase, err = basis(c, KeyTexBase, n, TexDims); err != nil {
		return nil, err
	}

	pb, err := ints(c, KeyPointBuf, v*NeighborSlots)
	if err != nil {
		return nil, err
	}
	m.PointBuf = make([][NeighborSlots]int32, v)
	for i := range m.PointBuf {
		copy(m.PointBuf[i][:], pb[i*NeighborSlots:])
	}

	tri, err := ints(c, KeyTri, -1)
	if err != nil {
		return nil, err
	}
	if len(tri)%3 != 0 {
		return nil, fmt.Errorf("%w: %s has %d values", ErrShape, KeyTri, len(tri))
	}
	m.Tri = make([][3]int32, len(tri)/3)
	for i := range m.Tri {
		copy(m.Tri[i][:], tri[3*i:])
	}

	uvArr, ok := c.Get(KeyUV)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArray, KeyUV)
	}
	uv, err := uvArr.Float64s()
	if err != nil {
		return nil, err
	}
	if len(uv) != 2*v {
		return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrShape, KeyUV, len(uv), 2*v)
	}
	m.UV = make([]math3d.Vec2, v)
	for i := range m.UV {
		m.UV[i] = math3d.V2(uv[2*i], 1-uv[2*i+1])
	}

	if kp, ok := c.Get(KeyKeyPoints); ok {
		if m.KeyPoints, err = kp.Int32s(); err != nil {
			return nil, err
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Container encodes the model in its on-disk layout: float32 arrays,
// bases as 3V×K and the v coordinate unflipped.
func (m *Model) Container() *Container {
	v := m.VertexCount()
	c := &Container{}

	c.Add(NewFloat32Array(KeyMeanShape, []int{1, 3 * v}, toFloat32(m.MeanShape.RawVector().Data)))
	c.Add(NewFloat32Array(KeyIDBase, []int{3 * v, IDDims}, denseData(m.IDBase)))
	c.Add(NewFloat32Array(KeyExpBase, []int{3 * v, ExpDims}, denseData(m.ExpBase)))
	c.Add(NewFloat32Array(KeyTexMean, []int{1, 3 * v}, toFloat32(m.TexMean.RawVector().Data)))
	c.Add(NewFloat32Array(KeyTexBase, []int{3 * v, TexDims}, denseData(m.TexBase)))

	pb := make([]int32, 0, v*NeighborSlots)
	for _, nb := range m.PointBuf {
		pb = append(pb, nb[:]...)
	}
	c.Add(NewInt32Array(KeyPointBuf, []int{v, NeighborSlots}, pb))

	tri := make([]int32, 0, 3*len(m.Tri))
	for _, t := range m.Tri {
		tri = append(tri, t[:]...)
	}
	c.Add(NewInt32Array(KeyTri, []int{len(m.Tri), 3}, tri))

	uv := make([]float32, 0, 2*v)
	for _, p := range m.UV {
		uv = append(uv, float32(p.X), float32(1-p.Y))
	}
	c.Add(NewFloat32Array(KeyUV, []int{v, 2}, uv))

	if len(m.KeyPoints) > 0 {
		c.Add(NewInt32Array(KeyKeyPoints, []int{len(m.KeyPoints)}, m.KeyPoints))
	}
	return c
}

func vector(c *Container, name string) (*mat.VecDense, error) {
	a, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArray, name)
	}
	data, err := a.Float64s()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrShape, name)
	}
	return mat.NewVecDense(len(data), data), nil
}

func basis(c *Container, name string, rows, cols int) (*mat.Dense, error) {
	a, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArray, name)
	}
	data, err := a.Float64s()
	if err != nil {
		return nil, err
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %s has %d values, want %dx%d", ErrShape, name, len(data), rows, cols)
	}
	b := mat.NewDense(rows, cols, data)
	if len(a.Shape) == 2 && a.Shape[0] == cols && a.Shape[1] == rows {
		// stored K×3V
		t := mat.NewDense(cols, rows, data)
		b = mat.DenseCopyOf(t.T())
	}
	return b, nil
}

func ints(c *Container, name string, want int) ([]int32, error) {
	a, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArray, name)
	}
	v, err := a.Int32s()
	if err != nil {
		return nil, err
	}
	if want >= 0 && len(v) != want {
		return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrShape, name, len(v), want)
	}
	return v, nil
}

func denseData(d *mat.Dense) []float32 {
	r, c := d.Dims()
	out := make([]float32, 0, r*c)
	for i := range r {
		for j := range c {
			out = append(out, float32(d.At(i, j)))
		}
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
