package bfm_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/bfm/bfmtest"
)

func TestGridModelIsValid(t *testing.T) {
	m := bfmtest.Grid(8)
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if got := m.VertexCount(); got != 64 {
		t.Errorf("VertexCount() = %d, want 64", got)
	}
	if got := m.TriangleCount(); got != 2*7*7 {
		t.Errorf("TriangleCount() = %d, want %d", got, 2*7*7)
	}
}

func TestContainerRoundTrip(t *testing.T) {
	m := bfmtest.Grid(6)

	var buf bytes.Buffer
	if _, err := m.Container().WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() = %v", err)
	}
	got, err := bfm.Load(&buf)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if got.VertexCount() != m.VertexCount() || got.TriangleCount() != m.TriangleCount() {
		t.Fatalf("dims = %d/%d, want %d/%d", got.VertexCount(), got.TriangleCount(), m.VertexCount(), m.TriangleCount())
	}
	for i := range m.MeanShape.Len() {
		if d := math.Abs(got.MeanShape.AtVec(i) - m.MeanShape.AtVec(i)); d > 1e-6 {
			t.Fatalf("mean shape[%d] differs by %v", i, d)
		}
	}
	if a, b := got.IDBase.At(5, 7), m.IDBase.At(5, 7); math.Abs(a-b) > 1e-6 {
		t.Errorf("id base (5,7) = %v, want %v", a, b)
	}
	for i := range m.UV {
		if math.Abs(got.UV[i].Y-m.UV[i].Y) > 1e-6 {
			t.Fatalf("uv[%d] = %v, want %v", i, got.UV[i], m.UV[i])
		}
	}
	if got.Tri[3] != m.Tri[3] || got.PointBuf[4] != m.PointBuf[4] {
		t.Error("topology changed in round trip")
	}
	if len(got.KeyPoints) != bfm.NumKeyPoints {
		t.Errorf("key points = %d, want %d", len(got.KeyPoints), bfm.NumKeyPoints)
	}
}

func TestLoadTransposedBasis(t *testing.T) {
	m := bfmtest.Grid(4)
	c := m.Container()

	// Store the identity basis as K×3V.
	rows, cols := m.IDBase.Dims()
	flat := make([]float32, 0, rows*cols)
	for j := range cols {
		for i := range rows {
			flat = append(flat, float32(m.IDBase.At(i, j)))
		}
	}
	c.Add(bfm.NewFloat32Array(bfm.KeyIDBase, []int{cols, rows}, flat))

	got, err := bfm.FromContainer(c)
	if err != nil {
		t.Fatalf("FromContainer() = %v", err)
	}
	if a, b := got.IDBase.At(10, 3), m.IDBase.At(10, 3); math.Abs(a-b) > 1e-6 {
		t.Errorf("id base (10,3) = %v, want %v", a, b)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *bfm.Container)
		want   error
	}{
		{
			name: "missing triangles",
			mutate: func(c *bfm.Container) {
				out := c.Arrays[:0]
				for _, a := range c.Arrays {
					if a.Name != bfm.KeyTri {
						out = append(out, a)
					}
				}
				c.Arrays = out
			},
			want: bfm.ErrMissingArray,
		},
		{
			name: "triangle index out of range",
			mutate: func(c *bfm.Container) {
				c.Add(bfm.NewInt32Array(bfm.KeyTri, []int{1, 3}, []int32{0, 1, 999}))
			},
			want: bfm.ErrShape,
		},
		{
			name: "short basis",
			mutate: func(c *bfm.Container) {
				c.Add(bfm.NewFloat32Array(bfm.KeyExpBase, []int{2}, []float32{1, 2}))
			},
			want: bfm.ErrShape,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := bfmtest.Grid(4).Container()
			tt.mutate(c)
			if _, err := bfm.FromContainer(c); !errors.Is(err, tt.want) {
				t.Errorf("FromContainer() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadContainerRejectsBadHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong version", []byte{2, 0, 0, 0, 0, 0, 0, 0}},
		{"truncated array", []byte{1, 0, 0, 0, 1, 0, 0, 0, 3, 0, 0, 0, 'a'}},
		{"unknown dtype", []byte{1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 'a', 99, 0, 0, 0, 0, 0, 0, 0}},
		{"huge array count", []byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}},
		{"huge array without data", []byte{
			1, 0, 0, 0, 1, 0, 0, 0, // version, count
			1, 0, 0, 0, 'a', // key
			13, 0, 0, 0, 1, 0, 0, 0, // uint8, one dim
			0xff, 0xff, 0xff, 0xff, // shape
			1, 2, 3, 4,
		}},
		{"oversized array", []byte{
			1, 0, 0, 0, 1, 0, 0, 0,
			1, 0, 0, 0, 'a',
			82, 0, 0, 0, 2, 0, 0, 0, // float64, two dims
			0xff, 0xff, 0, 0, 0xff, 0xff, 0, 0,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bfm.ReadContainer(bytes.NewReader(tt.data)); !errors.Is(err, bfm.ErrBadContainer) {
				t.Errorf("ReadContainer() = %v, want ErrBadContainer", err)
			}
		})
	}
}

func TestArrayDTypeConversion(t *testing.T) {
	tests := []struct {
		name string
		arr  *bfm.Array
		want []float64
	}{
		{"uint8", &bfm.Array{DType: bfm.DTypeUint8, Shape: []int{2}, Data: []byte{3, 250}}, []float64{3, 250}},
		{"int16", &bfm.Array{DType: bfm.DTypeInt16, Shape: []int{1}, Data: []byte{0xfe, 0xff}}, []float64{-2}},
		{"float16", &bfm.Array{DType: bfm.DTypeFloat16, Shape: []int{2}, Data: []byte{0x00, 0x3c, 0x00, 0xc0}}, []float64{1, -2}},
		{"int32", bfm.NewInt32Array("i", []int{2}, []int32{-7, 9}), []float64{-7, 9}},
		{"float32", bfm.NewFloat32Array("f", []int{1}, []float32{0.5}), []float64{0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.arr.Float64s()
			if err != nil {
				t.Fatalf("Float64s() = %v", err)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNilModelNotLoaded(t *testing.T) {
	var m *bfm.Model
	if m.Loaded() {
		t.Error("nil model reports loaded")
	}
	if err := (&bfm.Model{}).Validate(); !errors.Is(err, bfm.ErrModelNotLoaded) {
		t.Errorf("Validate() = %v, want ErrModelNotLoaded", err)
	}
}
