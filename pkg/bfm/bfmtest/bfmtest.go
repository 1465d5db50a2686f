// Package bfmtest builds small synthetic face models for tests.
package bfmtest

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/math3d"
)

// HalfWidth is the half extent of the synthetic face in model units.
// At the default camera distance it covers most of a 224 px render.
const HalfWidth = 0.8

// Dome is the height of the face's center above its rim.
const Dome = 0.3

// Grid returns a model whose mean shape is an n×n grid over
// [-HalfWidth, HalfWidth]² bulging toward +Z, with triangles wound
// counter-clockwise when seen from +Z. Bases are small deterministic noise.
func Grid(n int) *bfm.Model {
	if n < 2 {
		n = 2
	}
	v := n * n
	rng := rand.New(rand.NewPCG(1, 2))

	mean := make([]float64, 3*v)
	texMean := make([]float64, 3*v)
	uv := make([]math3d.Vec2, v)
	for r := range n {
		for c := range n {
			i := r*n + c
			x := -HalfWidth + 2*HalfWidth*float64(c)/float64(n-1)
			y := HalfWidth - 2*HalfWidth*float64(r)/float64(n-1)
			z := Dome * (1 - (x*x+y*y)/(2*HalfWidth*HalfWidth))
			mean[3*i], mean[3*i+1], mean[3*i+2] = x, y, z
			texMean[3*i], texMean[3*i+1], texMean[3*i+2] = 200, 160, 140
			uv[i] = math3d.V2(float64(c)/float64(n-1), float64(r)/float64(n-1))
		}
	}

	tri := make([][3]int32, 0, 2*(n-1)*(n-1))
	for r := range n - 1 {
		for c := range n - 1 {
			a := int32(r*n + c)
			b := int32((r+1)*n + c)
			d := int32((r+1)*n + c + 1)
			e := int32(r*n + c + 1)
			tri = append(tri, [3]int32{a, b, e}, [3]int32{b, d, e})
		}
	}

	return &bfm.Model{
		MeanShape: mat.NewVecDense(3*v, mean),
		IDBase:    noise(rng, 3*v, bfm.IDDims, 1e-3),
		ExpBase:   noise(rng, 3*v, bfm.ExpDims, 1e-3),
		TexMean:   mat.NewVecDense(3*v, texMean),
		TexBase:   noise(rng, 3*v, bfm.TexDims, 0.5),
		PointBuf:  PointBuf(v, tri),
		Tri:       tri,
		UV:        uv,
		KeyPoints: keyPoints(v),
	}
}

// PointBuf builds the neighbor table for a mesh, repeating the first
// neighbor to fill unused slots.
func PointBuf(vertices int, tri [][3]int32) [][bfm.NeighborSlots]int32 {
	adj := make([][]int32, vertices)
	for t, f := range tri {
		for _, idx := range f {
			adj[idx] = append(adj[idx], int32(t))
		}
	}
	out := make([][bfm.NeighborSlots]int32, vertices)
	for i, list := range adj {
		for s := range bfm.NeighborSlots {
			switch {
			case s < len(list):
				out[i][s] = list[s]
			case len(list) > 0:
				out[i][s] = list[0]
			}
		}
	}
	return out
}

func noise(rng *rand.Rand, rows, cols int, scale float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * scale
	}
	return mat.NewDense(rows, cols, data)
}

func keyPoints(v int) []int32 {
	kp := make([]int32, bfm.NumKeyPoints)
	for i := range kp {
		kp[i] = int32(i * v / bfm.NumKeyPoints)
	}
	return kp
}
