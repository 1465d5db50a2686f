package render

import (
	"math"
	"slices"
	"testing"

	"github.com/taigrr/facemask/pkg/bfm/bfmtest"
	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/math3d"
)

const epsilon = 1e-9

// frontTriangle faces the camera at the origin at depth z.
func frontTriangle(z float64) []math3d.Vec3 {
	return []math3d.Vec3{
		math3d.V3(-1, -1, z),
		math3d.V3(0, 1, z),
		math3d.V3(1, -1, z),
	}
}

func TestProjectionMatrix(t *testing.T) {
	want := math3d.Mat4{
		9.0625, 0, 0, 0,
		0, 9.0625, 0, 0,
		0, 0, 2, 1,
		0, 0, -15, 0,
	}
	got := NewCamera().ProjectionMatrix()
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("ProjectionMatrix()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	cam := NewCamera()
	cam.SetSize(112)
	if got := cam.ProjectionMatrix()[0]; math.Abs(got-1015.0/56) > 1e-9 {
		t.Errorf("ProjectionMatrix()[0] after SetSize(112) = %v, want %v", got, 1015.0/56)
	}
}

func TestRasterizeSingleTriangle(t *testing.T) {
	proj := NewCamera().ProjectionMatrix()
	tri := [][3]int32{{0, 1, 2}}

	tests := []struct {
		name     string
		vertices []math3d.Vec3
		covered  bool
	}{
		{"front facing", frontTriangle(10), true},
		{"back facing", []math3d.Vec3{
			math3d.V3(-1, -1, 10),
			math3d.V3(1, -1, 10),
			math3d.V3(0, 1, 10),
		}, false},
		{"beyond far plane", frontTriangle(20), false},
		{"before near plane", frontTriangle(4), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRasterizer(1)
			rast := r.Rasterize(tc.vertices, tri, proj, 224, 224)
			if rast.Width != 224 || rast.Height != 224 {
				t.Fatalf("buffer size = %dx%d, want 224x224", rast.Width, rast.Height)
			}
			id := rast.TriangleID(112, 112)
			if tc.covered && id != 1 {
				t.Errorf("center id = %d, want 1", id)
			}
			if !tc.covered && rast.Covered() != 0 {
				t.Errorf("covered = %d pixels, want 0", rast.Covered())
			}
			if rast.TriangleID(0, 0) != 0 {
				t.Error("corner pixel should be background")
			}
		})
	}
}

func TestRasterizeRecord(t *testing.T) {
	proj := NewCamera().ProjectionMatrix()
	rast := NewRasterizer(1).Rasterize(frontTriangle(10), [][3]int32{{0, 1, 2}}, proj, 224, 224)

	w0, w1, z, id := rast.At(112, 112)
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}
	if w0 < 0 || w1 < 0 || w0+w1 > 1+epsilon {
		t.Errorf("weights (%v, %v) out of range", w0, w1)
	}
	// A plane at z=10 maps to NDC z = 2 - 15/10.
	if math.Abs(z-0.5) > 1e-9 {
		t.Errorf("z = %v, want 0.5", z)
	}

	mask := rast.Mask()
	if mask.GrayAt(112, 112).Y != 255 || mask.GrayAt(0, 0).Y != 0 {
		t.Error("mask does not match coverage")
	}
}

func TestRasterizeNearestWins(t *testing.T) {
	proj := NewCamera().ProjectionMatrix()
	vertices := append(frontTriangle(12), frontTriangle(8)...)

	tests := []struct {
		name string
		tri  [][3]int32
		want int
	}{
		{"far first", [][3]int32{{0, 1, 2}, {3, 4, 5}}, 2},
		{"near first", [][3]int32{{3, 4, 5}, {0, 1, 2}}, 1},
		{"equal depth keeps lower index", [][3]int32{{0, 1, 2}, {0, 1, 2}}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &Rasterizer{Workers: 4, TileRows: 3}
			rast := r.Rasterize(vertices, tc.tri, proj, 64, 64)
			if got := rast.TriangleID(32, 32); got != tc.want {
				t.Errorf("center id = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRasterizeDeterministic(t *testing.T) {
	m := bfmtest.Grid(24)
	p, err := face.NewReconstructor(m).Reconstruct(face.Coefficients{})
	if err != nil {
		t.Fatal(err)
	}
	vertices := make([]math3d.Vec3, len(p.Vertex))
	for i, v := range p.Vertex {
		vertices[i] = math3d.V3(v.X, -v.Y, v.Z)
	}
	proj := NewCamera().ProjectionMatrix()

	ref := NewRasterizer(1).Rasterize(vertices, m.Tri, proj, 224, 224)
	want := slices.Clone(ref.Data)
	if ref.Covered() == 0 {
		t.Fatal("grid model left the frame empty")
	}

	for _, cfg := range []struct{ workers, rows int }{{2, 1}, {8, 7}, {16, 16}, {3, 224}} {
		r := &Rasterizer{Workers: cfg.workers, TileRows: cfg.rows}
		got := r.Rasterize(vertices, m.Tri, proj, 224, 224)
		if !slices.Equal(got.Data, want) {
			t.Errorf("workers=%d rows=%d: raster differs from single-threaded result", cfg.workers, cfg.rows)
		}
	}
}

func TestRasterizerReuse(t *testing.T) {
	proj := NewCamera().ProjectionMatrix()
	r := NewRasterizer(2)

	first := r.Rasterize(frontTriangle(10), [][3]int32{{0, 1, 2}}, proj, 224, 224)
	if first.Covered() == 0 {
		t.Fatal("first frame is empty")
	}

	second := r.Rasterize(frontTriangle(10), nil, proj, 32, 48)
	if second.Width != 48 || second.Height != 32 {
		t.Errorf("size = %dx%d, want 48x32", second.Width, second.Height)
	}
	if second.Covered() != 0 {
		t.Errorf("covered = %d after an empty frame, want 0", second.Covered())
	}

	third := r.Rasterize(frontTriangle(10), [][3]int32{{0, 1, 2}}, proj, 224, 224)
	if third.Covered() != first.Covered() {
		t.Errorf("covered = %d on reuse, want %d", third.Covered(), first.Covered())
	}
}

func TestRasterizeSkipsBadIndices(t *testing.T) {
	proj := NewCamera().ProjectionMatrix()
	rast := NewRasterizer(1).Rasterize(frontTriangle(10), [][3]int32{{0, 1, 7}, {0, 1, 2}}, proj, 64, 64)
	if got := rast.TriangleID(32, 32); got != 2 {
		t.Errorf("center id = %d, want 2", got)
	}
}

func TestBarycentric(t *testing.T) {
	p0 := math3d.V3(0, 0, 0)
	p1 := math3d.V3(1, 0, 0)
	p2 := math3d.V3(0, 1, 0)

	tests := []struct {
		name       string
		px, py     float64
		w0, w1, w2 float64
	}{
		{"vertex 0", 0, 0, 1, 0, 0},
		{"vertex 1", 1, 0, 0, 1, 0},
		{"vertex 2", 0, 1, 0, 0, 1},
		{"centroid", 1.0 / 3, 1.0 / 3, 1.0 / 3, 1.0 / 3, 1.0 / 3},
		{"outside", -1, -1, 3, -1, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w0, w1, w2, ok := barycentric(tc.px, tc.py, p0, p1, p2)
			if !ok {
				t.Fatal("barycentric reported a degenerate triangle")
			}
			if math.Abs(w0-tc.w0) > 1e-9 || math.Abs(w1-tc.w1) > 1e-9 || math.Abs(w2-tc.w2) > 1e-9 {
				t.Errorf("barycentric(%v, %v) = (%v, %v, %v), want (%v, %v, %v)",
					tc.px, tc.py, w0, w1, w2, tc.w0, tc.w1, tc.w2)
			}
		})
	}

	t.Run("degenerate", func(t *testing.T) {
		if _, _, _, ok := barycentric(0.5, 0, p0, p1, math3d.V3(2, 0, 0)); ok {
			t.Error("collinear triangle should be rejected")
		}
	})
}

func BenchmarkRasterizeGrid(b *testing.B) {
	m := bfmtest.Grid(120)
	p, err := face.NewReconstructor(m).Reconstruct(face.Coefficients{})
	if err != nil {
		b.Fatal(err)
	}
	vertices := make([]math3d.Vec3, len(p.Vertex))
	for i, v := range p.Vertex {
		vertices[i] = math3d.V3(v.X, -v.Y, v.Z)
	}
	proj := NewCamera().ProjectionMatrix()
	r := NewRasterizer(0)

	for b.Loop() {
		r.Rasterize(vertices, m.Tri, proj, 224, 224)
	}
}
