package render

import (
	"errors"
	"image/color"
	"math"
	"testing"

	"github.com/taigrr/facemask/pkg/bfm/bfmtest"
	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/math3d"
)

func TestWorldToScreen(t *testing.T) {
	c := NewCamera()
	tests := []struct {
		name    string
		p       math3d.Vec3
		x, y    float64
		visible bool
	}{
		{"center", math3d.V3(0, 0, 10), 111.5, 111.5, true},
		{"right edge", math3d.V3(halfExtent, 0, 10), 223.5, 111.5, true},
		{"bottom edge", math3d.V3(0, halfExtent, 10), 111.5, 223.5, true},
		{"behind", math3d.V3(0, 0, -1), 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y, ok := c.WorldToScreen(tc.p)
			if ok != tc.visible {
				t.Fatalf("visible = %v, want %v", ok, tc.visible)
			}
			if math.Abs(x-tc.x) > 1e-9 || math.Abs(y-tc.y) > 1e-9 {
				t.Errorf("WorldToScreen() = (%v, %v), want (%v, %v)", x, y, tc.x, tc.y)
			}
		})
	}
}

func TestPixmapDrawLine(t *testing.T) {
	white := color.NRGBA{255, 255, 255, 255}
	tests := []struct {
		name           string
		x0, y0, x1, y1 int
		want           int
	}{
		{"horizontal", 1, 2, 6, 2, 6},
		{"vertical", 3, 7, 3, 0, 8},
		{"diagonal", 0, 0, 4, 4, 5},
		{"single point", 5, 5, 5, 5, 1},
		{"clipped", -3, 1, 2, 1, 3},
		{"far endpoints", -1_000_000_000, 5, 1_000_000_000, 5, 8},
		{"outside", 10, -4, 20, -4, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPixmap(8, 8, 1)
			p.DrawLine(tc.x0, tc.y0, tc.x1, tc.y1, white)
			got := 0
			for _, v := range p.Pix {
				if v == 255 {
					got++
				}
			}
			if got != tc.want {
				t.Errorf("DrawLine() set %d pixels, want %d", got, tc.want)
			}
		})
	}
}

func TestClipSegment(t *testing.T) {
	tests := []struct {
		name           string
		x0, y0, x1, y1 float64
		want           [4]float64
		ok             bool
	}{
		{"inside", 1, 1, 5, 6, [4]float64{1, 1, 5, 6}, true},
		{"crossing left", -4, 2, 4, 2, [4]float64{0, 2, 4, 2}, true},
		{"crossing both", -10, -10, 20, 20, [4]float64{0, 0, 9, 9}, true},
		{"above", 0, -1, 9, -1, [4]float64{}, false},
		{"infinite", math.Inf(1), 0, 0, 0, [4]float64{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x0, y0, x1, y1, ok := clipSegment(tc.x0, tc.y0, tc.x1, tc.y1, 10, 10)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			got := [4]float64{x0, y0, x1, y1}
			for i := range got {
				if math.Abs(got[i]-tc.want[i]) > 1e-9 {
					t.Errorf("clipSegment() = %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestOverlayDrawLine3DNearCameraPlane(t *testing.T) {
	p := NewPixmap(224, 224, 3)
	o := NewOverlay(NewCamera(), p)
	// The first endpoint projects about 1e12 pixels to the right.
	o.DrawLine3D(math3d.V3(1, 0, 1e-9), math3d.V3(0, 0, 10), MarkerColor)
	if got := p.GetPixel(223, 112); got != MarkerColor {
		t.Errorf("edge pixel = %v, want marker", got)
	}
	if n := o.DrawPoints([]math3d.Vec3{math3d.V3(1, 0, 1e-9)}, MarkerColor); n != 0 {
		t.Errorf("DrawPoints() drew %d off-image points", n)
	}
}

func TestPixmapDrawMarker(t *testing.T) {
	p := NewPixmap(9, 9, 3)
	p.DrawMarker(4, 4, 2, MarkerColor)
	for _, pt := range [][2]int{{2, 4}, {6, 4}, {4, 2}, {4, 6}, {4, 4}} {
		if got := p.GetPixel(pt[0], pt[1]); got != MarkerColor {
			t.Errorf("pixel %v = %v, want %v", pt, got, MarkerColor)
		}
	}
	if got := p.GetPixel(3, 3); got.R != 0 {
		t.Errorf("pixel (3, 3) = %v, want untouched", got)
	}
}

func TestOverlayDrawPoints(t *testing.T) {
	p := NewPixmap(224, 224, 3)
	o := NewOverlay(NewCamera(), p)
	n := o.DrawPoints([]math3d.Vec3{
		math3d.V3(0, 0, 10),
		math3d.V3(0, 0, -2),
	}, MarkerColor)
	if n != 1 {
		t.Fatalf("DrawPoints() drew %d, want 1", n)
	}
	if got := p.GetPixel(112, 112); got != MarkerColor {
		t.Errorf("center pixel = %v, want marker", got)
	}
}

func TestRendererDrawLandmarks(t *testing.T) {
	m := bfmtest.Grid(16)
	r := NewRenderer(m)
	res, err := r.Render(face.Coefficients{}, false, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if err := r.DrawLandmarks(res, MarkerColor); err != nil {
		t.Fatalf("DrawLandmarks() error = %v", err)
	}
	marked := 0
	for y := range res.Image.Height {
		for x := range res.Image.Width {
			if res.Image.GetPixel(x, y) == MarkerColor {
				marked++
			}
		}
	}
	if marked == 0 {
		t.Error("no landmark pixels drawn")
	}

	m.KeyPoints = nil
	if err := r.DrawLandmarks(res, MarkerColor); !errors.Is(err, face.ErrInvalidInput) {
		t.Errorf("DrawLandmarks() without key points error = %v, want %v", err, face.ErrInvalidInput)
	}

	bad := NewOverlay(r.Camera, res.Image)
	if err := bad.DrawLandmarks(res.Parameter, []int32{-1}, MarkerColor); !errors.Is(err, face.ErrInvalidInput) {
		t.Errorf("DrawLandmarks() with a bad index error = %v", err)
	}
}
