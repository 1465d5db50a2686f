package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	uv "github.com/charmbracelet/ultraviolet"

	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/bfm/bfmtest"
	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/models"
	"github.com/taigrr/facemask/pkg/render"
)

// fixture writes a synthetic model and a zero coefficient vector to dir.
func fixture(t *testing.T, dir string) (modelPath, coeffPath string) {
	t.Helper()
	modelPath = filepath.Join(dir, "grid.xarray")
	f, err := os.Create(modelPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bfmtest.Grid(16).Container().WriteTo(f); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	coeffPath = writeJSON(t, dir, "coeffs.json", make([]float64, face.NumCoefficients))
	return modelPath, coeffPath
}

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	render.SetLogger(nil)
	return out.String(), err
}

func decodeSize(t *testing.T, path string) image.Point {
	t.Helper()
	img, err := render.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage(%s) error = %v", path, err)
	}
	return img.Bounds().Size()
}

func TestRenderCommand(t *testing.T) {
	tests := []struct {
		name   string
		format string
		extra  []string
	}{
		{"png", "png", nil},
		{"webp", "webp", nil},
		{"marked", "png", []string{"--mark"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			model, coeffs := fixture(t, dir)
			out := filepath.Join(dir, "out")

			args := append([]string{"render", "-m", model, "-c", coeffs, "-o", out,
				"--size", "64", "--format", tt.format}, tt.extra...)
			if _, err := execute(t, args...); err != nil {
				t.Fatalf("render error = %v", err)
			}
			for _, name := range []string{"face", "face_mask", "face_depth"} {
				path := filepath.Join(out, name+"."+tt.format)
				if got := decodeSize(t, path); got != image.Pt(64, 64) {
					t.Errorf("%s size = %v, want 64x64", name, got)
				}
			}
		})
	}
}

func TestRenderCommandPasteBack(t *testing.T) {
	dir := t.TempDir()
	model, coeffs := fixture(t, dir)

	src := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	srcPath := filepath.Join(dir, "frame.png")
	f, err := os.Create(srcPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, src); err != nil {
		t.Fatal(err)
	}
	f.Close()
	info := writeJSON(t, dir, "info.json", face.FormatInfo{W: 400, H: 300, Lft: 50, Top: 40})

	out := filepath.Join(dir, "out")
	if _, err := execute(t, "render", "-m", model, "-c", coeffs, "-o", out, "--format", "png",
		"--source", srcPath, "--info", info, "--name", "frame"); err != nil {
		t.Fatalf("render error = %v", err)
	}
	for _, name := range []string{"frame", "frame_mask", "frame_depth"} {
		if got := decodeSize(t, filepath.Join(out, name+".png")); got != image.Pt(400, 300) {
			t.Errorf("%s size = %v, want 400x300", name, got)
		}
	}
}

func TestRenderCommandErrors(t *testing.T) {
	dir := t.TempDir()
	model, coeffs := fixture(t, dir)
	short := writeJSON(t, dir, "short.json", []float64{1, 2, 3})

	tests := []struct {
		name string
		args []string
	}{
		{"missing coeffs flag", []string{"render", "-m", model}},
		{"missing model", []string{"render", "-c", coeffs}},
		{"short vector", []string{"render", "-m", model, "-c", short}},
		{"bad format", []string{"render", "-m", model, "-c", coeffs, "--format", "gif"}},
		{"source without info", []string{"render", "-m", model, "-c", coeffs, "--source", model}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	model, coeffs := fixture(t, dir)
	out := filepath.Join(dir, "face.glb")

	if _, err := execute(t, "export", "-m", model, "-c", coeffs, "-o", out, "--space", "model"); err != nil {
		t.Fatalf("export error = %v", err)
	}
	mesh, err := models.LoadGLB(out)
	if err != nil {
		t.Fatalf("LoadGLB() error = %v", err)
	}
	if mesh.VertexCount() != 16*16 || mesh.TriangleCount() != 2*15*15 {
		t.Errorf("mesh = %d vertices, %d triangles", mesh.VertexCount(), mesh.TriangleCount())
	}

	if _, err := execute(t, "export", "-m", model, "-c", coeffs, "-o", out, "--space", "world"); err == nil {
		t.Error("expected an error for an unknown space")
	}
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	model, _ := fixture(t, dir)

	out, err := execute(t, "inspect", model)
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	for _, want := range []string{"NAME", bfm.KeyMeanShape, bfm.KeyTri, "float32"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestReadCoefficients(t *testing.T) {
	dir := t.TempDir()
	v := make([]float64, face.NumCoefficients)
	v[0] = 0.5
	v[face.NumCoefficients-1] = 2

	tests := []struct {
		name    string
		body    any
		wantErr bool
	}{
		{"flat", v, false},
		{"batch", [][]float64{v, make([]float64, face.NumCoefficients)}, false},
		{"short", v[:10], true},
		{"empty batch", [][]float64{}, true},
		{"object", map[string]int{"a": 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := readCoefficients(writeJSON(t, dir, tt.name+".json", tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readCoefficients() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (c.Identity[0] != 0.5 || c.Translation[2] != 2) {
				t.Errorf("readCoefficients() = %v, %v", c.Identity[0], c.Translation)
			}
		})
	}
}

func TestReadLandmarks(t *testing.T) {
	dir := t.TempDir()
	flat := make([]float64, 2*face.NumLandmarks)
	pairs := make([][2]float64, face.NumLandmarks)
	for i := range pairs {
		flat[2*i], flat[2*i+1] = float64(i), float64(100+i)
		pairs[i] = [2]float64{float64(i), float64(100 + i)}
	}

	tests := []struct {
		name    string
		body    any
		wantErr error
	}{
		{"flat", flat, nil},
		{"pairs", pairs, nil},
		{"short", flat[:10], face.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm, err := readLandmarks(writeJSON(t, dir, tt.name+".json", tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("readLandmarks() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("readLandmarks() error = %v", err)
			}
			if x, y := face.Landmark(lm, 30); x != 30 || y != 130 {
				t.Errorf("landmark 30 = (%d, %d), want (30, 130)", x, y)
			}
		})
	}
}

func TestYawAxis(t *testing.T) {
	a := NewYawAxis(30)
	a.Velocity = 0.1
	for range 120 {
		a.Update()
	}
	if a.Position <= 0 {
		t.Errorf("Position = %v, want positive", a.Position)
	}
	if abs := a.Velocity; abs > 1e-3 || abs < -1e-3 {
		t.Errorf("Velocity = %v, want settled near 0", a.Velocity)
	}

	a.Velocity = 100
	a.Update()
	if a.Position != maxYaw {
		t.Errorf("Position = %v, want clamped to %v", a.Position, maxYaw)
	}
}

func TestPreviewKeys(t *testing.T) {
	s := &previewState{fps: 30, texture: true}
	s.reset()

	press := func(code rune) uv.KeyPressEvent { return uv.KeyPressEvent{Code: code} }

	if s.handleKey(press(uv.KeyRight), true) || s.yaw.Velocity != yawStep {
		t.Errorf("right: velocity = %v, want %v", s.yaw.Velocity, yawStep)
	}
	s.handleKey(press('t'), true)
	if s.texture {
		t.Error("t should toggle texture off")
	}
	s.handleKey(press('t'), false)
	if s.texture {
		t.Error("t without a texture should keep shading")
	}
	s.handleKey(press('l'), true)
	if !s.marks {
		t.Error("l should toggle landmarks on")
	}
	s.handleKey(press('r'), true)
	if s.yaw.Velocity != 0 || s.yaw.Position != 0 {
		t.Error("r should reset the yaw")
	}
	if !s.handleKey(press('q'), true) {
		t.Error("q should quit")
	}

	var base face.Coefficients
	base.Angles[1] = 0.25
	s.yaw.Position = 0.5
	if got := s.coefficients(base).Angles[1]; got != 0.75 {
		t.Errorf("yaw = %v, want 0.75", got)
	}
	if base.Angles[1] != 0.25 {
		t.Error("coefficients modified its argument")
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h, want int
	}{
		{80, 24, 48},
		{40, 50, 40},
		{0, 0, 2},
	}
	for _, tt := range tests {
		if got := fitSize(tt.w, tt.h); got != tt.want {
			t.Errorf("fitSize(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}
