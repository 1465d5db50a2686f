package face

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"

	"github.com/taigrr/facemask/pkg/math3d"
)

// Crop parameters of the regressor input.
const (
	InputSize     = 224
	RescaleFactor = 102.0
)

// template holds the 3D positions of the five alignment points.
var template = [5]math3d.Vec3{
	{X: -0.311487, Y: 0.290361, Z: 0.133780},
	{X: 0.309799, Y: 0.289720, Z: 0.131795},
	{X: 0.003253, Y: -0.046179, Z: 0.552442},
	{X: -0.252169, Y: -0.381339, Z: 0.224057},
	{X: 0.248466, Y: -0.381282, Z: 0.222358},
}

// FitSimilarity fits an affine camera mapping the 3D template onto the
// given image points by least squares and returns its 2D translation and
// mean scale.
func FitSimilarity(points [5]math3d.Vec2) (tx, ty, scale float64, err error) {
	a := mat.NewDense(2*len(points), 8, nil)
	b := mat.NewVecDense(2*len(points), nil)
	for i, x := range template {
		a.SetRow(2*i, []float64{x.X, x.Y, x.Z, 1, 0, 0, 0, 0})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, x.X, x.Y, x.Z, 1})
		b.SetVec(2*i, points[i].X)
		b.SetVec(2*i+1, points[i].Y)
	}

	var k mat.VecDense
	if err := k.SolveVec(a, b); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrNumericDegeneracy, err)
	}
	r1 := math.Sqrt(k.AtVec(0)*k.AtVec(0) + k.AtVec(1)*k.AtVec(1) + k.AtVec(2)*k.AtVec(2))
	r2 := math.Sqrt(k.AtVec(4)*k.AtVec(4) + k.AtVec(5)*k.AtVec(5) + k.AtVec(6)*k.AtVec(6))
	scale = (r1 + r2) / 2
	if scale == 0 {
		return 0, 0, 0, fmt.Errorf("%w: zero scale", ErrNumericDegeneracy)
	}
	return k.AtVec(3), k.AtVec(7), scale, nil
}

// Align scales img so the face spans a fixed size, crops the
// InputSize×InputSize window around it and pads the crop with black on
// the right and bottom when the scaled frame is too small. The returned
// FormatInfo inverts the transform.
func Align(img image.Image, landmarks [2 * NumLandmarks]int) (*image.RGBA, FormatInfo, error) {
	var info FormatInfo
	b := img.Bounds()
	w0, h0 := float64(b.Dx()), float64(b.Dy())
	if b.Empty() {
		return nil, info, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	tx, ty, fit, err := FitSimilarity(FivePoints(landmarks, b.Dy()))
	if err != nil {
		return nil, info, err
	}
	s := RescaleFactor / fit

	w := int(w0 * s)
	h := int(h0 * s)
	if w <= 0 || h <= 0 {
		return nil, info, fmt.Errorf("%w: scaled frame %dx%d", ErrInvalidInput, w, h)
	}
	lft := int(float64(w)*0.5 - InputSize*0.5 + (tx-w0*0.5)*s)
	top := int(float64(h)*0.5 - InputSize*0.5 + (h0*0.5-ty)*s)
	rig := min(lft+InputSize, w)
	bot := min(top+InputSize, h)
	lft = max(lft, 0)
	top = max(top, 0)
	if rig <= lft || bot <= top {
		return nil, info, fmt.Errorf("%w: face lies outside the frame", ErrInvalidInput)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)

	cw, ch := rig-lft, bot-top
	crop := image.NewRGBA(image.Rect(0, 0, max(cw, InputSize), max(ch, InputSize)))
	draw.Draw(crop, image.Rect(0, 0, cw, ch), scaled, image.Pt(lft, top), draw.Src)

	info = FormatInfo{
		H:        h,
		W:        w,
		PadW:     max(InputSize-cw, 0),
		PadH:     max(InputSize-ch, 0),
		Lft:      lft,
		Top:      top,
		Rig:      rig,
		Bot:      bot,
		Landmark: landmarks,
	}
	return crop, info, nil
}
