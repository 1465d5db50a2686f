package math3d

import (
	"math"
	"testing"
)

const eps = 1e-9

func mat3Near(a, b Mat3, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func TestEulerRotationZeroIsIdentity(t *testing.T) {
	if got := EulerRotation(0, 0, 0); got != Identity3() {
		t.Errorf("EulerRotation(0,0,0) = %v, want identity", got)
	}
}

func TestEulerRotationOrder(t *testing.T) {
	x, y, z := 0.3, -0.7, 1.1
	want := RotZ(z).Mul(RotY(y)).Mul(RotX(x))
	if got := EulerRotation(x, y, z); !mat3Near(got, want, eps) {
		t.Errorf("EulerRotation = %v, want Rz·Ry·Rx = %v", got, want)
	}
}

func TestRotationsAreOrthonormal(t *testing.T) {
	tests := []struct {
		name string
		m    Mat3
	}{
		{"x", RotX(0.4)},
		{"y", RotY(-1.2)},
		{"z", RotZ(2.5)},
		{"euler", EulerRotation(0.2, 0.5, -0.9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Mul(tt.m.Transpose()); !mat3Near(got, Identity3(), eps) {
				t.Errorf("R·R^T = %v, want identity", got)
			}
		})
	}
}

func TestRowMulMatchesTransposedColumnMul(t *testing.T) {
	r := EulerRotation(0.1, 0.2, 0.3)
	v := V3(1, -2, 0.5)

	a := r.Transpose().RowMul(v)
	b := r.MulVec(v)
	if a.Sub(b).Len() > eps {
		t.Errorf("v·R^T = %v, R·v = %v", a, b)
	}
}

func TestRotZQuarterTurn(t *testing.T) {
	got := RotZ(math.Pi / 2).MulVec(V3(1, 0, 0))
	if got.Sub(V3(0, 1, 0)).Len() > eps {
		t.Errorf("RotZ(pi/2)·x = %v, want (0,1,0)", got)
	}
}

func TestPerspectiveForwardReference(t *testing.T) {
	// Camera with focal 1015 px over a 224 px image.
	fov := 2 * math.Atan(112.0/1015.0)
	got := PerspectiveForward(fov, 1, 5, 15)
	want := Mat4{
		9.0625, 0, 0, 0,
		0, 9.0625, 0, 0,
		0, 0, 2, 1,
		0, 0, -15, 0,
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("PerspectiveForward[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPerspectiveForwardDepthRange(t *testing.T) {
	p := PerspectiveForward(0.2, 1, 5, 15)
	tests := []struct {
		z, want float64
	}{
		{5, -1},
		{15, 1},
		{7.5, 0},
	}
	for _, tt := range tests {
		ndc := p.MulVec4(V4(0, 0, tt.z, 1)).PerspectiveDivide()
		if math.Abs(ndc.Z-tt.want) > eps {
			t.Errorf("z=%v: ndc z = %v, want %v", tt.z, ndc.Z, tt.want)
		}
	}
}

func TestVec3Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Vec3
		want float64
	}{
		{"unit", V3(3, 4, 0), 1},
		{"zero", V3(0, 0, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize().Len(); math.Abs(got-tt.want) > eps {
				t.Errorf("len = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVec3IsFinite(t *testing.T) {
	if !V3(1, 2, 3).IsFinite() {
		t.Error("finite vector reported non-finite")
	}
	if V3(math.NaN(), 0, 0).IsFinite() || V3(0, math.Inf(1), 0).IsFinite() {
		t.Error("non-finite vector reported finite")
	}
}
