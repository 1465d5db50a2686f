package math3d

import "math"

// Mat3 is a 3x3 matrix stored in row-major order.
//
// Memory layout (indices):
// | 0 1 2 |
// | 3 4 5 |
// | 6 7 8 |
type Mat3 [9]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// RotX returns the rotation matrix around the X axis.
func RotX(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}

// RotY returns the rotation matrix around the Y axis.
func RotY(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	}
}

// RotZ returns the rotation matrix around the Z axis.
func RotZ(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}

// EulerRotation composes Rz·Ry·Rx from the three angles in radians.
func EulerRotation(x, y, z float64) Mat3 {
	return RotZ(z).Mul(RotY(y)).Mul(RotX(x))
}

// Mul multiplies two matrices: a * b.
//
//nolint:st1016 // a*b naming convention is clearer for matrix multiplication
func (a Mat3) Mul(b Mat3) Mat3 {
	var m Mat3
	for row := range 3 {
		for col := range 3 {
			var sum float64
			for k := range 3 {
				sum += a[row*3+k] * b[k*3+col]
			}
			m[row*3+col] = sum
		}
	}
	return m
}

// Transpose returns the transposed matrix.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// MulVec returns the column-vector product m · v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// RowMul returns the row-vector product v · m.
func (m Mat3) RowMul(v Vec3) Vec3 {
	return Vec3{
		v.X*m[0] + v.Y*m[3] + v.Z*m[6],
		v.X*m[1] + v.Y*m[4] + v.Z*m[7],
		v.X*m[2] + v.Y*m[5] + v.Z*m[8],
	}
}

// Get returns the element at (row, col).
func (m Mat3) Get(row, col int) float64 {
	return m[row*3+col]
}
