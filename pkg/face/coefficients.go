// Package face decodes 3DMM coefficient vectors into face geometry, albedo,
// normals and shading, and computes the crop transform that maps a camera
// frame to the fixed-size regressor input.
package face

import (
	"errors"
	"fmt"

	"github.com/taigrr/facemask/pkg/bfm"
)

// NumCoefficients is the length of a coefficient vector.
const NumCoefficients = bfm.IDDims + bfm.ExpDims + bfm.TexDims + 3 + GammaDims + 3

// GammaDims is the size of the illumination block. The renderer ignores it.
const GammaDims = 27

var (
	// ErrInvalidInput is returned for malformed coefficients, crop metadata
	// or images.
	ErrInvalidInput = errors.New("face: invalid input")
	// ErrNumericDegeneracy is returned when a computation hits a zero-area
	// triangle or a singular system and the caller asked to be told.
	ErrNumericDegeneracy = errors.New("face: numeric degeneracy")
)

// Coefficients is a decoded coefficient vector.
type Coefficients struct {
	Identity    [bfm.IDDims]float64
	Expression  [bfm.ExpDims]float64
	Texture     [bfm.TexDims]float64
	Angles      [3]float64 // radians, applied as Rz·Ry·Rx
	Gamma       [GammaDims]float64
	Translation [3]float64
}

// ParseCoefficients splits a flat vector into its sub-ranges.
func ParseCoefficients(v []float64) (Coefficients, error) {
	var c Coefficients
	if len(v) != NumCoefficients {
		return c, fmt.Errorf("%w: coefficient vector has %d values, want %d", ErrInvalidInput, len(v), NumCoefficients)
	}
	off := 0
	off += copy(c.Identity[:], v[off:])
	off += copy(c.Expression[:], v[off:])
	off += copy(c.Texture[:], v[off:])
	off += copy(c.Angles[:], v[off:])
	off += copy(c.Gamma[:], v[off:])
	copy(c.Translation[:], v[off:])
	return c, nil
}

// Vector flattens the coefficients back into the 257-value layout.
func (c Coefficients) Vector() []float64 {
	v := make([]float64, 0, NumCoefficients)
	v = append(v, c.Identity[:]...)
	v = append(v, c.Expression[:]...)
	v = append(v, c.Texture[:]...)
	v = append(v, c.Angles[:]...)
	v = append(v, c.Gamma[:]...)
	return append(v, c.Translation[:]...)
}

// FormatInfo records how a camera frame was scaled, cropped and padded
// into the regressor input, so a render can be mapped back.
type FormatInfo struct {
	H        int                   `json:"h"` // scaled frame height
	W        int                   `json:"w"` // scaled frame width
	PadW     int                   `json:"pad_w"`
	PadH     int                   `json:"pad_h"`
	Lft      int                   `json:"lft"`
	Top      int                   `json:"top"`
	Rig      int                   `json:"rig"`
	Bot      int                   `json:"bot"`
	Landmark [2 * NumLandmarks]int `json:"landmark"`
}

// Validate checks the fields the compositor depends on.
func (f FormatInfo) Validate() error {
	if f.H <= 0 || f.W <= 0 {
		return fmt.Errorf("%w: scaled size %dx%d", ErrInvalidInput, f.W, f.H)
	}
	return nil
}
