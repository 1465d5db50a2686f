package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
)

// Pixmap is an 8-bit interleaved image with 1, 3 or 4 channels in
// R, G, B, A order.
type Pixmap struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8 // row-major, Channels bytes per pixel
}

// NewPixmap creates a zeroed pixmap.
func NewPixmap(width, height, channels int) *Pixmap {
	return &Pixmap{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// PixmapFromFloats converts interleaved floats to 8 bits, scaling by scale,
// rounding and saturating to [0, 255].
func PixmapFromFloats(v []float64, width, height, channels int, scale float64) *Pixmap {
	p := NewPixmap(width, height, channels)
	for i := range p.Pix {
		p.Pix[i] = saturate(v[i] * scale)
	}
	return p
}

// PixmapFromImage copies img into an RGB or RGBA pixmap.
func PixmapFromImage(img image.Image, channels int) *Pixmap {
	b := img.Bounds()
	p := NewPixmap(b.Dx(), b.Dy(), channels)
	for y := range p.Height {
		for x := range p.Width {
			p.SetPixel(x, y, color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA))
		}
	}
	return p
}

// saturate rounds v to the nearest integer, ties to even, and clamps it to
// a byte.
func saturate(v float64) uint8 {
	v = math.RoundToEven(v)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// SetPixel writes c at (x, y). Gray pixmaps store the red channel and RGB
// pixmaps drop alpha.
func (p *Pixmap) SetPixel(x, y int, c color.NRGBA) {
	if x < 0 || x >= p.Width || y < 0 || y >= p.Height {
		return
	}
	o := (y*p.Width + x) * p.Channels
	switch p.Channels {
	case 1:
		p.Pix[o] = c.R
	case 3:
		p.Pix[o], p.Pix[o+1], p.Pix[o+2] = c.R, c.G, c.B
	case 4:
		p.Pix[o], p.Pix[o+1], p.Pix[o+2], p.Pix[o+3] = c.R, c.G, c.B, c.A
	}
}

// GetPixel returns the color at (x, y). Pixmaps without alpha are opaque.
// Returns transparent black if out of bounds.
func (p *Pixmap) GetPixel(x, y int) color.NRGBA {
	if x < 0 || x >= p.Width || y < 0 || y >= p.Height {
		return color.NRGBA{}
	}
	o := (y*p.Width + x) * p.Channels
	switch p.Channels {
	case 1:
		v := p.Pix[o]
		return color.NRGBA{v, v, v, 255}
	case 3:
		return color.NRGBA{p.Pix[o], p.Pix[o+1], p.Pix[o+2], 255}
	case 4:
		return color.NRGBA{p.Pix[o], p.Pix[o+1], p.Pix[o+2], p.Pix[o+3]}
	}
	return color.NRGBA{}
}

// ToImage converts the pixmap to a standard Go image. Gray pixmaps become
// *image.Gray and everything else *image.NRGBA.
func (p *Pixmap) ToImage() image.Image {
	r := image.Rect(0, 0, p.Width, p.Height)
	if p.Channels == 1 {
		img := image.NewGray(r)
		copy(img.Pix, p.Pix)
		return img
	}
	img := image.NewNRGBA(r)
	for y := range p.Height {
		for x := range p.Width {
			img.SetNRGBA(x, y, p.GetPixel(x, y))
		}
	}
	return img
}

// SaveImage writes img to path, as WebP when the extension is .webp and as
// PNG otherwise.
func SaveImage(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		if err := nativewebp.Encode(f, img, nil); err != nil {
			return fmt.Errorf("webp encode %s: %w", path, err)
		}
	default:
		if err := png.Encode(f, img); err != nil {
			return fmt.Errorf("png encode %s: %w", path, err)
		}
	}
	return f.Close()
}
