package render

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/taigrr/facemask/internal/parallel"
)

// TextureChannels is the channel count of a Texture (RGBA).
const TextureChannels = 4

// Texture is a UV map stored as non-premultiplied RGBA floats in [0, 255].
type Texture struct {
	Width  int
	Height int
	Pixels []float64 // row-major, TextureChannels per texel
}

// NewTexture creates an empty texture with the given dimensions.
func NewTexture(width, height int) *Texture {
	return &Texture{
		Width:  width,
		Height: height,
		Pixels: make([]float64, width*height*TextureChannels),
	}
}

// LoadTexture loads a texture from a PNG, JPEG, TGA, BMP or WebP file.
func LoadTexture(path string) (*Texture, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return TextureFromImage(img), nil
}

// LoadImage decodes a PNG, JPEG, TGA, BMP or WebP file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := decoderFor(path)(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// decoderFor picks an image decoder from the file extension. TGA has no
// magic number, so sniffing cannot find it.
func decoderFor(path string) func(io.Reader) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Decode
	case ".jpg", ".jpeg":
		return jpeg.Decode
	case ".tga":
		return tga.Decode
	case ".bmp":
		return bmp.Decode
	case ".webp":
		return webp.Decode
	}
	return func(r io.Reader) (image.Image, error) {
		img, _, err := image.Decode(r)
		return img, err
	}
}

// TextureFromImage creates a texture from an image.Image.
func TextureFromImage(img image.Image) *Texture {
	bounds := img.Bounds()
	tex := NewTexture(bounds.Dx(), bounds.Dy())

	for y := range tex.Height {
		for x := range tex.Width {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			tex.SetPixel(x, y, c)
		}
	}
	return tex
}

// SetPixel sets a texel. Out-of-range coordinates are ignored.
func (t *Texture) SetPixel(x, y int, c color.NRGBA) {
	if x < 0 || x >= t.Width || y < 0 || y >= t.Height {
		return
	}
	o := (y*t.Width + x) * TextureChannels
	t.Pixels[o] = float64(c.R)
	t.Pixels[o+1] = float64(c.G)
	t.Pixels[o+2] = float64(c.B)
	t.Pixels[o+3] = float64(c.A)
}

// SampleInto writes the bilinear sample at (u, v) into dst, which must hold
// TextureChannels values. v grows downward. It reports false, leaving dst
// untouched, when u or v falls outside [0, 1].
func (t *Texture) SampleInto(u, v float64, dst []float64) bool {
	if u < 0 || u > 1 || v < 0 || v > 1 || t.Width == 0 || t.Height == 0 {
		return false
	}
	us := u * float64(t.Width-1)
	vs := v * float64(t.Height-1)
	x0 := int(math.Floor(us))
	y0 := int(math.Floor(vs))
	x1 := min(x0+1, t.Width-1)
	y1 := min(y0+1, t.Height-1)
	wx := us - float64(x0)
	wy := vs - float64(y0)

	tl := t.Pixels[(y0*t.Width+x0)*TextureChannels:]
	tr := t.Pixels[(y0*t.Width+x1)*TextureChannels:]
	bl := t.Pixels[(y1*t.Width+x0)*TextureChannels:]
	br := t.Pixels[(y1*t.Width+x1)*TextureChannels:]
	for c := range TextureChannels {
		top := (1-wx)*tl[c] + wx*tr[c]
		bot := (1-wx)*bl[c] + wx*br[c]
		dst[c] = (1-wy)*top + wy*bot
	}
	return true
}

// SampleTexture samples tex at every pixel of a UV map holding two floats
// per pixel. The result holds TextureChannels floats per pixel and is zero
// where the UV lies outside [0, 1].
func SampleTexture(tex *Texture, uv []float64, h, w, workers int) []float64 {
	out := make([]float64, h*w*TextureChannels)
	parallel.For(workers, h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := range w {
				i := y*w + x
				tex.SampleInto(uv[2*i], uv[2*i+1], out[i*TextureChannels:i*TextureChannels+TextureChannels])
			}
		}
	})
	return out
}
