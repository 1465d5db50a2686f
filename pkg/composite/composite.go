// Package composite pastes a face render back onto the camera frame it was
// cropped from, blending it over the original pixels.
package composite

import (
	"fmt"
	"image"
	"math"

	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/render"
)

// ErrUnsupportedChannel is returned for face images that are neither RGB
// nor RGBA.
var ErrUnsupportedChannel = fmt.Errorf("%w: unsupported channel count", face.ErrInvalidInput)

const (
	// alphaBlurSize is the Gaussian window applied to the binarized alpha.
	alphaBlurSize = 7
	// alphaBlurSigma matches the window: half its size.
	alphaBlurSigma = alphaBlurSize / 2.0
)

// Result is a render mapped into source-frame coordinates.
type Result struct {
	Image *render.Pixmap // RGB, source size
	Mask  *image.Gray    // nil when the render had no mask
	Depth *image.Gray    // nil when the render had no depth
}

// Layout places a resized render inside the source frame. The render is
// scaled to NW×NH and its top-left corner lands at (Left, Top); whatever
// extends past the right or bottom edge is cropped.
type Layout struct {
	NW, NH    int
	Left, Top int
	// Right and Bottom are the zero padding left after placement. They are
	// negative when the render overflows the frame.
	Right, Bottom int
}

// ComputeLayout derives the placement of a faceW×faceH render in a
// srcW×srcH frame from the crop metadata.
func ComputeLayout(info face.FormatInfo, faceW, faceH, srcW, srcH int) (Layout, error) {
	if err := info.Validate(); err != nil {
		return Layout{}, err
	}
	if srcW <= 0 || srcH <= 0 || faceW <= 0 || faceH <= 0 {
		return Layout{}, fmt.Errorf("%w: source %dx%d, face %dx%d", face.ErrInvalidInput, srcW, srcH, faceW, faceH)
	}

	rh := float64(info.H) / float64(srcH)
	rw := float64(info.W) / float64(srcW)

	var l Layout
	l.NH = int(math.Round(float64(faceH) / rh))
	l.NW = int(math.Round(float64(faceW) / rw))
	if l.NW <= 0 || l.NH <= 0 {
		return Layout{}, fmt.Errorf("%w: face collapses to %dx%d", face.ErrInvalidInput, l.NW, l.NH)
	}
	l.Left = max(int(math.Round(float64(info.Lft)/rw)), 0)
	l.Top = max(int(math.Round(float64(info.Top)/rh)), 0)
	l.Right = srcW - l.NW - l.Left
	l.Bottom = srcH - l.NH - l.Top
	return l, nil
}

// PasteBack scales res to the source frame described by info and blends it
// over source. The output always has the source dimensions.
//
// RGBA renders blend through their alpha: only fully opaque texels count,
// and the binary alpha is feathered with a 7×7 Gaussian. RGB renders blend
// through the render mask, eroded by one pixel before scaling.
func PasteBack(source image.Image, res *render.Result, info face.FormatInfo) (*Result, error) {
	if res == nil || res.Image == nil {
		return nil, fmt.Errorf("%w: empty render", face.ErrInvalidInput)
	}
	img := res.Image
	if img.Channels != 3 && img.Channels != 4 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannel, img.Channels)
	}
	if img.Channels == 3 && res.Mask == nil {
		return nil, fmt.Errorf("%w: RGB render without a mask", face.ErrInvalidInput)
	}

	b := source.Bounds()
	w, h := b.Dx(), b.Dy()
	l, err := ComputeLayout(info, img.Width, img.Height, w, h)
	if err != nil {
		return nil, err
	}
	render.Logger().Debug("paste back", "size", l.NW, "left", l.Left, "top", l.Top, "right", l.Right, "bottom", l.Bottom)

	out := &Result{}
	if res.Mask != nil {
		eroded := Erode(res.Mask)
		out.Mask = placeGray(resizeGray(eroded, l.NW, l.NH), l, w, h)
	}
	if res.Depth != nil {
		out.Depth = placeGray(resizeGray(res.Depth, l.NW, l.NH), l, w, h)
	}

	fg := placePixmap(resizeCubic(img, l.NW, l.NH), l, w, h)
	bg := render.PixmapFromImage(source, 3)

	var alpha *image.Gray
	if fg.Channels == 4 {
		opaque := image.NewGray(image.Rect(0, 0, w, h))
		for i := range w * h {
			if fg.Pix[i*4+3] == 255 {
				opaque.Pix[i] = 255
			}
		}
		alpha = Blur(opaque, alphaBlurSize, alphaBlurSigma)
	} else {
		alpha = out.Mask
	}

	out.Image = Fuse(fg, bg, alpha)
	return out, nil
}

// placeGray draws src onto a zeroed w×h canvas at the layout offset.
func placeGray(src *image.Gray, l Layout, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if l.Left >= w {
		return dst
	}
	for y := range src.Rect.Dy() {
		dy := y + l.Top
		if dy >= h {
			break
		}
		row := src.Pix[y*src.Stride : y*src.Stride+src.Rect.Dx()]
		copy(dst.Pix[dy*dst.Stride+l.Left:dy*dst.Stride+w], row)
	}
	return dst
}

// placePixmap draws src onto a zeroed w×h canvas at the layout offset.
func placePixmap(src *render.Pixmap, l Layout, w, h int) *render.Pixmap {
	c := src.Channels
	dst := render.NewPixmap(w, h, c)
	if l.Left >= w {
		return dst
	}
	for y := range src.Height {
		dy := y + l.Top
		if dy >= h {
			break
		}
		row := src.Pix[y*src.Width*c : (y+1)*src.Width*c]
		copy(dst.Pix[(dy*w+l.Left)*c:(dy+1)*w*c], row)
	}
	return dst
}
