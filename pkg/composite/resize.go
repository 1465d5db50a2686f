package composite

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/taigrr/facemask/pkg/render"
)

// resizeGray scales a single-channel image with bilinear filtering.
func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// resizeCubic scales every channel of p independently with a Catmull-Rom
// kernel. Channels are split first so alpha never premultiplies color.
func resizeCubic(p *render.Pixmap, w, h int) *render.Pixmap {
	c := p.Channels
	out := render.NewPixmap(w, h, c)
	plane := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	scaled := image.NewGray(image.Rect(0, 0, w, h))

	for ch := range c {
		for i := range p.Width * p.Height {
			plane.Pix[i] = p.Pix[i*c+ch]
		}
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), plane, plane.Bounds(), draw.Src, nil)
		for i := range w * h {
			out.Pix[i*c+ch] = scaled.Pix[i]
		}
	}
	return out
}
