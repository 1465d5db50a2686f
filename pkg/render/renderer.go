package render

import (
	"fmt"
	"image"
	"time"

	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/math3d"
)

// Result is the output of one render call.
type Result struct {
	// Image is RGB for shape renders and RGBA for texture renders.
	Image *Pixmap
	// Mask is 255 where the face covers the pixel.
	Mask *image.Gray
	// Depth is the normalized depth map, brightest nearest.
	Depth *image.Gray
	// Parameter is the reconstructed geometry the image was drawn from.
	Parameter *face.Parameter
}

// Renderer turns coefficient vectors into images with a fixed camera. It
// owns a Rasterizer arena, so one Renderer must not serve concurrent
// Render calls; create one per goroutine and share the model.
type Renderer struct {
	Camera *Camera
	// Workers bounds the data parallelism of every stage. Zero means
	// GOMAXPROCS.
	Workers int
	// StrictNormals makes zero-area triangles fail the shape render.
	StrictNormals bool

	model         *bfm.Model
	reconstructor *face.Reconstructor
	rasterizer    *Rasterizer
}

// NewRenderer returns a renderer for model with the default camera.
func NewRenderer(model *bfm.Model) *Renderer {
	return &Renderer{
		Camera:        NewCamera(),
		model:         model,
		reconstructor: face.NewReconstructor(model),
		rasterizer:    NewRasterizer(0),
	}
}

// Model returns the model the renderer draws.
func (r *Renderer) Model() *bfm.Model {
	return r.model
}

// Render reconstructs c and draws it. With withTexture set the face is
// sampled from tex through the model UVs and the image has four channels;
// otherwise it is gray shaded with three channels.
func (r *Renderer) Render(c face.Coefficients, withTexture bool, tex *Texture) (*Result, error) {
	if !r.model.Loaded() {
		return nil, bfm.ErrModelNotLoaded
	}
	if withTexture && tex == nil {
		return nil, fmt.Errorf("%w: texture render without a texture", face.ErrInvalidInput)
	}

	start := time.Now()
	r.reconstructor.Workers = r.Workers
	r.reconstructor.CameraDistance = r.Camera.Distance
	p, err := r.reconstructor.Reconstruct(c)
	if err != nil {
		return nil, err
	}
	if !withTexture {
		if err := r.reconstructor.Normals(p, r.StrictNormals); err != nil {
			return nil, err
		}
		p.Shading = face.Shade(p.Normal, r.Workers)
	}
	Logger().Debug("reconstructed", "vertices", len(p.Vertex), "elapsed", time.Since(start))

	return r.draw(p, withTexture, tex)
}

// draw rasterizes a reconstructed face.
func (r *Renderer) draw(p *face.Parameter, withTexture bool, tex *Texture) (*Result, error) {
	m := r.model
	size := r.Camera.Size
	if size <= 0 {
		return nil, fmt.Errorf("%w: render size %d", face.ErrInvalidInput, size)
	}

	// Image rows grow downward.
	vertices := make([]math3d.Vec3, len(p.Vertex))
	depthAttr := make([]float64, len(p.Vertex))
	for i, v := range p.Vertex {
		vertices[i] = math3d.V3(v.X, -v.Y, v.Z)
		depthAttr[i] = v.Z
	}

	start := time.Now()
	var rast *RasterBuffer
	if r.Camera.Visible(vertices) {
		r.rasterizer.Workers = r.Workers
		rast = r.rasterizer.Rasterize(vertices, m.Tri, r.Camera.ProjectionMatrix(), size, size)
	} else {
		Logger().Debug("face outside the view frustum")
		rast = NewRasterBuffer(size, size)
	}
	Logger().Debug("rasterized", "triangles", len(m.Tri), "covered", rast.Covered(), "elapsed", time.Since(start))

	start = time.Now()
	res := &Result{Mask: rast.Mask(), Parameter: p}
	if withTexture {
		uv := Interpolate(FlattenVec2(m.UV), 2, rast, m.Tri, r.Workers)
		texels := SampleTexture(tex, uv, size, size, r.Workers)
		res.Image = PixmapFromFloats(texels, size, size, TextureChannels, 1)
	} else {
		shading := Interpolate(FlattenVec3(p.Shading), 3, rast, m.Tri, r.Workers)
		res.Image = PixmapFromFloats(shading, size, size, 3, 255)
	}

	depth := Interpolate(depthAttr, 1, rast, m.Tri, r.Workers)
	res.Depth = NormalizeDepth(depth, res.Mask)
	Logger().Debug("shaded", "texture", withTexture, "elapsed", time.Since(start))
	return res, nil
}
