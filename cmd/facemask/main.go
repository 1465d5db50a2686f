// facemask - 3DMM face renderer
// Turns regressed morphable-model coefficients into a rendered face, its
// mask and its depth map, and pastes them back into the camera frame.
//
// Commands:
//
//	render   - Render coefficients to image, mask and depth files
//	preview  - Render coefficients live in the terminal
//	export   - Write the reconstructed mesh as GLB
//	inspect  - List the arrays of a model container
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/taigrr/facemask/pkg/bfm"
	"github.com/taigrr/facemask/pkg/composite"
	"github.com/taigrr/facemask/pkg/config"
	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/models"
	"github.com/taigrr/facemask/pkg/render"
)

var version = "dev"

func main() {
	if err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by every rendering command.
type options struct {
	configFile string
	verbose    bool
	coeffs     string
	flags      config.Flags
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.configFile, "config", "", "path to a JSON config file")
	f.StringVarP(&o.flags.ModelPath, "model", "m", "", "path to the morphable model container")
	f.StringVarP(&o.coeffs, "coeffs", "c", "", "path to a JSON coefficient vector (257 values)")
	f.StringVar(&o.flags.TexturePath, "texture", "", "UV texture image (PNG/JPG/TGA/BMP/WebP)")
	f.IntVar(&o.flags.RenderSize, "size", 0, "render size in pixels (default 224)")
	f.Float64Var(&o.flags.CameraDistance, "distance", 0, "camera distance (default 10)")
	f.IntVar(&o.flags.Workers, "workers", 0, "number of worker goroutines (default: NumCPU)")
	f.BoolVar(&o.flags.StrictNormals, "strict", false, "fail on zero-area triangles")
}

// resolve loads the config file, overlays flags and installs the logger.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	render.SetLogger(logger)

	var cfg config.Config
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Resolve(o.flags); err != nil {
		return cfg, err
	}
	if cfg.ModelPath == "" {
		return cfg, errors.New("no model: use --model or set \"model\" in the config file")
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "facemask",
		Short: "Render 3DMM face coefficients",
		Long: "facemask reconstructs a face from morphable-model coefficients, rasterizes it " +
			"on the CPU and composites the result back into the source frame.",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log stage timings")

	for _, cmd := range []*cobra.Command{
		newRenderCmd(&verbose),
		newPreviewCmd(&verbose),
		newExportCmd(&verbose),
		newInspectCmd(),
	} {
		root.AddCommand(cmd)
	}
	return root
}

func newRenderCmd(verbose *bool) *cobra.Command {
	var (
		opts      options
		infoPath  string
		landmarks string
		source    string
		name      string
		mark      bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render coefficients to image, mask and depth files",
		Example: "  facemask render -m bfm.xarray -c coeffs.json -o out\n" +
			"  facemask render -m bfm.xarray -c coeffs.json --source frame.jpg --landmarks lm.json",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.verbose = *verbose
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			r, tex, err := newRenderer(cfg)
			if err != nil {
				return err
			}
			c, err := readCoefficients(opts.coeffs)
			if err != nil {
				return err
			}

			res, err := r.Render(c, tex != nil, tex)
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}
			if mark {
				if err := r.DrawLandmarks(res, render.MarkerColor); err != nil {
					return err
				}
			}
			img, mask, depth := res.Image, res.Mask, res.Depth

			if source != "" {
				src, err := render.LoadImage(source)
				if err != nil {
					return err
				}
				info, err := formatInfo(src, infoPath, landmarks)
				if err != nil {
					return err
				}
				out, err := composite.PasteBack(src, res, info)
				if err != nil {
					return fmt.Errorf("paste back: %w", err)
				}
				img, mask, depth = out.Image, out.Mask, out.Depth
			}

			outputs := []struct {
				suffix string
				img    image.Image
			}{
				{"", img.ToImage()},
				{"_mask", mask},
				{"_depth", depth},
			}
			for _, o := range outputs {
				path := cfg.OutputPath(name + o.suffix)
				if err := render.SaveImage(path, o.img); err != nil {
					return err
				}
				slog.Info("wrote", "path", path)
			}
			return nil
		},
	}
	opts.register(cmd)
	f := cmd.Flags()
	f.StringVarP(&opts.flags.OutputDir, "out", "o", "", "output directory")
	f.StringVar(&opts.flags.Format, "format", "", "output format: webp or png (default webp)")
	f.StringVar(&name, "name", "face", "base name of the output files")
	f.StringVar(&source, "source", "", "camera frame to paste the render back into")
	f.StringVar(&infoPath, "info", "", "crop format info JSON for --source")
	f.StringVar(&landmarks, "landmarks", "", "68-point landmark JSON for --source, used instead of --info")
	f.BoolVar(&mark, "mark", false, "draw the model's projected landmarks on the render")
	_ = cmd.MarkFlagRequired("coeffs")
	cmd.MarkFlagsMutuallyExclusive("info", "landmarks")
	return cmd
}

func newExportCmd(verbose *bool) *cobra.Command {
	var (
		opts  options
		out   string
		space string
	)
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write the reconstructed mesh as GLB",
		Example: "  facemask export -m bfm.xarray -c coeffs.json --out face.glb",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.verbose = *verbose
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			var sp models.Space
			switch space {
			case "posed":
				sp = models.PosedSpace
			case "model":
				sp = models.ModelSpace
			default:
				return fmt.Errorf("unknown space %q (use posed or model)", space)
			}

			model, err := bfm.LoadFile(cfg.ModelPath)
			if err != nil {
				return err
			}
			c, err := readCoefficients(opts.coeffs)
			if err != nil {
				return err
			}
			rec := face.NewReconstructor(model)
			rec.Workers = cfg.Workers
			rec.CameraDistance = cfg.CameraDistance
			p, err := rec.Reconstruct(c)
			if err != nil {
				return err
			}
			if err := rec.Normals(p, cfg.StrictNormals); err != nil {
				return err
			}

			mesh, err := models.FromParameter(p, model, sp)
			if err != nil {
				return err
			}
			if err := models.SaveGLB(out, mesh); err != nil {
				return err
			}
			slog.Info("wrote", "path", out, "vertices", mesh.VertexCount(), "triangles", mesh.TriangleCount())
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "face.glb", "output GLB path")
	cmd.Flags().StringVar(&space, "space", "posed", "vertex space: posed or model")
	_ = cmd.MarkFlagRequired("coeffs")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model.xarray>",
		Short: "List the arrays of a model container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			c, err := bfm.ReadContainer(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return writeInventory(cmd.OutOrStdout(), c)
		},
	}
}

// writeInventory prints one line per array.
func writeInventory(w io.Writer, c *bfm.Container) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE\tELEMENTS")
	for _, a := range c.Arrays {
		dims := make([]string, len(a.Shape))
		for i, d := range a.Shape {
			dims[i] = fmt.Sprint(d)
		}
		fmt.Fprintf(tw, "%s\t%s\t(%s)\t%d\n", a.Name, a.DType, strings.Join(dims, ", "), a.Len())
	}
	return tw.Flush()
}

// newRenderer loads the model and texture named by cfg and sets up the
// camera.
func newRenderer(cfg config.Config) (*render.Renderer, *render.Texture, error) {
	model, err := bfm.LoadFile(cfg.ModelPath)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("loaded model", "path", cfg.ModelPath, "vertices", model.VertexCount(), "triangles", model.TriangleCount())

	r := render.NewRenderer(model)
	r.Camera.SetSize(cfg.RenderSize)
	r.Camera.SetFocal(cfg.Focal)
	r.Camera.Distance = cfg.CameraDistance
	r.Workers = cfg.Workers
	r.StrictNormals = cfg.StrictNormals

	var tex *render.Texture
	if cfg.TexturePath != "" {
		if tex, err = render.LoadTexture(cfg.TexturePath); err != nil {
			return nil, nil, err
		}
	}
	return r, tex, nil
}

// readCoefficients reads a JSON coefficient vector. A batch of vectors is
// accepted and its first row used.
func readCoefficients(path string) (face.Coefficients, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return face.Coefficients{}, fmt.Errorf("read coefficients: %w", err)
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		var batch [][]float64
		if berr := json.Unmarshal(data, &batch); berr != nil || len(batch) == 0 {
			return face.Coefficients{}, fmt.Errorf("parse coefficients %s: %w", path, err)
		}
		v = batch[0]
	}
	return face.ParseCoefficients(v)
}

// formatInfo reads crop metadata from infoPath, or derives it by aligning
// src on the landmarks in landmarkPath.
func formatInfo(src image.Image, infoPath, landmarkPath string) (face.FormatInfo, error) {
	var info face.FormatInfo
	switch {
	case infoPath != "":
		data, err := os.ReadFile(infoPath)
		if err != nil {
			return info, fmt.Errorf("read format info: %w", err)
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return info, fmt.Errorf("parse format info %s: %w", infoPath, err)
		}
		return info, info.Validate()
	case landmarkPath != "":
		lm, err := readLandmarks(landmarkPath)
		if err != nil {
			return info, err
		}
		_, info, err = face.Align(src, lm)
		return info, err
	}
	return info, errors.New("--source needs --info or --landmarks")
}

// readLandmarks reads 68 points as a flat [x0, y0, x1, y1, ...] list or as
// [[x, y], ...] pairs.
func readLandmarks(path string) ([2 * face.NumLandmarks]int, error) {
	var lm [2 * face.NumLandmarks]int
	data, err := os.ReadFile(path)
	if err != nil {
		return lm, fmt.Errorf("read landmarks: %w", err)
	}
	var flat []float64
	if err := json.Unmarshal(data, &flat); err != nil {
		var pairs [][2]float64
		if perr := json.Unmarshal(data, &pairs); perr != nil {
			return lm, fmt.Errorf("parse landmarks %s: %w", path, err)
		}
		// A failed flat decode may have filled flat with zeros.
		flat = make([]float64, 0, 2*len(pairs))
		for _, p := range pairs {
			flat = append(flat, p[0], p[1])
		}
	}
	if len(flat) != len(lm) {
		return lm, fmt.Errorf("%w: %d landmark values, want %d", face.ErrInvalidInput, len(flat), len(lm))
	}
	for i, v := range flat {
		lm[i] = int(v)
	}
	return lm, nil
}
