package main

import (
	"context"
	"fmt"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/spf13/cobra"

	"github.com/taigrr/facemask/pkg/face"
	"github.com/taigrr/facemask/pkg/render"
)

// yawStep is the impulse of one arrow key press, in radians per frame.
const yawStep = 0.04

// maxYaw keeps the head from turning past profile.
const maxYaw = math.Pi / 2

// YawAxis tracks yaw and its velocity; a harmonica spring decays the
// velocity toward zero.
type YawAxis struct {
	Position  float64
	Velocity  float64
	velSpring harmonica.Spring
	velAccel  float64 // internal spring velocity (for animating Velocity toward 0)
}

// NewYawAxis creates an axis whose velocity settles in about half a second.
func NewYawAxis(fps int) YawAxis {
	return YawAxis{
		// Frequency 4.0 = moderate speed, damping 1.0 = critically damped (no overshoot)
		velSpring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0),
	}
}

// Update applies velocity to position and decays velocity toward 0.
func (a *YawAxis) Update() {
	a.Position += a.Velocity
	if math.Abs(a.Position) > maxYaw {
		a.Position = math.Copysign(maxYaw, a.Position)
		a.Velocity = 0
	}
	a.Velocity, a.velAccel = a.velSpring.Update(a.Velocity, a.velAccel, 0)
}

// previewState is the UI state of the preview loop.
type previewState struct {
	yaw     YawAxis
	fps     int
	texture bool
	marks   bool
}

func (s *previewState) reset() {
	s.yaw = NewYawAxis(s.fps)
}

// handleKey applies a key press and reports whether the preview should quit.
func (s *previewState) handleKey(ev uv.KeyPressEvent, haveTexture bool) (quit bool) {
	switch {
	case ev.MatchString("q", "escape", "ctrl+c"):
		return true
	case ev.MatchString("left", "a"):
		s.yaw.Velocity -= yawStep
	case ev.MatchString("right", "d"):
		s.yaw.Velocity += yawStep
	case ev.MatchString("t"):
		s.texture = haveTexture && !s.texture
	case ev.MatchString("l"):
		s.marks = !s.marks
	case ev.MatchString("r"):
		s.reset()
	}
	return false
}

// coefficients returns base with the animated yaw added.
func (s *previewState) coefficients(base face.Coefficients) face.Coefficients {
	c := base
	c.Angles[1] += s.yaw.Position
	return c
}

// fitSize returns the largest square render, in pixels, that fits a
// terminal of the given cells with two pixels per cell vertically.
func fitSize(width, height int) int {
	return max(min(width, 2*height), 2)
}

func newPreviewCmd(verbose *bool) *cobra.Command {
	var (
		opts options
		fps  int
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render coefficients live in the terminal",
		Long: "preview draws the face with half-block characters.\n\n" +
			"Controls:\n" +
			"  Left/Right  - Turn the head\n" +
			"  T           - Toggle texture\n" +
			"  L           - Toggle landmarks\n" +
			"  R           - Reset\n" +
			"  Q/Esc       - Quit",
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
			return runPreview(cmd.Context(), r, tex, c, max(fps, 1))
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVar(&fps, "fps", 30, "target FPS")
	_ = cmd.MarkFlagRequired("coeffs")
	return cmd
}

func runPreview(ctx context.Context, r *render.Renderer, tex *render.Texture, base face.Coefficients, fps int) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	term := uv.DefaultTerminal()
	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	defer func() {
		term.ExitAltScreen()
		term.ShowCursor()
		_ = term.Shutdown(context.Background())
	}()

	term.EnterAltScreen()
	term.HideCursor()
	_ = term.Resize(width, height)

	// Preview frames inherit the field of view of the regression camera.
	focal := r.Camera.Focal / float64(r.Camera.Size)
	resize := func() {
		size := fitSize(width, height)
		r.Camera.SetSize(size)
		r.Camera.SetFocal(focal * float64(size))
	}
	resize()

	state := &previewState{fps: fps, texture: tex != nil}
	state.reset()

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-term.Events():
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				width, height = ev.Width, ev.Height
				term.Erase()
				_ = term.Resize(width, height)
				resize()
			case uv.KeyPressEvent:
				if state.handleKey(ev, tex != nil) {
					return nil
				}
			}

		case <-ticker.C:
			state.yaw.Update()

			start := time.Now()
			res, err := r.Render(state.coefficients(base), state.texture, tex)
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}
			if state.marks && len(r.Model().KeyPoints) > 0 {
				if err := r.DrawLandmarks(res, render.MarkerColor); err != nil {
					return err
				}
			}
			render.Logger().Debug("frame", "elapsed", time.Since(start))

			size := res.Image.Width
			left := max((width-size)/2, 0)
			top := max((height-(size+1)/2)/2, 0)
			area := uv.Rect(left, top, min(size, width), min((size+1)/2, height))
			term.Draw(uv.DrawableFunc(func(scr uv.Screen, _ uv.Rectangle) {
				res.Image.Draw(scr, area, res.Mask)
			}))
			if err := term.Display(); err != nil {
				return fmt.Errorf("display: %w", err)
			}
		}
	}
}
