// Package config loads facemask settings from a JSON file and overlays
// command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Defaults for the regression camera.
const (
	DefaultRenderSize     = 224
	DefaultFocal          = 1015.0
	DefaultCameraDistance = 10.0
	DefaultFormat         = "webp"
)

// Config holds all configurable paths and render settings.
type Config struct {
	// Paths
	BaseDir     string `json:"base_dir"`
	ModelPath   string `json:"model"`
	TexturePath string `json:"texture"`
	OutputDir   string `json:"output_dir"`

	// Render settings
	RenderSize     int     `json:"render_size"`
	Focal          float64 `json:"focal"`
	CameraDistance float64 `json:"camera_distance"`
	Format         string  `json:"format"`
	Workers        int     `json:"workers"`
	StrictNormals  bool    `json:"strict_normals"`
}

// Load reads a JSON config file and returns Config.
// Fields not set in the file keep their zero values. Relative paths in the
// file are taken relative to the file itself unless base_dir is set.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Dir(path)
	}

	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	ModelPath      string
	TexturePath    string
	OutputDir      string
	RenderSize     int
	CameraDistance float64
	Format         string
	Workers        int
	StrictNormals  bool
}

// Resolve applies flags and fills in any empty fields with defaults.
// CLI flags take priority when non-zero/non-empty.
func (c *Config) Resolve(flags Flags) error {
	// CLI flags override config file and are relative to the working
	// directory.
	if flags.ModelPath != "" {
		c.ModelPath = flags.ModelPath
	} else {
		c.ModelPath = c.resolvePath(c.ModelPath)
	}
	if flags.TexturePath != "" {
		c.TexturePath = flags.TexturePath
	} else {
		c.TexturePath = c.resolvePath(c.TexturePath)
	}
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	} else {
		c.OutputDir = c.resolvePath(c.OutputDir)
	}
	if flags.RenderSize > 0 {
		c.RenderSize = flags.RenderSize
	}
	if flags.CameraDistance > 0 {
		c.CameraDistance = flags.CameraDistance
	}
	if flags.Format != "" {
		c.Format = flags.Format
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.StrictNormals {
		c.StrictNormals = true
	}

	// Defaults for render settings
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.RenderSize <= 0 {
		c.RenderSize = DefaultRenderSize
	}
	// Keep the field of view of the regression camera at other sizes.
	if c.Focal <= 0 {
		c.Focal = DefaultFocal * float64(c.RenderSize) / DefaultRenderSize
	}
	if c.CameraDistance <= 0 {
		c.CameraDistance = DefaultCameraDistance
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}

	c.Format = strings.ToLower(strings.TrimPrefix(c.Format, "."))
	switch c.Format {
	case "":
		c.Format = DefaultFormat
	case "webp", "png":
	default:
		return fmt.Errorf("config: unsupported output format %q", c.Format)
	}
	return nil
}

// OutputPath returns the path of an output image named name inside
// OutputDir with the configured extension.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.OutputDir, name+"."+c.Format)
}

func (c *Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}
