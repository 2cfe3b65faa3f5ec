package tinyrt

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Backend names accepted by RenderConfig.Backend.
const (
	BackendGPU      = "wgpu"
	BackendSoftware = "software"
)

// Variant names accepted by RenderConfig.Variant.
const (
	VariantStructured = "structured"
	VariantUniform    = "uniform"
)

type Config struct {
	Window WindowConfig `toml:"window"`
	Render RenderConfig `toml:"render"`
	Output OutputConfig `toml:"output"`
	Scene  SceneConfig  `toml:"scene"`
	Log    LogConfig    `toml:"log"`
}

type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type RenderConfig struct {
	Backend string `toml:"backend"`
	Variant string `toml:"variant"`
	// Kernel overrides the entry point name; empty picks the variant's default.
	Kernel string `toml:"kernel"`
	// Program is an optional WGSL file replacing the embedded ray tracer.
	Program  string `toml:"program"`
	Validate bool   `toml:"validate_wgsl"`
	Headless bool   `toml:"headless"`
	Frames   int    `toml:"frames"`
}

type OutputConfig struct {
	Path    string `toml:"path"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	Overlay bool   `toml:"overlay"`
}

type SceneConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type LogConfig struct {
	Prefix string `toml:"prefix"`
	Debug  bool   `toml:"debug"`
	Format string `toml:"format"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{Width: 1280, Height: 720, Title: "tinyrt"},
		Render: RenderConfig{
			Backend: BackendGPU,
			Variant: VariantStructured,
			Frames:  1,
		},
		Output: OutputConfig{Path: "frame.bmp"},
		Log:    LogConfig{Prefix: "tinyrt", Format: "text"},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Render.Backend {
	case BackendGPU, BackendSoftware:
	default:
		errs = append(errs, fmt.Errorf("render.backend: unknown backend %q", c.Render.Backend))
	}
	switch c.Render.Variant {
	case VariantStructured, VariantUniform:
	default:
		errs = append(errs, fmt.Errorf("render.variant: unknown variant %q", c.Render.Variant))
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window: size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Render.Frames < 1 {
		errs = append(errs, fmt.Errorf("render.frames: must be >= 1, got %d", c.Render.Frames))
	}
	if c.Output.Width < 0 || c.Output.Height < 0 {
		errs = append(errs, errors.New("output: size must not be negative"))
	}
	if !c.Render.Headless && c.Render.Backend == BackendSoftware {
		errs = append(errs, errors.New("render: the software backend only runs headless"))
	}
	return errors.Join(errs...)
}
