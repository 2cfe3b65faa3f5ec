package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/tinyrt"
	"github.com/gekko3d/tinyrt/tracer/rt/app"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "TOML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	headless := flag.Bool("headless", false, "Render offscreen and write the last frame to -out")
	frames := flag.Int("frames", 0, "Frames to render in headless mode")
	out := flag.String("out", "", "Output image path (.bmp, .tiff or .png)")
	backend := flag.String("backend", "", "Device backend: wgpu or software")
	scene := flag.String("scene", "", "Scene TOML file")
	flag.Parse()

	cfg := tinyrt.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = tinyrt.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *headless {
		cfg.Render.Headless = true
	}
	if *frames > 0 {
		cfg.Render.Frames = *frames
	}
	if *out != "" {
		cfg.Output.Path = *out
	}
	if *backend != "" {
		cfg.Render.Backend = *backend
	}
	if *scene != "" {
		cfg.Scene.Path = *scene
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := tinyrt.NewLogger(os.Stderr, cfg.Log)
	if cfg.Render.Headless {
		if err := runHeadless(cfg, logger); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}
	if err := runWindowed(cfg, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func runHeadless(cfg tinyrt.Config, logger tinyrt.Logger) error {
	application := app.NewApp(cfg, logger)
	defer application.Release()
	if err := application.Init(nil); err != nil {
		return err
	}
	return application.RunHeadless()
}

func runWindowed(cfg tinyrt.Config, logger tinyrt.Logger) error {
	if cfg.Render.Backend != tinyrt.BackendGPU {
		return fmt.Errorf("windowed mode needs the %q backend, got %q", tinyrt.BackendGPU, cfg.Render.Backend)
	}
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	application := app.NewApp(cfg, logger)
	defer application.Release()
	if err := application.Init(window); err != nil {
		return err
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleKey(key, action)
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
	return nil
}
