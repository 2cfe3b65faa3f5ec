package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/tinyrt"
	"github.com/gekko3d/tinyrt/tracer/rt/compute"
	"github.com/gekko3d/tinyrt/tracer/rt/compute/soft"
	"github.com/gekko3d/tinyrt/tracer/rt/core"
	"github.com/gekko3d/tinyrt/tracer/rt/gpu"
	"github.com/gekko3d/tinyrt/tracer/rt/present"
	"github.com/gekko3d/tinyrt/tracer/rt/render"
	"github.com/gekko3d/tinyrt/tracer/rt/scenefile"
	"github.com/gekko3d/tinyrt/tracer/rt/shaders"
)

type App struct {
	Config tinyrt.Config
	Logger tinyrt.Logger

	Window    *glfw.Window
	Device    compute.Device
	Program   compute.Program
	Kernels   *compute.KernelCache
	Kernel    *compute.Kernel
	Loop      *render.FrameLoop
	Presenter *gpu.Presenter

	Scene   *core.Scene
	Camera  *core.Camera
	Watcher *scenefile.Watcher
	Text    *present.TextRenderer

	LastTime   float64
	FrameCount int
	FPS        float64
	FPSTime    float64
}

func NewApp(cfg tinyrt.Config, logger tinyrt.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  tinyrt.OrNop(logger),
		Kernels: compute.NewKernelCache(),
		Scene:   core.NewScene(),
		Camera:  core.NewCamera(),
	}
}

// Init creates the device, compiles the ray tracer and loads the scene. A nil
// window runs headless.
func (a *App) Init(window *glfw.Window) error {
	a.Window = window
	cfg := a.Config

	device, err := a.createDevice()
	if err != nil {
		return err
	}
	a.Device = device

	source := shaders.RaytraceWGSL
	label := "raytrace"
	if cfg.Render.Program != "" {
		data, err := os.ReadFile(cfg.Render.Program)
		if err != nil {
			return fmt.Errorf("read program: %w", err)
		}
		source, label = string(data), cfg.Render.Program
	}
	a.Program, err = device.CompileProgram(compute.ProgramDescriptor{Label: label, Source: source})
	if err != nil {
		return err
	}

	variant, err := render.ParseVariant(cfg.Render.Variant)
	if err != nil {
		return err
	}
	entry := cfg.Render.Kernel
	if entry == "" {
		entry = variant.Entry()
	}
	a.Kernel, err = a.Kernels.Get(a.Program, entry)
	if err != nil {
		return err
	}
	a.Loop, err = render.NewFrameLoop(device, a.Kernel,
		render.WithVariant(variant),
		render.WithLogger(a.Logger),
	)
	if err != nil {
		return err
	}

	if err := a.loadScene(); err != nil {
		return err
	}
	if cfg.Scene.Watch && cfg.Scene.Path != "" {
		a.Watcher, err = scenefile.Watch(cfg.Scene.Path, a.Logger)
		if err != nil {
			return fmt.Errorf("watch scene: %w", err)
		}
	}
	if cfg.Output.Overlay {
		a.Text, err = present.NewTextRenderer("", 0)
		if err != nil {
			return err
		}
	}

	if window != nil {
		gd, ok := device.(*gpu.Device)
		if !ok {
			return errors.New("app: windowed mode needs the wgpu backend")
		}
		w, h := window.GetFramebufferSize()
		a.Presenter, err = gd.NewPresenter(w, h)
		if err != nil {
			return err
		}
	}
	a.Logger.Infof("app: %s backend, kernel %q, %d spheres", cfg.Render.Backend, entry, a.Scene.Len())
	return nil
}

func (a *App) createDevice() (compute.Device, error) {
	switch a.Config.Render.Backend {
	case tinyrt.BackendSoftware:
		opts := append(shaders.SoftwareKernels(), soft.WithLogger(a.Logger))
		return soft.NewDevice(opts...), nil
	default:
		opts := []gpu.Option{
			gpu.WithLogger(a.Logger),
			gpu.WithValidation(a.Config.Render.Validate),
		}
		if a.Window != nil {
			opts = append(opts, gpu.WithWindow(a.Window))
		}
		d, err := gpu.NewDevice(opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func (a *App) loadScene() error {
	if a.Config.Scene.Path == "" {
		a.Scene.Replace(DefaultScene())
		a.Camera.Position = mgl32.Vec3{0, 0, -10}
		a.Camera.OrthographicSize = 4
		return nil
	}
	f, err := scenefile.Load(a.Config.Scene.Path)
	if err != nil {
		return err
	}
	f.Apply(a.Scene, a.Camera)
	return nil
}

// DefaultScene is a row of spheres in front of the origin.
func DefaultScene() []core.Sphere {
	return []core.Sphere{
		core.NewSphere("left", mgl32.Vec3{-3, 0, 6}, 1),
		core.NewSphere("center", mgl32.Vec3{0, 0.5, 5}, 1.5),
		core.NewSphere("right", mgl32.Vec3{3, -0.5, 7}, 0.75),
	}
}

// Update applies pending scene file reloads. It never blocks.
func (a *App) Update() {
	if a.Watcher == nil {
		return
	}
	for {
		select {
		case f := <-a.Watcher.Updates():
			f.Apply(a.Scene, a.Camera)
			a.Logger.Infof("app: scene reloaded, %d spheres", a.Scene.Len())
		case err := <-a.Watcher.Errors():
			a.Logger.Warnf("app: scene reload failed: %v", err)
		default:
			return
		}
	}
}

// RenderFrame renders the current scene at width x height. Failures are
// logged and returned; the caller skips presentation for that frame.
func (a *App) RenderFrame(width, height int) (compute.Surface, error) {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	surface, err := a.Loop.RenderFrame(*a.Camera, a.Scene.Spheres(), uint32(width), uint32(height))
	if err != nil {
		a.Logger.Errorf("app: frame %d: %v", a.Loop.Stats().Frames, err)
		return nil, err
	}
	return surface, nil
}

// StatsText is the overlay drawn onto exported frames.
func (a *App) StatsText() string {
	s := a.Loop.Stats()
	return fmt.Sprintf("frames %d  dispatches %d  skipped %d\nspheres %d  groups %s\ndispatch %.2f ms",
		s.Frames, s.Dispatches, s.Skipped,
		a.Scene.Len(), a.Loop.GroupCount(),
		float64(a.Loop.Profiler().Last(render.PhaseDispatch).Microseconds())/1000.0)
}

func (a *App) Release() {
	if a.Watcher != nil {
		if err := a.Watcher.Close(); err != nil {
			a.Logger.Warnf("app: close watcher: %v", err)
		}
		a.Watcher = nil
	}
	if a.Presenter != nil {
		a.Presenter.Release()
		a.Presenter = nil
	}
	if a.Loop != nil {
		a.Loop.Close()
		a.Loop = nil
	}
	if a.Program != nil {
		a.Kernels.Forget(a.Program)
		a.Program.Release()
		a.Program = nil
	}
	if a.Device != nil {
		a.Device.Release()
		a.Device = nil
	}
}
