package render

import (
	"fmt"

	"github.com/gekko3d/tinyrt"
	"github.com/gekko3d/tinyrt/tracer/rt/compute"
	"github.com/gekko3d/tinyrt/tracer/rt/core"
	"github.com/gekko3d/tinyrt/tracer/rt/shaders"
)

// Binding names shared between the frame loop and the ray tracing program.
const (
	TextureName          = "Texture"
	CamerasName          = "Cameras"
	SpheresName          = "Spheres"
	BackgroundColorName  = "BackgroundColor"
	OrthographicSizeName = "OrthographicSize"
)

// Variant selects how the camera reaches the kernel.
type Variant int

const (
	// VariantStructured uploads one CameraRecord under Cameras.
	VariantStructured Variant = iota
	// VariantUniform uploads BackgroundColor and OrthographicSize uniforms.
	VariantUniform
)

func (v Variant) String() string {
	switch v {
	case VariantStructured:
		return "structured"
	case VariantUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// Entry returns the default entry point of the embedded ray tracer for v.
func (v Variant) Entry() string {
	if v == VariantUniform {
		return shaders.RayTraceUniformEntry
	}
	return shaders.RayTraceEntry
}

// Bindings lists the names the variant uploads or binds each frame.
func (v Variant) Bindings() []string {
	if v == VariantUniform {
		return []string{BackgroundColorName, OrthographicSizeName, SpheresName, TextureName}
	}
	return []string{CamerasName, SpheresName, TextureName}
}

func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "structured":
		return VariantStructured, nil
	case "uniform":
		return VariantUniform, nil
	}
	return 0, fmt.Errorf("render: unknown variant %q", s)
}

type State int

const (
	StateIdle State = iota
	StateResizing
	StateUploading
	StateDispatching
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateResizing:
		return "Resizing"
	case StateUploading:
		return "Uploading"
	case StateDispatching:
		return "Dispatching"
	case StateReleasing:
		return "Releasing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Stats struct {
	Frames     int
	Dispatches int
	Skipped    int
	Resizes    int
	Failures   int
}

type Option func(*FrameLoop)

func WithLogger(l tinyrt.Logger) Option {
	return func(f *FrameLoop) { f.logger = tinyrt.OrNop(l) }
}

func WithVariant(v Variant) Option {
	return func(f *FrameLoop) { f.variant = v }
}

func WithProfiler(p *Profiler) Option {
	return func(f *FrameLoop) { f.profiler = p }
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(f *FrameLoop) { f.onState = fn }
}

// FrameLoop renders one frame per RenderFrame call: resize the output surface
// when needed, upload the scene, dispatch, release the frame's buffers.
// It is not safe for concurrent use.
type FrameLoop struct {
	device   compute.Device
	kernel   *compute.Kernel
	binder   *compute.Binder
	variant  Variant
	surface  compute.Surface
	groups   compute.GroupCount
	state    State
	stats    Stats
	closed   bool
	profiler *Profiler
	logger   tinyrt.Logger
	onState  func(from, to State)
}

func NewFrameLoop(device compute.Device, kernel *compute.Kernel, opts ...Option) (*FrameLoop, error) {
	f := &FrameLoop{
		device:   device,
		kernel:   kernel,
		profiler: NewProfiler(),
		logger:   tinyrt.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	binder, err := compute.NewBinder(device, kernel, compute.WithBinderLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	f.binder = binder

	provided := make(map[string]bool)
	for _, name := range f.variant.Bindings() {
		provided[name] = true
	}
	for _, name := range kernel.Uses() {
		if !provided[name] {
			f.logger.Warnf("render: kernel %q uses %q which the %s variant never binds", kernel.Name(), name, f.variant)
		}
	}
	f.logger.Debugf("render: frame loop on kernel %q, variant %s, work group %v", kernel.Name(), f.variant, kernel.ThreadsCount())
	return f, nil
}

func (f *FrameLoop) Kernel() *compute.Kernel        { return f.kernel }
func (f *FrameLoop) Binder() *compute.Binder        { return f.binder }
func (f *FrameLoop) Variant() Variant               { return f.variant }
func (f *FrameLoop) Surface() compute.Surface       { return f.surface }
func (f *FrameLoop) GroupCount() compute.GroupCount { return f.groups }
func (f *FrameLoop) State() State                   { return f.state }
func (f *FrameLoop) Stats() Stats                   { return f.stats }
func (f *FrameLoop) Profiler() *Profiler            { return f.profiler }

// RenderFrame draws spheres as seen by cam into a width x height surface and
// returns it. A zero size or an empty sphere list skips the frame and returns
// the current surface unchanged, which may be nil before the first frame.
// The returned surface stays owned by the frame loop.
func (f *FrameLoop) RenderFrame(cam core.Camera, spheres []core.Sphere, width, height uint32) (compute.Surface, error) {
	if f.closed {
		return nil, fmt.Errorf("render: frame loop: %w", compute.ErrReleased)
	}
	f.stats.Frames++

	if width == 0 || height == 0 {
		f.stats.Skipped++
		f.logger.Debugf("render: skipping frame with output size %dx%d", width, height)
		return f.surface, nil
	}
	if err := f.resize(width, height); err != nil {
		f.stats.Failures++
		f.setState(StateIdle)
		return nil, err
	}

	snap := core.Capture(cam, spheres)
	if snap.Empty() {
		f.stats.Skipped++
		f.setState(StateIdle)
		return f.surface, nil
	}
	if err := f.submit(snap); err != nil {
		f.stats.Failures++
		return nil, err
	}
	return f.surface, nil
}

// Resize makes sure the output surface is width x height. Same dimensions are a no-op.
func (f *FrameLoop) Resize(width, height uint32) error {
	if f.closed {
		return fmt.Errorf("render: frame loop: %w", compute.ErrReleased)
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("render: cannot resize to %dx%d", width, height)
	}
	err := f.resize(width, height)
	f.setState(StateIdle)
	return err
}

func (f *FrameLoop) resize(width, height uint32) error {
	if f.surface != nil && f.surface.Width() == width && f.surface.Height() == height {
		return nil
	}
	f.setState(StateResizing)
	f.profiler.Begin(PhaseResize)
	defer f.profiler.End(PhaseResize)

	if f.surface != nil {
		f.binder.UnbindImage(TextureName)
		f.surface.Release()
		f.surface = nil
		f.groups = compute.GroupCount{}
	}
	surface, err := f.device.CreateSurface(compute.SurfaceDescriptor{
		Label:       "output",
		Width:       width,
		Height:      height,
		RandomWrite: true,
	})
	if err != nil {
		return fmt.Errorf("render: create %dx%d output: %w", width, height, err)
	}
	if err := f.binder.SetImage(TextureName, surface); err != nil {
		surface.Release()
		return fmt.Errorf("render: bind output: %w", err)
	}
	f.surface = surface
	f.groups = compute.ThreadGroups(width, height, f.kernel.ThreadsCount())
	f.stats.Resizes++
	f.logger.Debugf("render: output resized to %dx%d, %s work groups", width, height, f.groups)
	return nil
}

func (f *FrameLoop) submit(snap core.Snapshot) error {
	f.setState(StateUploading)
	defer func() {
		f.setState(StateReleasing)
		f.profiler.Begin(PhaseRelease)
		f.binder.ReleaseAll()
		f.profiler.End(PhaseRelease)
		f.setState(StateIdle)
	}()

	f.profiler.Begin(PhaseUpload)
	err := f.upload(snap)
	f.profiler.End(PhaseUpload)
	if err != nil {
		return fmt.Errorf("render: upload: %w", err)
	}
	f.profiler.SetCount("spheres", len(snap.Primitives))

	f.setState(StateDispatching)
	f.profiler.Begin(PhaseDispatch)
	err = f.kernel.Dispatch(f.groups)
	f.profiler.End(PhaseDispatch)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	f.stats.Dispatches++
	f.profiler.SetCount("groups", int(f.groups.Total()))
	return nil
}

func (f *FrameLoop) upload(snap core.Snapshot) error {
	switch f.variant {
	case VariantUniform:
		if err := compute.SetUniform(f.binder, BackgroundColorName, snap.Background); err != nil {
			return err
		}
		if err := compute.SetUniform(f.binder, OrthographicSizeName, snap.OrthographicSize); err != nil {
			return err
		}
	default:
		if err := compute.SetBuffer(f.binder, CamerasName, []core.CameraRecord{snap.Camera}, compute.BufferStructured); err != nil {
			return err
		}
	}
	return compute.SetBuffer(f.binder, SpheresName, snap.Primitives, compute.BufferStructured)
}

// Close releases the frame's tracked buffers and the output surface.
func (f *FrameLoop) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.binder.ReleaseAll()
	if f.surface != nil {
		f.binder.UnbindImage(TextureName)
		f.surface.Release()
		f.surface = nil
	}
	f.groups = compute.GroupCount{}
	f.setState(StateIdle)
}

func (f *FrameLoop) setState(s State) {
	if s == f.state {
		return
	}
	prev := f.state
	f.state = s
	if f.onState != nil {
		f.onState(prev, s)
	}
}
