package render

import (
	"errors"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/tinyrt/tracer/rt/compute"
	"github.com/gekko3d/tinyrt/tracer/rt/compute/soft"
	"github.com/gekko3d/tinyrt/tracer/rt/core"
	"github.com/gekko3d/tinyrt/tracer/rt/shaders"
)

type transition struct{ from, to State }

func newTestLoop(t *testing.T, device compute.Device, entry string, opts ...Option) *FrameLoop {
	t.Helper()
	program, err := device.CompileProgram(compute.ProgramDescriptor{Label: "raytrace", Source: shaders.RaytraceWGSL})
	require.NoError(t, err)
	kernel, err := compute.Bind(program, entry)
	require.NoError(t, err)
	loop, err := NewFrameLoop(device, kernel, opts...)
	require.NoError(t, err)
	return loop
}

func testCamera() core.Camera {
	cam := core.NewCamera()
	cam.OrthographicSize = 1
	cam.Background = mgl32.Vec4{0, 0, 1, 1}
	return *cam
}

func testSpheres() []core.Sphere {
	return []core.Sphere{core.NewSphere("ball", mgl32.Vec3{0, 0, 5}, 1)}
}

func TestRenderFrameScenario(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	var transitions []transition
	loop := newTestLoop(t, device, shaders.RayTraceEntry, WithStateHook(func(from, to State) {
		transitions = append(transitions, transition{from, to})
	}))
	defer loop.Close()

	surface, err := loop.RenderFrame(testCamera(), testSpheres(), 16, 16)
	require.NoError(t, err)
	require.NotNil(t, surface)

	assert.Equal(t, []transition{
		{StateIdle, StateResizing},
		{StateResizing, StateUploading},
		{StateUploading, StateDispatching},
		{StateDispatching, StateReleasing},
		{StateReleasing, StateIdle},
	}, transitions)
	assert.Equal(t, StateIdle, loop.State())

	assert.Equal(t, compute.GroupCount{2, 2, 1}, loop.GroupCount())
	history := device.Dispatches()
	require.Len(t, history, 1)
	assert.Equal(t, shaders.RayTraceEntry, history[0].Entry)
	assert.Equal(t, compute.GroupCount{2, 2, 1}, history[0].Groups)
	assert.Equal(t, []string{CamerasName, SpheresName, TextureName}, history[0].Bindings)

	assert.Equal(t, 0, loop.Binder().Len())
	assert.Equal(t, 0, device.LiveBuffers())
	assert.Equal(t, Stats{Frames: 1, Dispatches: 1, Resizes: 1}, loop.Stats())

	img, err := device.ReadSurface(surface)
	require.NoError(t, err)
	center := img.RGBAAt(8, 8)
	assert.Greater(t, center.R, uint8(200), "the sphere faces the camera at the center")
	assert.Equal(t, center.R, center.G)
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, img.RGBAAt(0, 0), "corners miss the sphere")
}

func TestRenderFrameUniformVariant(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	loop := newTestLoop(t, device, shaders.RayTraceUniformEntry, WithVariant(VariantUniform))
	defer loop.Close()

	cam := testCamera()
	cam.Position = mgl32.Vec3{100, 100, 100}
	surface, err := loop.RenderFrame(cam, testSpheres(), 16, 8)
	require.NoError(t, err)

	history := device.Dispatches()
	require.Len(t, history, 1)
	assert.Equal(t, []string{BackgroundColorName, OrthographicSizeName, SpheresName, TextureName}, history[0].Bindings)
	assert.Equal(t, compute.GroupCount{2, 1, 1}, history[0].Groups)

	img, err := device.ReadSurface(surface)
	require.NoError(t, err)
	assert.Greater(t, img.RGBAAt(8, 4).R, uint8(200), "the uniform variant ignores the camera position")
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, img.RGBAAt(0, 0))
	assert.Equal(t, 0, device.LiveBuffers())
}

func TestRenderFrameEmptyScene(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	loop := newTestLoop(t, device, shaders.RayTraceEntry)
	defer loop.Close()

	first, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.NoError(t, err)
	before, err := device.ReadSurface(first)
	require.NoError(t, err)

	second, err := loop.RenderFrame(testCamera(), nil, 8, 8)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, device.Dispatches(), 1, "no dispatch for an empty scene")

	after, err := device.ReadSurface(second)
	require.NoError(t, err)
	assert.Equal(t, before.Pix, after.Pix, "pixels from the previous frame are kept")
	assert.Equal(t, 1, loop.Stats().Skipped)
	assert.Equal(t, 0, device.LiveBuffers())
}

func TestRenderFrameEmptySceneBeforeFirstFrame(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	loop := newTestLoop(t, device, shaders.RayTraceEntry)
	defer loop.Close()

	surface, err := loop.RenderFrame(testCamera(), nil, 8, 8)
	require.NoError(t, err)
	assert.NotNil(t, surface, "the output surface is still created")
	assert.Empty(t, device.Dispatches())
}

func TestRenderFrameZeroSize(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	loop := newTestLoop(t, device, shaders.RayTraceEntry)
	defer loop.Close()

	surface, err := loop.RenderFrame(testCamera(), testSpheres(), 0, 8)
	require.NoError(t, err)
	assert.Nil(t, surface)

	first, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.NoError(t, err)
	surface, err = loop.RenderFrame(testCamera(), testSpheres(), 8, 0)
	require.NoError(t, err)
	assert.Same(t, first, surface)
	assert.Equal(t, 2, loop.Stats().Skipped)
	assert.Equal(t, 1, loop.Stats().Dispatches)
}

func TestResizeIsIdempotent(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	loop := newTestLoop(t, device, shaders.RayTraceEntry)
	defer loop.Close()

	require.NoError(t, loop.Resize(1024, 768))
	first := loop.Surface()
	assert.Equal(t, compute.GroupCount{128, 96, 1}, loop.GroupCount())

	require.NoError(t, loop.Resize(1024, 768))
	assert.Equal(t, first.ID(), loop.Surface().ID())
	assert.Equal(t, 1, loop.Stats().Resizes)

	require.NoError(t, loop.Resize(1023, 1))
	assert.NotEqual(t, first.ID(), loop.Surface().ID())
	assert.Equal(t, compute.GroupCount{128, 1, 1}, loop.GroupCount())
	assert.Equal(t, 1, device.LiveSurfaces(), "the old surface is released")
	assert.True(t, first.(*soft.Surface).Released())

	assert.Error(t, loop.Resize(0, 1))
}

func TestRenderFrameReleasesOnDispatchError(t *testing.T) {
	device := soft.NewDevice() // no software bodies: every dispatch fails
	loop := newTestLoop(t, device, shaders.RayTraceEntry)
	defer loop.Close()

	_, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.Error(t, err)
	assert.Equal(t, StateIdle, loop.State())
	assert.Equal(t, 0, loop.Binder().Len())
	assert.Equal(t, 0, device.LiveBuffers())
	assert.Equal(t, 1, loop.Stats().Failures)
	assert.Equal(t, 0, loop.Stats().Dispatches)
}

// failingDevice refuses chosen allocations of the wrapped soft device.
type failingDevice struct {
	*soft.Device
	failBuffer   int // 1-based CreateBuffer call to refuse, 0 for none
	failSurfaces int // upcoming CreateSurface calls to refuse
	buffers      int
}

var errOutOfMemory = errors.New("out of device memory")

func (d *failingDevice) CreateBuffer(desc compute.BufferDescriptor) (compute.Buffer, error) {
	d.buffers++
	if d.buffers == d.failBuffer {
		return nil, errOutOfMemory
	}
	return d.Device.CreateBuffer(desc)
}

func (d *failingDevice) CreateSurface(desc compute.SurfaceDescriptor) (compute.Surface, error) {
	if d.failSurfaces > 0 {
		d.failSurfaces--
		return nil, errOutOfMemory
	}
	return d.Device.CreateSurface(desc)
}

func TestRenderFrameReleasesOnUploadError(t *testing.T) {
	// Cameras uploads, Spheres is refused
	device := &failingDevice{Device: soft.NewDevice(shaders.SoftwareKernels()...), failBuffer: 2}
	loop := newTestLoop(t, device, shaders.RayTraceEntry)
	defer loop.Close()

	_, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, compute.ErrAllocation)
	assert.ErrorIs(t, err, errOutOfMemory)

	assert.Equal(t, StateIdle, loop.State())
	assert.Equal(t, 0, loop.Binder().Len())
	assert.Equal(t, 0, device.LiveBuffers())
	assert.False(t, loop.Kernel().IsBound(CamerasName))
	assert.True(t, loop.Kernel().IsBound(TextureName), "the output surface stays bound")
	assert.Empty(t, device.Dispatches())
	assert.Equal(t, 1, loop.Stats().Failures)

	_, err = loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.NoError(t, err)
	assert.Len(t, device.Dispatches(), 1)
	assert.Equal(t, 0, device.LiveBuffers())
}

func TestRenderFrameRetriesAfterResizeError(t *testing.T) {
	device := &failingDevice{Device: soft.NewDevice(shaders.SoftwareKernels()...), failSurfaces: 1}
	loop := newTestLoop(t, device, shaders.RayTraceEntry)
	defer loop.Close()

	surface, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.ErrorIs(t, err, errOutOfMemory)
	assert.Nil(t, surface)
	assert.Nil(t, loop.Surface())
	assert.Equal(t, StateIdle, loop.State())
	assert.Equal(t, compute.GroupCount{}, loop.GroupCount())

	first, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.NoError(t, err)
	require.NotNil(t, first)

	// growing the output fails after the old surface is gone
	device.failSurfaces = 1
	surface, err = loop.RenderFrame(testCamera(), testSpheres(), 16, 16)
	require.Error(t, err)
	assert.Nil(t, surface)
	assert.Nil(t, loop.Surface())
	assert.Equal(t, StateIdle, loop.State())
	assert.True(t, first.(*soft.Surface).Released())
	assert.False(t, loop.Kernel().IsBound(TextureName))
	assert.Equal(t, 0, device.LiveSurfaces())
	assert.Equal(t, 0, device.LiveBuffers())

	surface, err = loop.RenderFrame(testCamera(), testSpheres(), 16, 16)
	require.NoError(t, err)
	require.NotNil(t, surface)
	assert.Equal(t, uint32(16), surface.Width())
	assert.Equal(t, compute.GroupCount{2, 2, 1}, loop.GroupCount())
	assert.Equal(t, Stats{Frames: 4, Dispatches: 2, Resizes: 2, Failures: 2}, loop.Stats())
}

func TestRenderFrameReleasesOnMissingBinding(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	// the structured kernel never gets Cameras from the uniform variant
	loop := newTestLoop(t, device, shaders.RayTraceEntry, WithVariant(VariantUniform))
	defer loop.Close()

	_, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, compute.ErrNotBound)
	assert.Equal(t, 0, device.LiveBuffers())
	assert.Empty(t, device.Dispatches())
}

func TestCloseReleasesEverything(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	loop := newTestLoop(t, device, shaders.RayTraceEntry)

	_, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, device.LiveSurfaces())

	loop.Close()
	loop.Close()
	assert.Equal(t, 0, device.LiveSurfaces())
	assert.Equal(t, 0, device.LiveBuffers())
	assert.Nil(t, loop.Surface())

	_, err = loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	assert.ErrorIs(t, err, compute.ErrReleased)
}

func TestProfilerRecordsPhases(t *testing.T) {
	device := soft.NewDevice(shaders.SoftwareKernels()...)
	profiler := NewProfiler()
	loop := newTestLoop(t, device, shaders.RayTraceEntry, WithProfiler(profiler))
	defer loop.Close()

	_, err := loop.RenderFrame(testCamera(), testSpheres(), 8, 8)
	require.NoError(t, err)
	assert.Equal(t, []string{PhaseResize, PhaseUpload, PhaseDispatch, PhaseRelease}, profiler.Phases())
	assert.Equal(t, 1, profiler.Count("spheres"))
	assert.Equal(t, 1, profiler.Count("groups"))
	assert.Contains(t, profiler.String(), "dispatch")
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("uniform")
	require.NoError(t, err)
	assert.Equal(t, VariantUniform, v)
	assert.Equal(t, shaders.RayTraceUniformEntry, v.Entry())

	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantStructured, v)
	assert.Equal(t, "structured", v.String())

	_, err = ParseVariant("bogus")
	assert.Error(t, err)
	assert.Equal(t, "Dispatching", StateDispatching.String())
}

func TestBindingNamesMatchProgram(t *testing.T) {
	layout, err := compute.ParseLayout(shaders.RaytraceWGSL)
	require.NoError(t, err)
	for _, name := range []string{TextureName, CamerasName, SpheresName, BackgroundColorName, OrthographicSizeName} {
		_, ok := layout.Binding(name)
		assert.True(t, ok, name)
	}
}
