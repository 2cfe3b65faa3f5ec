package shaders

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/tinyrt/tracer/rt/compute"
)

func TestRaytraceLayout(t *testing.T) {
	layout, err := compute.ParseLayout(RaytraceWGSL)
	require.NoError(t, err)
	require.Len(t, layout.Entries, 2)

	trace, ok := layout.EntryPoint(RayTraceEntry)
	require.True(t, ok)
	assert.Equal(t, 0, trace.Index)
	assert.Equal(t, [3]uint32{8, 8, 1}, trace.WorkgroupSize)
	assert.Equal(t, []string{"Cameras", "Spheres", "Texture"}, trace.Uses)

	uniform, ok := layout.EntryPoint(RayTraceUniformEntry)
	require.True(t, ok)
	assert.Equal(t, 1, uniform.Index)
	assert.Equal(t, []string{"BackgroundColor", "OrthographicSize", "Spheres", "Texture"}, uniform.Uses)

	bg, _ := layout.Binding("BackgroundColor")
	assert.Equal(t, compute.BindingUniformBuffer, bg.Kind)
	tex, _ := layout.Binding("Texture")
	assert.Equal(t, compute.BindingStorageTexture, tex.Kind)
	assert.Equal(t, "write", tex.Access)
}

func TestFullscreenHasNoComputeEntries(t *testing.T) {
	layout, err := compute.ParseLayout(FullscreenWGSL)
	require.NoError(t, err)
	assert.Empty(t, layout.Entries)
	assert.Len(t, layout.Bindings, 2)
}

func TestHitSphere(t *testing.T) {
	origin := mgl32.Vec3{0, 0, 0}
	dir := mgl32.Vec3{0, 0, 1}

	assert.InDelta(t, 4.0, hitSphere(origin, dir, mgl32.Vec3{0, 0, 5}, 1), 1e-5)
	assert.Less(t, hitSphere(origin, dir, mgl32.Vec3{3, 0, 5}, 1), float32(0))
	assert.InDelta(t, 1.0, hitSphere(origin, dir, mgl32.Vec3{0, 0, 0}, 1), 1e-5, "origin inside the sphere")
	assert.Less(t, hitSphere(origin, dir, mgl32.Vec3{0, 0, -5}, 1), float32(0), "sphere behind the ray")
}

func TestBasisRight(t *testing.T) {
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, basisRight(mgl32.Vec3{0, 1, 0}))
	r := basisRight(mgl32.Vec3{0, 0, 1})
	assert.True(t, r.ApproxEqual(mgl32.Vec3{1, 0, 0}))
}

func TestUnorm8(t *testing.T) {
	assert.Equal(t, uint8(0), unorm8(-1))
	assert.Equal(t, uint8(128), unorm8(0.5))
	assert.Equal(t, uint8(255), unorm8(1))
	assert.Equal(t, uint8(255), unorm8(7))
}
