package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/tinyrt/tracer/rt/compute"
)

func vecNear(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "expected %v, got %v", want, got)
	}
}

func TestCameraBasis(t *testing.T) {
	cam := NewCamera()
	vecNear(t, mgl32.Vec3{0, 0, 1}, cam.Forward())
	vecNear(t, mgl32.Vec3{1, 0, 0}, cam.Right())
	vecNear(t, mgl32.Vec3{0, 1, 0}, cam.Up())

	cam.Yaw = math.Pi / 2
	vecNear(t, mgl32.Vec3{1, 0, 0}, cam.Forward())
	vecNear(t, mgl32.Vec3{0, 0, -1}, cam.Right())

	cam.Yaw, cam.Pitch = 0.7, -0.4
	assert.InDelta(t, 1.0, cam.Forward().Len(), 1e-5)
	assert.InDelta(t, 0.0, cam.Forward().Dot(cam.Right()), 1e-5)
}

func TestCameraLookAt(t *testing.T) {
	cam := NewCamera()
	cam.Position = mgl32.Vec3{0, 0, -10}
	cam.LookAt(mgl32.Vec3{10, 0, -10})
	vecNear(t, mgl32.Vec3{1, 0, 0}, cam.Forward())

	cam.LookAt(cam.Position)
	vecNear(t, mgl32.Vec3{1, 0, 0}, cam.Forward())

	cam.Orbit(0, 10)
	assert.Less(t, cam.Pitch, float32(math.Pi/2))
}

func TestRecordLayout(t *testing.T) {
	stride, err := compute.RecordStride[CameraRecord]()
	require.NoError(t, err)
	assert.Equal(t, 48, stride)

	stride, err = compute.RecordStride[PrimitiveRecord]()
	require.NoError(t, err)
	assert.Equal(t, 16, stride)
}

func TestMarshalCamera(t *testing.T) {
	cam := Camera{
		Position:         mgl32.Vec3{1, 2, 3},
		OrthographicSize: 2.5,
		Background:       mgl32.Vec4{0.2, 0.3, 0.4, 1},
	}
	rec := MarshalCamera(cam)
	assert.Equal(t, [4]float32{0.2, 0.3, 0.4, 1}, rec.Background)
	assert.Equal(t, [3]float32{1, 2, 3}, rec.Position)
	assert.Equal(t, float32(10), rec.OrthographicHeight)
	vecNear(t, mgl32.Vec3{0, 0, 1}, rec.Forward)
}

func TestMarshalPrimitivesKeepsOrder(t *testing.T) {
	spheres := []Sphere{
		NewSphere("a", mgl32.Vec3{0, 0, 5}, 1),
		NewSphere("b", mgl32.Vec3{3, 0, 5}, -2),
		NewSphere("c", mgl32.Vec3{-3, 1, 8}, 0),
	}
	recs := MarshalPrimitives(spheres)
	require.Len(t, recs, 3)
	assert.Equal(t, PrimitiveRecord{Center: [3]float32{0, 0, 5}, Radius: 1}, recs[0])
	assert.Equal(t, PrimitiveRecord{Center: [3]float32{3, 0, 5}, Radius: -2}, recs[1], "radii pass through unchecked")
	assert.Equal(t, PrimitiveRecord{Center: [3]float32{-3, 1, 8}, Radius: 0}, recs[2])

	assert.Empty(t, MarshalPrimitives(nil))
}

func TestCapture(t *testing.T) {
	cam := NewCamera()
	cam.OrthographicSize = 1
	snap := Capture(*cam, []Sphere{NewSphere("s", mgl32.Vec3{0, 0, 5}, 1)})
	assert.False(t, snap.Empty())
	assert.Equal(t, float32(4), snap.Camera.OrthographicHeight)
	assert.Equal(t, float32(1), snap.OrthographicSize)
	assert.Equal(t, [4]float32(cam.Background), snap.Background)

	assert.True(t, Capture(*cam, nil).Empty())
}

func TestSceneOrdering(t *testing.T) {
	scene := NewScene()
	a := scene.Add(Sphere{Name: "a", Radius: 1})
	b := scene.Add(NewSphere("b", mgl32.Vec3{1, 0, 0}, 1))
	c := scene.Add(Sphere{Name: "c", Radius: 1})
	assert.NotEqual(t, uuid.Nil, a)
	assert.Equal(t, 3, scene.Len())

	assert.True(t, scene.Remove(b))
	assert.False(t, scene.Remove(b))

	spheres := scene.Spheres()
	require.Len(t, spheres, 2)
	assert.Equal(t, a, spheres[0].ID)
	assert.Equal(t, c, spheres[1].ID)

	got, ok := scene.Get(c)
	require.True(t, ok)
	assert.Equal(t, "c", got.Name)

	spheres[0].Name = "changed"
	first, _ := scene.Get(a)
	assert.Equal(t, "a", first.Name, "Spheres returns a copy")

	scene.Replace([]Sphere{{Name: "only"}})
	require.Equal(t, 1, scene.Len())
	assert.NotEqual(t, uuid.Nil, scene.Spheres()[0].ID)
}
