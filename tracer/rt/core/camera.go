package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is an orthographic camera. Y is up; with zero yaw and pitch it looks
// down +Z.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	// OrthographicSize is half the visible vertical extent in world units.
	OrthographicSize float32
	Background       mgl32.Vec4
}

func NewCamera() *Camera {
	return &Camera{
		Position:         mgl32.Vec3{0, 0, 0},
		OrthographicSize: 1,
		Background:       mgl32.Vec4{0.1, 0.1, 0.15, 1},
	}
}

func (c *Camera) Forward() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

// Right is perpendicular to Forward in the horizontal plane.
func (c *Camera) Right() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(-math.Sin(float64(c.Yaw))),
	}
}

func (c *Camera) Up() mgl32.Vec3 {
	return c.Forward().Cross(c.Right())
}

// LookAt points the camera at target. Looking straight up or down keeps the
// current yaw.
func (c *Camera) LookAt(target mgl32.Vec3) {
	dir := target.Sub(c.Position)
	if dir.Len() == 0 {
		return
	}
	dir = dir.Normalize()
	c.Pitch = float32(math.Asin(float64(mgl32.Clamp(dir.Y(), -1, 1))))
	if math.Abs(float64(dir.Y())) < 0.9999 {
		c.Yaw = float32(math.Atan2(float64(dir.X()), float64(dir.Z())))
	}
}

// Orbit rotates the camera by the given angles, clamping pitch short of the poles.
func (c *Camera) Orbit(dyaw, dpitch float32) {
	const limit = math.Pi/2 - 0.01
	c.Yaw += dyaw
	c.Pitch = mgl32.Clamp(c.Pitch+dpitch, -limit, limit)
}
