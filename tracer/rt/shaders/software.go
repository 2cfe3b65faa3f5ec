package shaders

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/tinyrt/tracer/rt/compute/soft"
	"github.com/gekko3d/tinyrt/tracer/rt/core"
)

// SoftwareKernels returns the CPU bodies of the RaytraceWGSL entry points.
func SoftwareKernels() []soft.Option {
	return []soft.Option{
		soft.WithKernel(RayTraceEntry, RayTraceKernel),
		soft.WithKernel(RayTraceUniformEntry, RayTraceUniformKernel),
	}
}

// RayTraceKernel is the CPU version of RayTrace.
func RayTraceKernel(res *soft.Resources) (func(soft.Invocation), error) {
	img, err := res.Image("Texture")
	if err != nil {
		return nil, err
	}
	cams, err := soft.Records[core.CameraRecord](res, "Cameras")
	if err != nil {
		return nil, err
	}
	if len(cams) == 0 {
		return nil, errors.New("shaders: Cameras is empty")
	}
	spheres, err := soft.Records[core.PrimitiveRecord](res, "Spheres")
	if err != nil {
		return nil, err
	}
	cam := cams[0]
	t := tracer{
		img:        img,
		spheres:    spheres,
		position:   mgl32.Vec3(cam.Position),
		forward:    mgl32.Vec3(cam.Forward),
		halfHeight: cam.OrthographicHeight * 0.25,
		background: mgl32.Vec4(cam.Background),
	}
	return t.invoke, nil
}

// RayTraceUniformKernel is the CPU version of RayTraceUniform.
func RayTraceUniformKernel(res *soft.Resources) (func(soft.Invocation), error) {
	img, err := res.Image("Texture")
	if err != nil {
		return nil, err
	}
	background, err := soft.Uniform[[4]float32](res, "BackgroundColor")
	if err != nil {
		return nil, err
	}
	size, err := soft.Uniform[float32](res, "OrthographicSize")
	if err != nil {
		return nil, err
	}
	spheres, err := soft.Records[core.PrimitiveRecord](res, "Spheres")
	if err != nil {
		return nil, err
	}
	t := tracer{
		img:        img,
		spheres:    spheres,
		forward:    mgl32.Vec3{0, 0, 1},
		halfHeight: size,
		background: mgl32.Vec4(background),
	}
	return t.invoke, nil
}

type tracer struct {
	img        *image.RGBA
	spheres    []core.PrimitiveRecord
	position   mgl32.Vec3
	forward    mgl32.Vec3
	halfHeight float32
	background mgl32.Vec4
}

func (t *tracer) invoke(inv soft.Invocation) {
	w, h := t.img.Rect.Dx(), t.img.Rect.Dy()
	x, y := int(inv.GlobalID[0]), int(inv.GlobalID[1])
	if x >= w || y >= h {
		return
	}
	origin, dir := t.ray(x, y, w, h)
	t.img.SetRGBA(x, y, toRGBA(t.shade(origin, dir)))
}

func (t *tracer) ray(x, y, w, h int) (mgl32.Vec3, mgl32.Vec3) {
	aspect := float32(w) / float32(h)
	u := (2*(float32(x)+0.5)/float32(w) - 1) * aspect
	v := 1 - 2*(float32(y)+0.5)/float32(h)
	right := basisRight(t.forward)
	up := t.forward.Cross(right)
	origin := t.position.Add(right.Mul(u * t.halfHeight)).Add(up.Mul(v * t.halfHeight))
	return origin, t.forward
}

func (t *tracer) shade(origin, dir mgl32.Vec3) mgl32.Vec4 {
	best := float32(1e30)
	found := false
	var normal mgl32.Vec3
	for _, s := range t.spheres {
		center := mgl32.Vec3(s.Center)
		d := hitSphere(origin, dir, center, s.Radius)
		if d > 0 && d < best {
			best = d
			found = true
			normal = origin.Add(dir.Mul(d)).Sub(center).Normalize()
		}
	}
	if !found {
		return t.background
	}
	lum := max(normal.Dot(dir.Mul(-1)), 0)
	return mgl32.Vec4{lum, lum, lum, 1}
}

func basisRight(forward mgl32.Vec3) mgl32.Vec3 {
	r := mgl32.Vec3{0, 1, 0}.Cross(forward)
	if r.Len() < 1e-5 {
		return mgl32.Vec3{1, 0, 0}
	}
	return r.Normalize()
}

func hitSphere(origin, dir, center mgl32.Vec3, radius float32) float32 {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return -1
	}
	sq := float32(math.Sqrt(float64(disc)))
	d := -b - sq
	if d < 0 {
		d = -b + sq
	}
	return d
}

// toRGBA matches rgba8unorm texel conversion.
func toRGBA(c mgl32.Vec4) color.RGBA {
	return color.RGBA{unorm8(c[0]), unorm8(c[1]), unorm8(c[2]), unorm8(c[3])}
}

func unorm8(v float32) uint8 {
	return uint8(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}
