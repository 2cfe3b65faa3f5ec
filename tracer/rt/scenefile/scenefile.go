// Package scenefile reads sphere scenes from TOML files.
//
//	[camera]
//	position = [0.0, 0.0, 0.0]
//	look_at = [0.0, 0.0, 5.0]
//	orthographic_size = 1.0
//	background = [0.1, 0.1, 0.15, 1.0]
//
//	[[spheres]]
//	name = "ball"
//	center = [0.0, 0.0, 5.0]
//	radius = 1.0
package scenefile

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"

	"github.com/gekko3d/tinyrt/tracer/rt/core"
)

type File struct {
	Camera  *CameraSpec  `toml:"camera"`
	Spheres []SphereSpec `toml:"spheres"`
}

// CameraSpec overrides the fields it sets. LookAt wins over Yaw and Pitch.
type CameraSpec struct {
	Position         *[3]float32 `toml:"position"`
	Yaw              *float32    `toml:"yaw"`
	Pitch            *float32    `toml:"pitch"`
	LookAt           *[3]float32 `toml:"look_at"`
	OrthographicSize *float32    `toml:"orthographic_size"`
	Background       *[4]float32 `toml:"background"`
}

type SphereSpec struct {
	Name   string     `toml:"name"`
	Center [3]float32 `toml:"center"`
	Radius float32    `toml:"radius"`
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scenefile: %w", err)
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenefile: read %q: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return f, nil
}

// SceneSpheres returns the file's spheres in file order with fresh IDs.
func (f *File) SceneSpheres() []core.Sphere {
	out := make([]core.Sphere, len(f.Spheres))
	for i, s := range f.Spheres {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("sphere-%d", i)
		}
		out[i] = core.NewSphere(name, mgl32.Vec3(s.Center), s.Radius)
	}
	return out
}

// Apply replaces the scene's spheres and updates cam from the camera table.
// A nil cam leaves the camera alone.
func (f *File) Apply(scene *core.Scene, cam *core.Camera) {
	scene.Replace(f.SceneSpheres())
	if cam == nil || f.Camera == nil {
		return
	}
	c := f.Camera
	if c.Position != nil {
		cam.Position = mgl32.Vec3(*c.Position)
	}
	if c.Yaw != nil {
		cam.Yaw = *c.Yaw
	}
	if c.Pitch != nil {
		cam.Pitch = *c.Pitch
	}
	if c.LookAt != nil {
		cam.LookAt(mgl32.Vec3(*c.LookAt))
	}
	if c.OrthographicSize != nil {
		cam.OrthographicSize = *c.OrthographicSize
	}
	if c.Background != nil {
		cam.Background = mgl32.Vec4(*c.Background)
	}
}
