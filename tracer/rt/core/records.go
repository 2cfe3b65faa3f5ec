package core

// CameraRecord is the per-frame camera as the ray tracing kernel reads it.
// The trailing pad keeps the record a multiple of 16 bytes.
type CameraRecord struct {
	Background         [4]float32
	Forward            [3]float32
	OrthographicHeight float32
	Position           [3]float32
	_                  float32
}

type PrimitiveRecord struct {
	Center [3]float32
	Radius float32
}

// MarshalCamera converts cam into the kernel layout. OrthographicHeight is
// four times the camera's half-size.
func MarshalCamera(cam Camera) CameraRecord {
	return CameraRecord{
		Background:         cam.Background,
		Forward:            cam.Forward(),
		OrthographicHeight: 4 * cam.OrthographicSize,
		Position:           cam.Position,
	}
}

// MarshalPrimitives keeps the input order; the kernel indexes spheres by position.
func MarshalPrimitives(spheres []Sphere) []PrimitiveRecord {
	out := make([]PrimitiveRecord, len(spheres))
	for i, s := range spheres {
		out[i] = PrimitiveRecord{Center: s.Center, Radius: s.Radius}
	}
	return out
}

// Snapshot is one frame's immutable scene state.
type Snapshot struct {
	Camera     CameraRecord
	Primitives []PrimitiveRecord
	// Background and OrthographicSize feed the uniform binding variant.
	Background       [4]float32
	OrthographicSize float32
}

func Capture(cam Camera, spheres []Sphere) Snapshot {
	return Snapshot{
		Camera:           MarshalCamera(cam),
		Primitives:       MarshalPrimitives(spheres),
		Background:       cam.Background,
		OrthographicSize: cam.OrthographicSize,
	}
}

func (s Snapshot) Empty() bool { return len(s.Primitives) == 0 }
