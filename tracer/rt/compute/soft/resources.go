package soft

import (
	"fmt"
	"image"

	"github.com/gekko3d/tinyrt/tracer/rt/compute"
)

// Resources exposes the resources bound to one dispatch by binding name.
type Resources struct {
	buffers map[string]*Buffer
	images  map[string]*Surface
}

func newResources(bindings []compute.Binding) (*Resources, error) {
	res := &Resources{
		buffers: make(map[string]*Buffer),
		images:  make(map[string]*Surface),
	}
	for _, b := range bindings {
		name := b.Slot.Name
		switch {
		case b.Buffer != nil:
			buf, ok := b.Buffer.(*Buffer)
			if !ok {
				return nil, fmt.Errorf("%w: buffer %q is %T", errForeign, name, b.Buffer)
			}
			if buf.released {
				return nil, fmt.Errorf("soft: buffer %q: %w", name, compute.ErrReleased)
			}
			res.buffers[name] = buf
		case b.Surface != nil:
			s, ok := b.Surface.(*Surface)
			if !ok {
				return nil, fmt.Errorf("%w: image %q is %T", errForeign, name, b.Surface)
			}
			if s.released {
				return nil, fmt.Errorf("soft: image %q: %w", name, compute.ErrReleased)
			}
			if b.Slot.Kind == compute.BindingStorageTexture && !s.randomWrite {
				return nil, fmt.Errorf("soft: image %q is bound as a storage texture without random write", name)
			}
			res.images[name] = s
		default:
			return nil, fmt.Errorf("soft: empty binding %q", name)
		}
	}
	return res, nil
}

// Bytes returns the backing store of a bound buffer.
func (r *Resources) Bytes(name string) ([]byte, error) {
	buf, ok := r.buffers[name]
	if !ok {
		return nil, fmt.Errorf("soft: buffer %q not bound", name)
	}
	return buf.data, nil
}

// Image returns the pixels of a bound surface. Invocations may write distinct
// pixels concurrently.
func (r *Resources) Image(name string) (*image.RGBA, error) {
	s, ok := r.images[name]
	if !ok {
		return nil, fmt.Errorf("soft: image %q not bound", name)
	}
	return s.img, nil
}

// Records decodes a bound buffer as T records.
func Records[T any](r *Resources, name string) ([]T, error) {
	data, err := r.Bytes(name)
	if err != nil {
		return nil, err
	}
	return compute.DecodeRecords[T](data)
}

// Uniform decodes the first record of a bound buffer.
func Uniform[T any](r *Resources, name string) (T, error) {
	var zero T
	records, err := Records[T](r, name)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, fmt.Errorf("soft: uniform %q is empty", name)
	}
	return records[0], nil
}
