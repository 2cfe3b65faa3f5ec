// Package soft runs compute programs on the CPU. Program source is reflected
// like on the GPU device, but entry points execute registered Go bodies.
package soft

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gekko3d/tinyrt"
	"github.com/gekko3d/tinyrt/tracer/rt/compute"
	"github.com/google/uuid"
)

// Kernel prepares one dispatch of an entry point. It resolves the bound
// resources once and returns the per-invocation body.
type Kernel func(res *Resources) (func(inv Invocation), error)

// Invocation identifies one thread of a dispatch.
type Invocation struct {
	GlobalID      [3]uint32
	LocalID       [3]uint32
	WorkgroupID   [3]uint32
	NumWorkgroups [3]uint32
}

// DispatchRecord is one completed dispatch, kept for inspection.
type DispatchRecord struct {
	Program  string
	Entry    string
	Groups   compute.GroupCount
	Bindings []string
}

type Option func(*Device)

// WithKernel registers the Go body executed for entry point name.
func WithKernel(name string, k Kernel) Option {
	return func(d *Device) { d.kernels[name] = k }
}

func WithLogger(l tinyrt.Logger) Option {
	return func(d *Device) { d.logger = tinyrt.OrNop(l) }
}

type Device struct {
	mu       sync.Mutex
	kernels  map[string]Kernel
	logger   tinyrt.Logger
	released bool

	liveBuffers  int
	liveSurfaces int
	history      []DispatchRecord
}

func NewDevice(opts ...Option) *Device {
	d := &Device{
		kernels: make(map[string]Kernel),
		logger:  tinyrt.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) CompileProgram(desc compute.ProgramDescriptor) (compute.Program, error) {
	if d.isReleased() {
		return nil, fmt.Errorf("soft: compile %q: %w", desc.Label, compute.ErrReleased)
	}
	layout, err := compute.ParseLayout(desc.Source)
	if err != nil {
		return nil, fmt.Errorf("soft: compile %q: %w", desc.Label, err)
	}
	for _, e := range layout.Entries {
		if _, ok := d.kernels[e.Name]; !ok {
			d.logger.Warnf("soft: entry point %q of %q has no software body", e.Name, desc.Label)
		}
	}
	d.logger.Debugf("soft: compiled %q with %d entry points", desc.Label, len(layout.Entries))
	return &Program{device: d, label: desc.Label, layout: layout}, nil
}

func (d *Device) CreateBuffer(desc compute.BufferDescriptor) (compute.Buffer, error) {
	if d.isReleased() {
		return nil, compute.ErrReleased
	}
	if desc.Stride <= 0 || desc.Count <= 0 {
		return nil, fmt.Errorf("soft: buffer %q has no records", desc.Label)
	}
	size := desc.Stride * desc.Count
	if len(desc.Contents) > size {
		return nil, fmt.Errorf("soft: buffer %q contents (%d bytes) exceed its size %d", desc.Label, len(desc.Contents), size)
	}
	data := make([]byte, size)
	copy(data, desc.Contents)

	d.mu.Lock()
	d.liveBuffers++
	d.mu.Unlock()
	return &Buffer{
		device: d,
		label:  desc.Label,
		kind:   desc.Kind,
		stride: desc.Stride,
		count:  desc.Count,
		data:   data,
	}, nil
}

func (d *Device) CreateSurface(desc compute.SurfaceDescriptor) (compute.Surface, error) {
	if d.isReleased() {
		return nil, compute.ErrReleased
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("soft: surface %q has zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	d.mu.Lock()
	d.liveSurfaces++
	d.mu.Unlock()
	return &Surface{
		device:      d,
		id:          uuid.New(),
		label:       desc.Label,
		randomWrite: desc.RandomWrite,
		img:         image.NewRGBA(image.Rect(0, 0, int(desc.Width), int(desc.Height))),
	}, nil
}

func (d *Device) ReadBuffer(buf compute.Buffer) ([]byte, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("soft: foreign buffer %T", buf)
	}
	if b.released {
		return nil, fmt.Errorf("soft: read %q: %w", b.label, compute.ErrReleased)
	}
	return append([]byte(nil), b.data...), nil
}

func (d *Device) ReadSurface(s compute.Surface) (*image.RGBA, error) {
	surf, ok := s.(*Surface)
	if !ok {
		return nil, fmt.Errorf("soft: foreign surface %T", s)
	}
	if surf.released {
		return nil, fmt.Errorf("soft: read surface %q: %w", surf.label, compute.ErrReleased)
	}
	out := image.NewRGBA(surf.img.Rect)
	copy(out.Pix, surf.img.Pix)
	return out, nil
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}

// LiveBuffers returns the number of created buffers not yet released.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveBuffers
}

// LiveSurfaces returns the number of created surfaces not yet released.
func (d *Device) LiveSurfaces() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveSurfaces
}

// Dispatches returns the dispatches executed so far, oldest first.
func (d *Device) Dispatches() []DispatchRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DispatchRecord(nil), d.history...)
}

func (d *Device) isReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *Device) record(r DispatchRecord) {
	d.mu.Lock()
	d.history = append(d.history, r)
	d.mu.Unlock()
}

func (d *Device) releaseBuffer() {
	d.mu.Lock()
	d.liveBuffers--
	d.mu.Unlock()
}

func (d *Device) releaseSurface() {
	d.mu.Lock()
	d.liveSurfaces--
	d.mu.Unlock()
}

type Program struct {
	device   *Device
	label    string
	layout   *compute.Layout
	released bool
}

func (p *Program) Label() string           { return p.label }
func (p *Program) Layout() *compute.Layout { return p.layout }
func (p *Program) Release()                { p.released = true }

// Dispatch runs the whole invocation grid before returning. Work-group rows
// run in parallel.
func (p *Program) Dispatch(desc compute.DispatchDescriptor) error {
	if p.released {
		return fmt.Errorf("soft: program %q: %w", p.label, compute.ErrReleased)
	}
	body, ok := p.device.kernels[desc.Entry.Name]
	if !ok {
		return fmt.Errorf("soft: no software body for entry point %q", desc.Entry.Name)
	}
	res, err := newResources(desc.Bindings)
	if err != nil {
		return err
	}
	fn, err := body(res)
	if err != nil {
		return fmt.Errorf("soft: prepare %q: %w", desc.Entry.Name, err)
	}

	groups := desc.Groups
	local := desc.Entry.WorkgroupSize
	for i := range local {
		if local[i] == 0 {
			local[i] = 1
		}
	}
	var wg sync.WaitGroup
	for gz := uint32(0); gz < groups[2]; gz++ {
		for gy := uint32(0); gy < groups[1]; gy++ {
			wg.Add(1)
			go func(gy, gz uint32) {
				defer wg.Done()
				for gx := uint32(0); gx < groups[0]; gx++ {
					runGroup(fn, [3]uint32{gx, gy, gz}, local, groups)
				}
			}(gy, gz)
		}
	}
	wg.Wait()

	names := make([]string, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		names = append(names, b.Slot.Name)
	}
	p.device.record(DispatchRecord{Program: p.label, Entry: desc.Entry.Name, Groups: groups, Bindings: names})
	return nil
}

func runGroup(fn func(Invocation), group, local [3]uint32, groups compute.GroupCount) {
	for lz := uint32(0); lz < local[2]; lz++ {
		for ly := uint32(0); ly < local[1]; ly++ {
			for lx := uint32(0); lx < local[0]; lx++ {
				fn(Invocation{
					GlobalID: [3]uint32{
						group[0]*local[0] + lx,
						group[1]*local[1] + ly,
						group[2]*local[2] + lz,
					},
					LocalID:       [3]uint32{lx, ly, lz},
					WorkgroupID:   group,
					NumWorkgroups: groups,
				})
			}
		}
	}
}

type Buffer struct {
	device   *Device
	label    string
	kind     compute.BufferKind
	stride   int
	count    int
	data     []byte
	released bool
}

func (b *Buffer) Label() string            { return b.label }
func (b *Buffer) Kind() compute.BufferKind { return b.kind }
func (b *Buffer) Stride() int              { return b.stride }
func (b *Buffer) Count() int               { return b.count }
func (b *Buffer) Size() uint64             { return uint64(len(b.data)) }
func (b *Buffer) Released() bool           { return b.released }

func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.data = nil
	b.device.releaseBuffer()
}

type Surface struct {
	device      *Device
	id          uuid.UUID
	label       string
	randomWrite bool
	img         *image.RGBA
	released    bool
}

func (s *Surface) ID() uuid.UUID     { return s.id }
func (s *Surface) Width() uint32     { return uint32(s.img.Rect.Dx()) }
func (s *Surface) Height() uint32    { return uint32(s.img.Rect.Dy()) }
func (s *Surface) RandomWrite() bool { return s.randomWrite }
func (s *Surface) Released() bool    { return s.released }

func (s *Surface) Release() {
	if s.released {
		return
	}
	s.released = true
	s.device.releaseSurface()
}

var errForeign = errors.New("soft: resource belongs to another device")
