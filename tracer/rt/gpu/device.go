// Package gpu implements compute.Device on WebGPU.
package gpu

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/naga"
	"github.com/google/uuid"

	"github.com/gekko3d/tinyrt"
	"github.com/gekko3d/tinyrt/tracer/rt/compute"
)

type Option func(*Device)

func WithLogger(l tinyrt.Logger) Option {
	return func(d *Device) { d.logger = tinyrt.OrNop(l) }
}

// WithValidation runs every program through the naga WGSL front end before
// handing it to the driver.
func WithValidation(enabled bool) Option {
	return func(d *Device) { d.validate = enabled }
}

// WithWindow creates a presentable surface for win and picks an adapter that
// can drive it.
func WithWindow(win *glfw.Window) Option {
	return func(d *Device) { d.window = win }
}

type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface
	window   *glfw.Window

	validate bool
	released bool
	logger   tinyrt.Logger
}

func NewDevice(opts ...Option) (*Device, error) {
	d := &Device{logger: tinyrt.NewNopLogger()}
	for _, opt := range opts {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	if d.window != nil {
		d.surface = d.instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(d.window))
	}
	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: d.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}
	d.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "tinyrt device",
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("gpu: request device: %w", err)
	}
	d.device = device
	d.queue = device.GetQueue()

	d.logger.Infof("gpu: device ready (window surface: %t)", d.surface != nil)
	return d, nil
}

func (d *Device) CompileProgram(desc compute.ProgramDescriptor) (compute.Program, error) {
	if d.released {
		return nil, fmt.Errorf("gpu: compile %q: %w", desc.Label, compute.ErrReleased)
	}
	if d.validate {
		if _, err := naga.Compile(desc.Source); err != nil {
			return nil, fmt.Errorf("gpu: validate %q: %w", desc.Label, err)
		}
	}
	layout, err := compute.ParseLayout(desc.Source)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %q: %w", desc.Label, err)
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %q: %w", desc.Label, err)
	}
	d.logger.Debugf("gpu: compiled %q with %d entry points", desc.Label, len(layout.Entries))
	return &Program{
		device:    d,
		label:     desc.Label,
		layout:    layout,
		module:    module,
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

func (d *Device) CreateBuffer(desc compute.BufferDescriptor) (compute.Buffer, error) {
	if d.released {
		return nil, compute.ErrReleased
	}
	if desc.Stride <= 0 || desc.Count <= 0 {
		return nil, fmt.Errorf("gpu: buffer %q has no records", desc.Label)
	}
	size := uint64(desc.Stride * desc.Count)
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	if desc.Kind == compute.BufferUniform {
		usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	}
	contents := make([]byte, align4(size))
	copy(contents, desc.Contents)

	buf, err := d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    desc.Label,
		Contents: contents,
		Usage:    usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q: %w", desc.Label, err)
	}
	return &Buffer{
		buf:    buf,
		label:  desc.Label,
		kind:   desc.Kind,
		stride: desc.Stride,
		count:  desc.Count,
		size:   size,
	}, nil
}

func (d *Device) CreateSurface(desc compute.SurfaceDescriptor) (compute.Surface, error) {
	if d.released {
		return nil, compute.ErrReleased
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("gpu: surface %q has zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst
	if desc.RandomWrite {
		usage = wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create surface %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("gpu: create surface view %q: %w", desc.Label, err)
	}
	return &Surface{
		id:          uuid.New(),
		texture:     tex,
		view:        view,
		width:       desc.Width,
		height:      desc.Height,
		randomWrite: desc.RandomWrite,
	}, nil
}

// ReadBuffer copies buf into a staging buffer and waits for the device to map it.
func (d *Device) ReadBuffer(buf compute.Buffer) ([]byte, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("gpu: foreign buffer %T", buf)
	}
	if b.buf == nil {
		return nil, fmt.Errorf("gpu: read %q: %w", b.label, compute.ErrReleased)
	}
	size := align4(b.size)
	data, err := d.readback(b.label, size, func(encoder *wgpu.CommandEncoder, staging *wgpu.Buffer) error {
		return encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, size)
	})
	if err != nil {
		return nil, err
	}
	return data[:b.size], nil
}

// ReadSurface copies the surface texels into an RGBA image. Rows are padded
// to 256 bytes on the device side.
func (d *Device) ReadSurface(s compute.Surface) (*image.RGBA, error) {
	surf, ok := s.(*Surface)
	if !ok {
		return nil, fmt.Errorf("gpu: foreign surface %T", s)
	}
	if surf.texture == nil {
		return nil, fmt.Errorf("gpu: read surface: %w", compute.ErrReleased)
	}
	w, h := surf.width, surf.height
	bytesPerRow := (w*4 + 255) &^ uint32(255)
	data, err := d.readback("surface readback", uint64(bytesPerRow)*uint64(h), func(encoder *wgpu.CommandEncoder, staging *wgpu.Buffer) error {
		return encoder.CopyTextureToBuffer(
			&wgpu.ImageCopyTexture{
				Texture:  surf.texture,
				MipLevel: 0,
				Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: 0},
			},
			&wgpu.ImageCopyBuffer{
				Buffer: staging,
				Layout: wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  bytesPerRow,
					RowsPerImage: h,
				},
			},
			&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		)
	})
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := uint32(0); y < h; y++ {
		copy(img.Pix[y*w*4:(y+1)*w*4], data[y*bytesPerRow:y*bytesPerRow+w*4])
	}
	return img, nil
}

// readback runs record to copy into a mappable staging buffer, then blocks
// until the copy can be read on the CPU.
func (d *Device) readback(label string, size uint64, record func(*wgpu.CommandEncoder, *wgpu.Buffer) error) ([]byte, error) {
	if d.released {
		return nil, compute.ErrReleased
	}
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label + " staging",
		Size:             size,
		Usage:            wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: staging buffer for %q: %w", label, err)
	}
	defer staging.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: readback %q: %w", label, err)
	}
	defer encoder.Release()
	if err := record(encoder, staging); err != nil {
		return nil, fmt.Errorf("gpu: copy %q: %w", label, err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: readback %q: %w", label, err)
	}
	defer cmd.Release()
	d.queue.Submit(cmd)

	var status wgpu.BufferMapAsyncStatus
	mapped := false
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		mapped = true
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: map %q: %w", label, err)
	}
	for !mapped {
		d.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("gpu: map %q: status %v", label, status)
	}
	out := make([]byte, size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	if err := staging.Unmap(); err != nil {
		return nil, fmt.Errorf("gpu: unmap %q: %w", label, err)
	}
	return out, nil
}

func (d *Device) Release() {
	if d.released {
		return
	}
	d.released = true
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}

type Program struct {
	device    *Device
	label     string
	layout    *compute.Layout
	module    *wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
}

func (p *Program) Label() string           { return p.label }
func (p *Program) Layout() *compute.Layout { return p.layout }

func (p *Program) pipeline(entry string) (*wgpu.ComputePipeline, error) {
	if pl, ok := p.pipelines[entry]; ok {
		return pl, nil
	}
	pl, err := p.device.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: p.label + "/" + entry,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     p.module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: pipeline %q: %w", entry, err)
	}
	p.pipelines[entry] = pl
	return pl, nil
}

// Dispatch records one compute pass and submits it. It does not wait for the
// GPU; released bindings stay alive on the device until the pass completes.
func (p *Program) Dispatch(desc compute.DispatchDescriptor) error {
	if p.module == nil {
		return fmt.Errorf("gpu: program %q: %w", p.label, compute.ErrReleased)
	}
	pipeline, err := p.pipeline(desc.Entry.Name)
	if err != nil {
		return err
	}

	byGroup := make(map[uint32][]wgpu.BindGroupEntry)
	for _, b := range desc.Bindings {
		entry := wgpu.BindGroupEntry{Binding: b.Slot.Binding}
		switch {
		case b.Buffer != nil:
			buf, ok := b.Buffer.(*Buffer)
			if !ok || buf.buf == nil {
				return fmt.Errorf("gpu: buffer %q is foreign or released", b.Slot.Name)
			}
			entry.Buffer = buf.buf
			entry.Size = buf.size
		case b.Surface != nil:
			s, ok := b.Surface.(*Surface)
			if !ok || s.view == nil {
				return fmt.Errorf("gpu: image %q is foreign or released", b.Slot.Name)
			}
			entry.TextureView = s.view
		default:
			return fmt.Errorf("gpu: empty binding %q", b.Slot.Name)
		}
		byGroup[b.Slot.Group] = append(byGroup[b.Slot.Group], entry)
	}
	groupIDs := make([]uint32, 0, len(byGroup))
	for g := range byGroup {
		groupIDs = append(groupIDs, g)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	bindGroups := make([]*wgpu.BindGroup, 0, len(groupIDs))
	defer func() {
		for _, bg := range bindGroups {
			bg.Release()
		}
	}()
	for _, g := range groupIDs {
		layout := pipeline.GetBindGroupLayout(g)
		bg, err := p.device.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s/%s group %d", p.label, desc.Entry.Name, g),
			Layout:  layout,
			Entries: byGroup[g],
		})
		layout.Release()
		if err != nil {
			return fmt.Errorf("gpu: bind group %d of %q: %w", g, desc.Entry.Name, err)
		}
		bindGroups = append(bindGroups, bg)
	}

	encoder, err := p.device.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: dispatch %q: %w", desc.Entry.Name, err)
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	for i, g := range groupIDs {
		pass.SetBindGroup(g, bindGroups[i], nil)
	}
	pass.DispatchWorkgroups(desc.Groups[0], desc.Groups[1], desc.Groups[2])
	err = pass.End()
	pass.Release()
	if err != nil {
		return fmt.Errorf("gpu: compute pass %q: %w", desc.Entry.Name, err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("gpu: dispatch %q: %w", desc.Entry.Name, err)
	}
	p.device.queue.Submit(cmd)
	cmd.Release()
	return nil
}

func (p *Program) Release() {
	for name, pl := range p.pipelines {
		pl.Release()
		delete(p.pipelines, name)
	}
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}

type Buffer struct {
	buf    *wgpu.Buffer
	label  string
	kind   compute.BufferKind
	stride int
	count  int
	size   uint64
}

func (b *Buffer) Label() string            { return b.label }
func (b *Buffer) Kind() compute.BufferKind { return b.kind }
func (b *Buffer) Stride() int              { return b.stride }
func (b *Buffer) Count() int               { return b.count }
func (b *Buffer) Size() uint64             { return b.size }

func (b *Buffer) Release() {
	if b.buf == nil {
		return
	}
	b.buf.Release()
	b.buf = nil
}

type Surface struct {
	id          uuid.UUID
	texture     *wgpu.Texture
	view        *wgpu.TextureView
	width       uint32
	height      uint32
	randomWrite bool
}

func (s *Surface) ID() uuid.UUID     { return s.id }
func (s *Surface) Width() uint32     { return s.width }
func (s *Surface) Height() uint32    { return s.height }
func (s *Surface) RandomWrite() bool { return s.randomWrite }

func (s *Surface) Release() {
	if s.view != nil {
		s.view.Release()
		s.view = nil
	}
	if s.texture != nil {
		s.texture.Release()
		s.texture = nil
	}
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }

var errNoWindow = errors.New("gpu: device was created without a window")
