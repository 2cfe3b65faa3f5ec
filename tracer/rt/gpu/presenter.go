package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/gekko3d/tinyrt/tracer/rt/compute"
	"github.com/gekko3d/tinyrt/tracer/rt/shaders"
)

// Presenter blits a compute surface to the device's window with a fullscreen
// triangle.
type Presenter struct {
	device   *Device
	config   *wgpu.SurfaceConfiguration
	pipeline *wgpu.RenderPipeline
	sampler  *wgpu.Sampler

	bindGroup *wgpu.BindGroup
	bound     uuid.UUID
}

func (d *Device) NewPresenter(width, height int) (*Presenter, error) {
	if d.surface == nil {
		return nil, errNoWindow
	}
	caps := d.surface.GetCapabilities(d.adapter)
	config := &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	d.surface.Configure(d.adapter, d.device, config)

	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "fullscreen blit",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.FullscreenWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: blit shader: %w", err)
	}
	defer module.Release()

	pipeline, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "fullscreen blit",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: blit pipeline: %w", err)
	}

	sampler, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		pipeline.Release()
		return nil, fmt.Errorf("gpu: blit sampler: %w", err)
	}
	return &Presenter{device: d, config: config, pipeline: pipeline, sampler: sampler}, nil
}

// Resize reconfigures the window surface. Zero sizes (minimized windows) are ignored.
func (p *Presenter) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	p.config.Width = uint32(width)
	p.config.Height = uint32(height)
	p.device.surface.Configure(p.device.adapter, p.device.device, p.config)
}

// Present draws s stretched over the whole window.
func (p *Presenter) Present(s compute.Surface) error {
	surf, ok := s.(*Surface)
	if !ok || surf.view == nil {
		return fmt.Errorf("gpu: cannot present %T", s)
	}
	if err := p.bind(surf); err != nil {
		return err
	}

	next, err := p.device.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("gpu: acquire window texture: %w", err)
	}
	defer next.Release()
	view, err := next.CreateView(nil)
	if err != nil {
		return fmt.Errorf("gpu: window view: %w", err)
	}
	defer view.Release()

	encoder, err := p.device.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: present: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	err = pass.End()
	pass.Release()
	if err != nil {
		return fmt.Errorf("gpu: blit pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("gpu: present: %w", err)
	}
	p.device.queue.Submit(cmd)
	cmd.Release()
	p.device.surface.Present()
	return nil
}

// bind rebuilds the bind group only when the presented surface changes.
func (p *Presenter) bind(s *Surface) error {
	if p.bindGroup != nil && p.bound == s.id {
		return nil
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	layout := p.pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bg, err := p.device.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "fullscreen blit",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: s.view},
			{Binding: 1, Sampler: p.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: blit bind group: %w", err)
	}
	p.bindGroup = bg
	p.bound = s.id
	return nil
}

func (p *Presenter) Release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.sampler != nil {
		p.sampler.Release()
		p.sampler = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}
