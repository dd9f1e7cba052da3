// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ShaderDesc describes a shader module created from compiled bytecode.
type ShaderDesc struct {
	Label      string
	Stage      gputypes.ShaderStage
	EntryPoint string

	// SPIRV is the compiled module. See package shader for a WGSL
	// front end.
	SPIRV []uint32
}

// Shader is a compiled shader module.
type Shader struct {
	desc   ShaderDesc
	module hal.ShaderModule
}

// Desc returns the creation descriptor.
func (s *Shader) Desc() ShaderDesc { return s.desc }

func (s *Shader) entryPoint() string {
	if s.desc.EntryPoint == "" {
		return "main"
	}
	return s.desc.EntryPoint
}

// GraphicsPipelineDesc describes a GraphicsPipeline. Attachment formats
// and sample count come from Renderpass.
type GraphicsPipelineDesc struct {
	Label          string
	VertexShader   *Shader
	FragmentShader *Shader
	VertexLayouts  []gputypes.VertexBufferLayout
	BindingLayouts []*BindingLayout
	Renderpass     *Renderpass

	Primitive gputypes.PrimitiveState
	Blend     *gputypes.BlendState

	DepthTest    bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
}

// GraphicsPipeline is a compiled rasterization state object.
type GraphicsPipeline struct {
	desc     GraphicsPipelineDesc
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
}

// Desc returns the creation descriptor.
func (p *GraphicsPipeline) Desc() GraphicsPipelineDesc { return p.desc }

// ComputePipelineDesc describes a ComputePipeline.
type ComputePipelineDesc struct {
	Label          string
	Shader         *Shader
	BindingLayouts []*BindingLayout
}

// ComputePipeline is a compiled compute state object.
type ComputePipeline struct {
	desc     ComputePipelineDesc
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// Desc returns the creation descriptor.
func (p *ComputePipeline) Desc() ComputePipelineDesc { return p.desc }

func (d *Device) createPipelineLayout(label string, layouts []*BindingLayout) (hal.PipelineLayout, error) {
	native := make([]hal.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		native[i] = l.layout
	}
	pl, err := d.native.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_layout",
		BindGroupLayouts: native,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	return pl, nil
}

// CreateShader wraps compiled bytecode in a shader module.
func (d *Device) CreateShader(desc ShaderDesc) (*Shader, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if len(desc.SPIRV) == 0 {
		return nil, fmt.Errorf("%w: shader %q has no bytecode", ErrInvalidDescriptor, desc.Label)
	}
	module, err := d.native.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: desc.SPIRV},
	})
	if err != nil {
		return nil, fmt.Errorf("rhi: create shader %q: %w", desc.Label, err)
	}
	return &Shader{desc: desc, module: module}, nil
}

// DestroyShader releases s through the deferred-destruction queue.
func (d *Device) DestroyShader(s *Shader) {
	d.Defer(func() { d.native.DestroyShaderModule(s.module) })
}

// CreateGraphicsPipeline compiles a pipeline compatible with
// desc.Renderpass.
func (d *Device) CreateGraphicsPipeline(desc GraphicsPipelineDesc) (*GraphicsPipeline, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if desc.VertexShader == nil || desc.Renderpass == nil {
		return nil, fmt.Errorf("%w: graphics pipeline %q needs a vertex shader and a renderpass",
			ErrInvalidDescriptor, desc.Label)
	}
	layout, err := d.createPipelineLayout(desc.Label, desc.BindingLayouts)
	if err != nil {
		return nil, fmt.Errorf("rhi: graphics pipeline %q: %w", desc.Label, err)
	}

	rp := &desc.Renderpass.desc
	native := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     desc.VertexShader.module,
			EntryPoint: desc.VertexShader.entryPoint(),
			Buffers:    desc.VertexLayouts,
		},
		Primitive: desc.Primitive,
		Multisample: gputypes.MultisampleState{
			Count: max(rp.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
	}
	if fs := desc.FragmentShader; fs != nil {
		targets := make([]gputypes.ColorTargetState, len(rp.ColorAttachments))
		for i, a := range rp.ColorAttachments {
			targets[i] = gputypes.ColorTargetState{
				Format:    a.Format,
				Blend:     desc.Blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		native.Fragment = &hal.FragmentState{
			Module:     fs.module,
			EntryPoint: fs.entryPoint(),
			Targets:    targets,
		}
	}
	if da := rp.DepthAttachment; da != nil {
		compare := desc.DepthCompare
		if !desc.DepthTest {
			compare = gputypes.CompareFunctionAlways
		} else if compare == gputypes.CompareFunctionUndefined {
			compare = gputypes.CompareFunctionLess
		}
		native.DepthStencil = &hal.DepthStencilState{
			Format:            da.Format,
			DepthWriteEnabled: desc.DepthWrite && !da.ReadOnly,
			DepthCompare:      compare,
			StencilFront:      hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilBack:       hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}

	pipeline, err := d.native.CreateRenderPipeline(native)
	if err != nil {
		d.native.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("rhi: create graphics pipeline %q: %w", desc.Label, err)
	}
	return &GraphicsPipeline{desc: desc, layout: layout, pipeline: pipeline}, nil
}

// DestroyGraphicsPipeline releases p through the deferred-destruction
// queue.
func (d *Device) DestroyGraphicsPipeline(p *GraphicsPipeline) {
	d.Defer(func() {
		d.native.DestroyRenderPipeline(p.pipeline)
		d.native.DestroyPipelineLayout(p.layout)
	})
}

// CreateComputePipeline compiles a compute pipeline.
func (d *Device) CreateComputePipeline(desc ComputePipelineDesc) (*ComputePipeline, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if desc.Shader == nil {
		return nil, fmt.Errorf("%w: compute pipeline %q needs a shader", ErrInvalidDescriptor, desc.Label)
	}
	layout, err := d.createPipelineLayout(desc.Label, desc.BindingLayouts)
	if err != nil {
		return nil, fmt.Errorf("rhi: compute pipeline %q: %w", desc.Label, err)
	}
	pipeline, err := d.native.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     desc.Shader.module,
			EntryPoint: desc.Shader.entryPoint(),
		},
	})
	if err != nil {
		d.native.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("rhi: create compute pipeline %q: %w", desc.Label, err)
	}
	return &ComputePipeline{desc: desc, layout: layout, pipeline: pipeline}, nil
}

// DestroyComputePipeline releases p through the deferred-destruction
// queue.
func (d *Device) DestroyComputePipeline(p *ComputePipeline) {
	d.Defer(func() {
		d.native.DestroyComputePipeline(p.pipeline)
		d.native.DestroyPipelineLayout(p.layout)
	})
}
