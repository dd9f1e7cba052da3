// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// VertexBufferBinding binds a buffer to a vertex input slot.
type VertexBufferBinding struct {
	Buffer *Buffer
	Offset uint64
}

// IndexBufferBinding binds the index buffer.
type IndexBufferBinding struct {
	Buffer *Buffer
	Format gputypes.IndexFormat
	Offset uint64
}

// Viewport is the rasterization viewport in pixels.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// ScissorRect clips rasterization to a pixel rectangle.
type ScissorRect struct {
	X, Y, Width, Height uint32
}

// GraphicsState is everything a draw needs. Viewport and Scissor default
// to the framebuffer extent.
type GraphicsState struct {
	Pipeline       *GraphicsPipeline
	Framebuffer    Framebuffer
	Bindings       []*BindingSet
	VertexBuffers  []VertexBufferBinding
	IndexBuffer    *IndexBufferBinding
	IndirectBuffer *Buffer
	Viewport       *Viewport
	Scissor        *ScissorRect
}

// ComputeState is everything a dispatch needs.
type ComputeState struct {
	Pipeline       *ComputePipeline
	Bindings       []*BindingSet
	IndirectBuffer *Buffer
}

// DrawArguments are the arguments of a non-indexed draw. InstanceCount
// defaults to 1.
type DrawArguments struct {
	VertexCount   uint32
	InstanceCount uint32
	StartVertex   uint32
	StartInstance uint32
}

// DrawIndexedArguments are the arguments of an indexed draw.
type DrawIndexedArguments struct {
	IndexCount    uint32
	InstanceCount uint32
	StartIndex    uint32
	BaseVertex    int32
	StartInstance uint32
}

// Sizes of the indirect argument records.
const (
	drawIndirectStride        = 16
	drawIndexedIndirectStride = 20
)

// TextureSlice selects a rectangle of one subresource. A zero Width or
// Height extends to the edge of the mip level.
type TextureSlice struct {
	X, Y          uint32
	Width, Height uint32
	Mip           uint32
	ArraySlice    uint32
}

func (s TextureSlice) resolve(spec *ImageSpec) TextureSlice {
	w, h := mipExtent(spec.Width, s.Mip), mipExtent(spec.Height, s.Mip)
	if s.Width == 0 {
		s.Width = w - min(s.X, w)
	}
	if s.Height == 0 {
		s.Height = h - min(s.Y, h)
	}
	return s
}

func (s TextureSlice) subresources() Subresources {
	return SingleSubresource(s.Mip, s.ArraySlice)
}

func (s TextureSlice) copyTexture(img *Image) hal.ImageCopyTexture {
	return hal.ImageCopyTexture{
		Texture:  img.texture,
		MipLevel: s.Mip,
		Origin:   hal.Origin3D{X: s.X, Y: s.Y, Z: s.ArraySlice},
		Aspect:   img.spec.aspect(),
	}
}

func (s TextureSlice) extent() hal.Extent3D {
	return hal.Extent3D{Width: s.Width, Height: s.Height, DepthOrArrayLayers: 1}
}

// passState is the open pass of a list and the state bound to it.
type passState struct {
	render      hal.RenderPassEncoder
	compute     hal.ComputePassEncoder
	framebuffer Framebuffer
	graphics    GraphicsState
	computeSt   ComputeState
}

func (p *passState) active() bool {
	return p.render != nil || p.compute != nil
}

// endPasses ends whatever pass is open.
func (cl *CommandList) endPasses() {
	if cl.pass.render != nil {
		cl.EndRenderpass()
	}
	if cl.pass.compute != nil {
		cl.pass.compute.End()
		cl.pass.compute = nil
		cl.pass.computeSt = ComputeState{}
	}
}

// commitOutsidePass ends any open pass and flushes pending barriers.
func (cl *CommandList) commitOutsidePass() {
	cl.endPasses()
	cl.tracker().CommitBarriers(cl)
}

func (cl *CommandList) requireBindings(sets []*BindingSet) {
	t := cl.tracker()
	for _, set := range sets {
		assertf(set.group != nil, "binding set %q bound before Update", set.label)
		for _, r := range set.required {
			if r.Buffer != nil {
				t.RequireBufferState(cl, r.Buffer, r.State)
			} else {
				t.RequireImageState(cl, r.Image, r.Subresources, r.State)
			}
		}
	}
}

func (cl *CommandList) resolveBindings(sets []*BindingSet) {
	t := cl.tracker()
	for _, set := range sets {
		for _, r := range set.required {
			if r.Buffer != nil {
				t.ResolvePermanentBufferState(cl, r.Buffer)
			} else {
				t.ResolvePermanentImageState(cl, r.Image, r.Subresources)
			}
		}
	}
}

// CopyBuffer copies size bytes from src at srcOffset to dst at dstOffset.
func (cl *CommandList) CopyBuffer(dst *Buffer, dstOffset uint64, src *Buffer, srcOffset, size uint64) {
	cl.assertOpen("CopyBuffer")
	t := cl.tracker()
	t.RequireBufferState(cl, src, StateCopySrc)
	t.RequireBufferState(cl, dst, StateCopyDst)
	cl.commitOutsidePass()

	cl.encoder.CopyBufferToBuffer(src.buffer, dst.buffer, []hal.BufferCopy{{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      size,
	}})

	t.ResolvePermanentBufferState(cl, src)
	t.ResolvePermanentBufferState(cl, dst)
}

// ClearBuffer zeroes size bytes of buf starting at offset.
func (cl *CommandList) ClearBuffer(buf *Buffer, offset, size uint64) {
	cl.assertOpen("ClearBuffer")
	t := cl.tracker()
	t.RequireBufferState(cl, buf, StateCopyDst)
	cl.commitOutsidePass()

	cl.encoder.ClearBuffer(buf.buffer, offset, size)

	t.ResolvePermanentBufferState(cl, buf)
}

// CopyBufferToImage uploads tightly packed rows of rowPitch bytes from
// src at srcOffset into dstSlice of dst.
func (cl *CommandList) CopyBufferToImage(dst *Image, dstSlice TextureSlice, src *Buffer, srcOffset uint64, rowPitch uint32) {
	cl.assertOpen("CopyBufferToImage")
	s := dstSlice.resolve(&dst.spec)
	t := cl.tracker()
	t.RequireBufferState(cl, src, StateCopySrc)
	t.RequireImageState(cl, dst, s.subresources(), StateCopyDst)
	cl.commitOutsidePass()

	cl.encoder.CopyBufferToTexture(src.buffer, dst.texture, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: srcOffset, BytesPerRow: rowPitch, RowsPerImage: s.Height},
		TextureBase:  s.copyTexture(dst),
		Size:         s.extent(),
	}})

	t.ResolvePermanentBufferState(cl, src)
	t.ResolvePermanentImageState(cl, dst, s.subresources())
}

// CopyImageToBuffer reads srcSlice of src back into dst at dstOffset with
// rows of rowPitch bytes.
func (cl *CommandList) CopyImageToBuffer(dst *Buffer, dstOffset uint64, rowPitch uint32, src *Image, srcSlice TextureSlice) {
	cl.assertOpen("CopyImageToBuffer")
	s := srcSlice.resolve(&src.spec)
	t := cl.tracker()
	t.RequireImageState(cl, src, s.subresources(), StateCopySrc)
	t.RequireBufferState(cl, dst, StateCopyDst)
	cl.commitOutsidePass()

	cl.encoder.CopyTextureToBuffer(src.texture, dst.buffer, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: dstOffset, BytesPerRow: rowPitch, RowsPerImage: s.Height},
		TextureBase:  s.copyTexture(src),
		Size:         s.extent(),
	}})

	t.ResolvePermanentImageState(cl, src, s.subresources())
	t.ResolvePermanentBufferState(cl, dst)
}

// CopyImage copies srcSlice of src into dst at dstSlice. The copied
// extent is that of srcSlice.
func (cl *CommandList) CopyImage(dst *Image, dstSlice TextureSlice, src *Image, srcSlice TextureSlice) {
	cl.assertOpen("CopyImage")
	ss := srcSlice.resolve(&src.spec)
	ds := dstSlice.resolve(&dst.spec)
	t := cl.tracker()
	t.RequireImageState(cl, src, ss.subresources(), StateCopySrc)
	t.RequireImageState(cl, dst, ds.subresources(), StateCopyDst)
	cl.commitOutsidePass()

	cl.encoder.CopyTextureToTexture(src.texture, dst.texture, []hal.TextureCopy{{
		SrcBase: ss.copyTexture(src),
		DstBase: ds.copyTexture(dst),
		Size:    ss.extent(),
	}})

	t.ResolvePermanentImageState(cl, src, ss.subresources())
	t.ResolvePermanentImageState(cl, dst, ds.subresources())
}

// SetGraphicsState binds s for the following draws. Every resource s
// touches is brought into its required state before the render pass
// begins. Binding new resources on the same framebuffer that need a
// transition restarts the pass with its contents preserved.
func (cl *CommandList) SetGraphicsState(s GraphicsState) {
	cl.assertOpen("SetGraphicsState")
	assertf(s.Pipeline != nil && s.Framebuffer.Valid(), "SetGraphicsState on %q needs a pipeline and a framebuffer", cl.label)
	assertf(s.Pipeline.desc.Renderpass == s.Framebuffer.pass,
		"pipeline %q is not compatible with renderpass %q", s.Pipeline.desc.Label, s.Framebuffer.pass.desc.Label)

	if cl.pass.compute != nil {
		cl.endPasses()
	}
	sameFB := cl.pass.render != nil && cl.pass.framebuffer == s.Framebuffer
	if cl.pass.render != nil && !sameFB {
		cl.EndRenderpass()
	}

	t := cl.tracker()
	if !sameFB {
		s.Framebuffer.requireAttachmentStates(cl, true)
	}
	cl.requireBindings(s.Bindings)
	for _, vb := range s.VertexBuffers {
		t.RequireBufferState(cl, vb.Buffer, StateVertexBuffer)
	}
	if ib := s.IndexBuffer; ib != nil {
		t.RequireBufferState(cl, ib.Buffer, StateIndexBuffer)
	}
	if s.IndirectBuffer != nil {
		t.RequireBufferState(cl, s.IndirectBuffer, StateIndirectArgument)
	}

	resume := false
	if sameFB && !cl.barriers.empty() {
		cl.pass.render.End()
		cl.pass.render = nil
		resume = true
	}
	if cl.pass.render == nil {
		t.CommitBarriers(cl)
		cl.pass.render = cl.encoder.BeginRenderPass(s.Framebuffer.nativeDesc(resume))
		cl.pass.framebuffer = s.Framebuffer
	}

	rp := cl.pass.render
	rp.SetPipeline(s.Pipeline.pipeline)
	for i, set := range s.Bindings {
		rp.SetBindGroup(uint32(i), set.group, nil)
	}
	for i, vb := range s.VertexBuffers {
		rp.SetVertexBuffer(uint32(i), vb.Buffer.buffer, vb.Offset)
	}
	if ib := s.IndexBuffer; ib != nil {
		rp.SetIndexBuffer(ib.Buffer.buffer, ib.Format, ib.Offset)
	}

	w, h := s.Framebuffer.Size()
	vp := Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1}
	if s.Viewport != nil {
		vp = *s.Viewport
	}
	rp.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	sc := ScissorRect{Width: w, Height: h}
	if s.Scissor != nil {
		sc = *s.Scissor
	}
	rp.SetScissorRect(sc.X, sc.Y, sc.Width, sc.Height)

	cl.pass.graphics = s
}

// resolveGraphics schedules permanent-state restores for the resources
// bound by s, except the framebuffer attachments.
func (cl *CommandList) resolveGraphics(s *GraphicsState) {
	t := cl.tracker()
	cl.resolveBindings(s.Bindings)
	for _, vb := range s.VertexBuffers {
		t.ResolvePermanentBufferState(cl, vb.Buffer)
	}
	if ib := s.IndexBuffer; ib != nil {
		t.ResolvePermanentBufferState(cl, ib.Buffer)
	}
	if s.IndirectBuffer != nil {
		t.ResolvePermanentBufferState(cl, s.IndirectBuffer)
	}
}

// EndRenderpass ends the open render pass and moves its attachments to
// their declared end states. It does nothing when no pass is open.
func (cl *CommandList) EndRenderpass() {
	cl.assertOpen("EndRenderpass")
	if cl.pass.render == nil {
		return
	}
	cl.pass.render.End()
	cl.pass.render = nil
	cl.pass.framebuffer.finishAttachmentStates(cl)
	cl.resolveGraphics(&cl.pass.graphics)
	cl.pass.framebuffer = Framebuffer{}
	cl.pass.graphics = GraphicsState{}
}

func (cl *CommandList) renderPass(op string) hal.RenderPassEncoder {
	cl.assertOpen(op)
	assertf(cl.pass.render != nil, "%s on command list %q without SetGraphicsState", op, cl.label)
	return cl.pass.render
}

// Draw records a non-indexed draw.
func (cl *CommandList) Draw(args DrawArguments) {
	cl.renderPass("Draw").Draw(args.VertexCount, max(args.InstanceCount, 1), args.StartVertex, args.StartInstance)
}

// DrawIndexed records an indexed draw.
func (cl *CommandList) DrawIndexed(args DrawIndexedArguments) {
	cl.renderPass("DrawIndexed").DrawIndexed(args.IndexCount, max(args.InstanceCount, 1),
		args.StartIndex, args.BaseVertex, args.StartInstance)
}

// DrawIndirect records drawCount draws whose arguments are read from the
// bound IndirectBuffer starting at offset.
func (cl *CommandList) DrawIndirect(offset uint64, drawCount uint32) {
	rp := cl.renderPass("DrawIndirect")
	buf := cl.pass.graphics.IndirectBuffer
	assertf(buf != nil, "DrawIndirect on command list %q without an indirect buffer", cl.label)
	for i := range uint64(drawCount) {
		rp.DrawIndirect(buf.buffer, offset+i*drawIndirectStride)
	}
}

// DrawIndexedIndirect is the indexed form of DrawIndirect.
func (cl *CommandList) DrawIndexedIndirect(offset uint64, drawCount uint32) {
	rp := cl.renderPass("DrawIndexedIndirect")
	buf := cl.pass.graphics.IndirectBuffer
	assertf(buf != nil, "DrawIndexedIndirect on command list %q without an indirect buffer", cl.label)
	for i := range uint64(drawCount) {
		rp.DrawIndexedIndirect(buf.buffer, offset+i*drawIndexedIndirectStride)
	}
}

// SetComputeState binds s for the following dispatches, bringing every
// bound resource into its required state first.
func (cl *CommandList) SetComputeState(s ComputeState) {
	cl.assertOpen("SetComputeState")
	assertf(s.Pipeline != nil, "SetComputeState on %q needs a pipeline", cl.label)
	if cl.pass.render != nil {
		cl.EndRenderpass()
	}

	cl.requireBindings(s.Bindings)
	if s.IndirectBuffer != nil {
		cl.tracker().RequireBufferState(cl, s.IndirectBuffer, StateIndirectArgument)
	}
	if !cl.barriers.empty() {
		cl.commitOutsidePass()
	}
	if cl.pass.compute == nil {
		cl.pass.compute = cl.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: cl.label})
	}

	cp := cl.pass.compute
	cp.SetPipeline(s.Pipeline.pipeline)
	for i, set := range s.Bindings {
		cp.SetBindGroup(uint32(i), set.group, nil)
	}
	cl.pass.computeSt = s
}

func (cl *CommandList) computePass(op string) hal.ComputePassEncoder {
	cl.assertOpen(op)
	assertf(cl.pass.compute != nil, "%s on command list %q without SetComputeState", op, cl.label)
	return cl.pass.compute
}

func (cl *CommandList) resolveCompute() {
	s := &cl.pass.computeSt
	cl.resolveBindings(s.Bindings)
	if s.IndirectBuffer != nil {
		cl.tracker().ResolvePermanentBufferState(cl, s.IndirectBuffer)
	}
}

// Dispatch records a compute dispatch of x*y*z workgroups.
func (cl *CommandList) Dispatch(x, y, z uint32) {
	cl.computePass("Dispatch").Dispatch(x, max(y, 1), max(z, 1))
	cl.resolveCompute()
}

// DispatchIndirect records a dispatch whose workgroup counts are read from
// the bound IndirectBuffer at offset.
func (cl *CommandList) DispatchIndirect(offset uint64) {
	cp := cl.computePass("DispatchIndirect")
	buf := cl.pass.computeSt.IndirectBuffer
	assertf(buf != nil, "DispatchIndirect on command list %q without an indirect buffer", cl.label)
	cp.DispatchIndirect(buf.buffer, offset)
	cl.resolveCompute()
}
