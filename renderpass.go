// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// AttachmentDesc declares one attachment of a Renderpass.
type AttachmentDesc struct {
	Format gputypes.TextureFormat

	// StartState is the state the attachment is expected to be in when the
	// pass begins. StateUnknown disables the check.
	StartState ResourceState

	// EndState is the state the attachment is moved to when the pass ends.
	// StateUnknown leaves it in its attachment state.
	EndState ResourceState

	LoadOp  gputypes.LoadOp
	StoreOp gputypes.StoreOp

	ClearColor   gputypes.Color
	ClearDepth   float32
	ClearStencil uint32

	// ReadOnly binds a depth attachment in StateDepthRead.
	ReadOnly bool
}

func (a *AttachmentDesc) loadOp() gputypes.LoadOp {
	if a.LoadOp == 0 {
		return gputypes.LoadOpLoad
	}
	return a.LoadOp
}

func (a *AttachmentDesc) storeOp() gputypes.StoreOp {
	if a.StoreOp == 0 {
		return gputypes.StoreOpStore
	}
	return a.StoreOp
}

// RenderpassDesc describes a Renderpass.
type RenderpassDesc struct {
	Label            string
	ColorAttachments []AttachmentDesc
	DepthAttachment  *AttachmentDesc
	SampleCount      uint32

	// Swapchain binds the pass to a swapchain; it may then hold at most
	// one framebuffer per backbuffer.
	Swapchain *Swapchain
}

// FramebufferAttachment names the subresource rendered to.
type FramebufferAttachment struct {
	Image      *Image
	Mip        uint32
	ArraySlice uint32
}

func (a FramebufferAttachment) subresources() Subresources {
	return SingleSubresource(a.Mip, a.ArraySlice)
}

// FramebufferDesc lists the images of a framebuffer, matching the
// attachments of its renderpass.
type FramebufferDesc struct {
	Color []FramebufferAttachment
	Depth *FramebufferAttachment
}

// framebufferData is one arena entry. A nil view means the attachment
// covers the whole image and its default view is used at begin time.
type framebufferData struct {
	desc       FramebufferDesc
	colorViews []hal.TextureView
	depthView  hal.TextureView
}

// Renderpass declares attachment formats and state contracts and owns
// the framebuffers created for it.
type Renderpass struct {
	device       *Device
	desc         RenderpassDesc
	framebuffers []framebufferData
	destroyed    bool
}

// Framebuffer is a handle into the arena of its renderpass.
type Framebuffer struct {
	pass  *Renderpass
	index int
}

// Renderpass returns the owning renderpass.
func (fb Framebuffer) Renderpass() *Renderpass { return fb.pass }

// Index returns the arena index.
func (fb Framebuffer) Index() int { return fb.index }

// Valid reports whether fb refers to a framebuffer.
func (fb Framebuffer) Valid() bool { return fb.pass != nil }

func (fb Framebuffer) data() *framebufferData {
	assertf(fb.pass != nil && fb.index < len(fb.pass.framebuffers),
		"framebuffer %d outlived its renderpass arena", fb.index)
	return &fb.pass.framebuffers[fb.index]
}

// Desc returns the attachments of fb.
func (fb Framebuffer) Desc() FramebufferDesc { return fb.data().desc }

// Size returns the extent of the first attachment at its mip level.
func (fb Framebuffer) Size() (width, height uint32) {
	d := fb.data().desc
	var a *FramebufferAttachment
	switch {
	case len(d.Color) > 0:
		a = &d.Color[0]
	case d.Depth != nil:
		a = d.Depth
	default:
		return 0, 0
	}
	return mipExtent(a.Image.spec.Width, a.Mip), mipExtent(a.Image.spec.Height, a.Mip)
}

func mipExtent(v, mip uint32) uint32 {
	return max(v>>mip, 1)
}

// Desc returns the creation descriptor.
func (rp *Renderpass) Desc() RenderpassDesc { return rp.desc }

// FramebufferCount returns the number of framebuffers in the arena.
func (rp *Renderpass) FramebufferCount() int { return len(rp.framebuffers) }

// Framebuffer returns the i-th framebuffer of the arena.
func (rp *Renderpass) Framebuffer(i int) Framebuffer {
	assertf(i >= 0 && i < len(rp.framebuffers), "renderpass %q: framebuffer %d out of range", rp.desc.Label, i)
	return Framebuffer{pass: rp, index: i}
}

// CreateFramebuffer adds a framebuffer to the arena. A swapchain-bound
// pass holds at most BackbufferCount framebuffers.
func (rp *Renderpass) CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error) {
	assertf(!rp.destroyed, "renderpass %q used after destroy", rp.desc.Label)
	if sc := rp.desc.Swapchain; sc != nil {
		assertf(len(rp.framebuffers) < sc.BackbufferCount(),
			"renderpass %q: more framebuffers than the %d swapchain backbuffers", rp.desc.Label, sc.BackbufferCount())
	}
	if len(desc.Color) != len(rp.desc.ColorAttachments) || (desc.Depth != nil) != (rp.desc.DepthAttachment != nil) {
		return Framebuffer{}, fmt.Errorf("%w: framebuffer does not match renderpass %q attachments",
			ErrInvalidDescriptor, rp.desc.Label)
	}

	fb := framebufferData{desc: desc, colorViews: make([]hal.TextureView, len(desc.Color))}
	for i, a := range desc.Color {
		v, err := rp.attachmentView(a)
		if err != nil {
			rp.destroyFramebufferViews(&fb)
			return Framebuffer{}, err
		}
		fb.colorViews[i] = v
	}
	if desc.Depth != nil {
		v, err := rp.attachmentView(*desc.Depth)
		if err != nil {
			rp.destroyFramebufferViews(&fb)
			return Framebuffer{}, err
		}
		fb.depthView = v
	}
	rp.framebuffers = append(rp.framebuffers, fb)
	return Framebuffer{pass: rp, index: len(rp.framebuffers) - 1}, nil
}

func (rp *Renderpass) attachmentView(a FramebufferAttachment) (hal.TextureView, error) {
	spec := &a.Image.spec
	if spec.subresourceCount() == 1 {
		return nil, nil
	}
	return rp.device.createSubresourceView(a.Image, a.subresources())
}

func (rp *Renderpass) destroyFramebufferViews(fb *framebufferData) {
	for _, v := range fb.colorViews {
		if v != nil {
			rp.device.native.DestroyTextureView(v)
		}
	}
	if fb.depthView != nil {
		rp.device.native.DestroyTextureView(fb.depthView)
	}
}

// ResetFramebuffers empties the arena. Views are destroyed through the
// deferred-destruction queue.
func (rp *Renderpass) ResetFramebuffers() {
	fbs := rp.framebuffers
	rp.framebuffers = nil
	rp.device.Defer(func() {
		for i := range fbs {
			rp.destroyFramebufferViews(&fbs[i])
		}
	})
}

// attachmentState is the state an attachment is held in during the pass.
func (a *AttachmentDesc) attachmentState(depth bool) ResourceState {
	switch {
	case !depth:
		return StateRenderTarget
	case a.ReadOnly:
		return StateDepthRead
	}
	return StateDepthWrite
}

// nativeDesc builds the render pass descriptor for fb. Load ops are
// forced to Load when the pass resumes after a barrier flush.
func (fb Framebuffer) nativeDesc(resume bool) *hal.RenderPassDescriptor {
	rp := fb.pass
	d := fb.data()
	desc := &hal.RenderPassDescriptor{Label: rp.desc.Label}
	for i := range rp.desc.ColorAttachments {
		ad := &rp.desc.ColorAttachments[i]
		view := d.colorViews[i]
		if view == nil {
			view = d.desc.Color[i].Image.view
		}
		load := ad.loadOp()
		if resume {
			load = gputypes.LoadOpLoad
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     load,
			StoreOp:    ad.storeOp(),
			ClearValue: ad.ClearColor,
		})
	}
	if ad := rp.desc.DepthAttachment; ad != nil {
		view := d.depthView
		if view == nil {
			view = d.desc.Depth.Image.view
		}
		load := ad.loadOp()
		if resume {
			load = gputypes.LoadOpLoad
		}
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     load,
			DepthStoreOp:    ad.storeOp(),
			DepthClearValue: ad.ClearDepth,
			DepthReadOnly:   ad.ReadOnly,
		}
		if ad.Format.HasStencil() {
			ds.StencilLoadOp = load
			ds.StencilStoreOp = ad.storeOp()
			ds.StencilClearValue = ad.ClearStencil
		}
		desc.DepthStencilAttachment = ds
	}
	return desc
}

// requireAttachmentStates schedules every attachment of fb into its
// attachment state, reporting declared start states that do not match the
// tracker through the message callback.
func (fb Framebuffer) requireAttachmentStates(cl *CommandList, checkStart bool) {
	rp := fb.pass
	d := fb.data()
	t := cl.tracker()
	check := func(ad *AttachmentDesc, a FramebufferAttachment) {
		if !checkStart || ad.StartState == StateUnknown {
			return
		}
		if got := t.ImageState(a.Image, a.Mip, a.ArraySlice); got != ad.StartState {
			rp.device.message(SeverityWarn, fmt.Sprintf(
				"renderpass %q: attachment %q begins in %s, declared start state %s",
				rp.desc.Label, a.Image.Label(), got, ad.StartState))
		}
	}
	for i := range rp.desc.ColorAttachments {
		ad := &rp.desc.ColorAttachments[i]
		a := d.desc.Color[i]
		check(ad, a)
		t.RequireImageState(cl, a.Image, a.subresources(), ad.attachmentState(false))
	}
	if ad := rp.desc.DepthAttachment; ad != nil {
		a := *d.desc.Depth
		check(ad, a)
		t.RequireImageState(cl, a.Image, a.subresources(), ad.attachmentState(true))
	}
}

// finishAttachmentStates moves attachments to their end states.
func (fb Framebuffer) finishAttachmentStates(cl *CommandList) {
	rp := fb.pass
	d := fb.data()
	t := cl.tracker()
	finish := func(ad *AttachmentDesc, a FramebufferAttachment) {
		sub := a.subresources()
		if ad.EndState != StateUnknown {
			t.RequireImageState(cl, a.Image, sub, ad.EndState)
		}
		t.ResolvePermanentImageState(cl, a.Image, sub)
	}
	for i := range rp.desc.ColorAttachments {
		finish(&rp.desc.ColorAttachments[i], d.desc.Color[i])
	}
	if ad := rp.desc.DepthAttachment; ad != nil {
		finish(ad, *d.desc.Depth)
	}
}
