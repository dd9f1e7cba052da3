// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BindingType is the kind of resource bound to a slot.
type BindingType uint8

// Binding types.
const (
	BindingConstantBuffer BindingType = iota
	BindingStructuredBuffer
	BindingRWStructuredBuffer
	BindingTexture
	BindingRWTexture
	BindingSampler
)

func (t BindingType) String() string {
	switch t {
	case BindingConstantBuffer:
		return "ConstantBuffer"
	case BindingStructuredBuffer:
		return "StructuredBuffer"
	case BindingRWStructuredBuffer:
		return "RWStructuredBuffer"
	case BindingTexture:
		return "Texture"
	case BindingRWTexture:
		return "RWTexture"
	case BindingSampler:
		return "Sampler"
	}
	return fmt.Sprintf("BindingType(%d)", uint8(t))
}

// requiredState is the state a bound resource must be in while shaders
// access it.
func (t BindingType) requiredState() ResourceState {
	switch t {
	case BindingConstantBuffer:
		return StateConstantBuffer
	case BindingStructuredBuffer, BindingTexture:
		return StateShaderResource
	case BindingRWStructuredBuffer, BindingRWTexture:
		return StateUnorderedAccess
	}
	return StateUnknown
}

func (t BindingType) isBuffer() bool {
	return t <= BindingRWStructuredBuffer
}

// BindingLayoutItem declares Count consecutive slots starting at Slot.
type BindingLayoutItem struct {
	Slot       uint32
	Type       BindingType
	Count      uint32 // 0 means 1
	Visibility gputypes.ShaderStages

	// StorageFormat is required for BindingRWTexture.
	StorageFormat gputypes.TextureFormat
}

func (it *BindingLayoutItem) count() uint32 { return max(it.Count, 1) }

// BindingLayoutDesc describes a BindingLayout.
type BindingLayoutDesc struct {
	Label string
	Items []BindingLayoutItem
}

// BindingLayout is the shape of a binding set: which slots hold which
// kind of resource.
type BindingLayout struct {
	desc   BindingLayoutDesc
	layout hal.BindGroupLayout

	resourceSlots uint32
	samplerSlots  uint32
}

// ResourceSlots returns the resource-view heap slots one set needs.
func (l *BindingLayout) ResourceSlots() uint32 { return l.resourceSlots }

// SamplerSlots returns the sampler heap slots one set needs.
func (l *BindingLayout) SamplerSlots() uint32 { return l.samplerSlots }

// Native returns the native bind group layout.
func (l *BindingLayout) Native() hal.BindGroupLayout { return l.layout }

func (l *BindingLayout) item(slot uint32) *BindingLayoutItem {
	for i := range l.desc.Items {
		it := &l.desc.Items[i]
		if slot >= it.Slot && slot < it.Slot+it.count() {
			return it
		}
	}
	return nil
}

func bindingLayoutEntries(items []BindingLayoutItem) []gputypes.BindGroupLayoutEntry {
	var entries []gputypes.BindGroupLayoutEntry
	for _, it := range items {
		for k := range it.count() {
			e := gputypes.BindGroupLayoutEntry{
				Binding:    it.Slot + k,
				Visibility: it.Visibility,
			}
			switch it.Type {
			case BindingConstantBuffer:
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
			case BindingStructuredBuffer:
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
			case BindingRWStructuredBuffer:
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
			case BindingTexture:
				e.Texture = &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				}
			case BindingRWTexture:
				e.StorageTexture = &gputypes.StorageTextureBindingLayout{
					Access:        gputypes.StorageTextureAccessReadWrite,
					Format:        it.StorageFormat,
					ViewDimension: gputypes.TextureViewDimension2D,
				}
			case BindingSampler:
				e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
			}
			entries = append(entries, e)
		}
	}
	return entries
}

// BindingSetPoolDesc describes a BindingSetPool.
type BindingSetPoolDesc struct {
	Label     string
	Layout    *BindingLayout
	SetAmount uint32
}

// BindingSetPool reserves descriptor heap slots for SetAmount binding sets
// of one layout at creation. Sets take consecutive blocks and are never
// freed individually; the whole pool is released at once.
type BindingSetPool struct {
	device *Device
	desc   BindingSetPoolDesc

	resources DescriptorBlock
	samplers  DescriptorBlock
	next      uint32
	sets      []*BindingSet
	released  bool
}

// SetAmount returns the pool capacity.
func (p *BindingSetPool) SetAmount() uint32 { return p.desc.SetAmount }

// Allocated returns the number of sets handed out.
func (p *BindingSetPool) Allocated() uint32 { return p.next }

// GetNextSetIndices reserves the heap blocks of the next set. Requesting
// more than SetAmount sets is a contract violation.
func (p *BindingSetPool) GetNextSetIndices() (resources, samplers DescriptorBlock) {
	assertf(!p.released, "binding set pool %q used after release", p.desc.Label)
	assertf(p.next < p.desc.SetAmount, "binding set pool %q: all %d sets allocated", p.desc.Label, p.desc.SetAmount)
	i := p.next
	p.next++
	return p.resources.Sub(i, p.desc.Layout.resourceSlots), p.samplers.Sub(i, p.desc.Layout.samplerSlots)
}

// CreateBindingSet takes the next slot block of the pool.
func (p *BindingSetPool) CreateBindingSet(label string) *BindingSet {
	res, smp := p.GetNextSetIndices()
	s := &BindingSet{pool: p, label: label, resources: res, samplers: smp}
	p.sets = append(p.sets, s)
	return s
}

// Release returns the pool's heap blocks and native bind groups through
// the device's deferred-destruction queue.
func (p *BindingSetPool) Release() {
	if p.released {
		return
	}
	p.released = true
	dev := p.device
	sets := p.sets
	p.sets = nil
	dev.Defer(func() {
		for _, s := range sets {
			s.destroyNative()
		}
		dev.resourceHeap.Release(p.resources)
		dev.samplerHeap.Release(p.samplers)
	})
}

// BindingItem binds one resource to a slot.
type BindingItem struct {
	Slot uint32

	Buffer *Buffer
	Offset uint64
	Size   uint64 // 0 binds the rest of the buffer

	Image        *Image
	Subresources Subresources // zero value binds mip 0, slice 0

	Sampler *Sampler
}

// BoundResource is a tracked resource a set requires in State. Exactly
// one of Image and Buffer is set.
type BoundResource struct {
	Image        *Image
	Subresources Subresources
	Buffer       *Buffer
	State        ResourceState
}

// BindingSet is one instance of a BindingLayout with concrete resources.
type BindingSet struct {
	pool      *BindingSetPool
	label     string
	resources DescriptorBlock
	samplers  DescriptorBlock

	group    hal.BindGroup
	views    []hal.TextureView
	required []BoundResource
}

// ResourceBlock returns the resource-view heap slots owned by the set.
func (s *BindingSet) ResourceBlock() DescriptorBlock { return s.resources }

// SamplerBlock returns the sampler heap slots owned by the set.
func (s *BindingSet) SamplerBlock() DescriptorBlock { return s.samplers }

// Native returns the native bind group, nil before the first Update.
func (s *BindingSet) Native() hal.BindGroup { return s.group }

// RequiredStates lists the state every bound tracked resource must be in.
func (s *BindingSet) RequiredStates() []BoundResource { return s.required }

// Update binds items and rebuilds the native bind group. The previous
// group is destroyed through the deferred-destruction queue.
func (s *BindingSet) Update(items []BindingItem) error {
	layout := s.pool.desc.Layout
	dev := s.pool.device

	entries := make([]gputypes.BindGroupEntry, 0, len(items))
	required := make([]BoundResource, 0, len(items))
	var views []hal.TextureView

	for _, it := range items {
		li := layout.item(it.Slot)
		if li == nil {
			s.destroyViews(dev, views)
			return fmt.Errorf("%w: binding set %q: slot %d not in layout %q",
				ErrInvalidDescriptor, s.label, it.Slot, layout.desc.Label)
		}
		var res gputypes.BindingResource
		switch {
		case li.Type.isBuffer():
			assertf(it.Buffer != nil, "binding set %q: slot %d needs a buffer", s.label, it.Slot)
			res = gputypes.BufferBinding{Buffer: it.Buffer.buffer.NativeHandle(), Offset: it.Offset, Size: it.Size}
			required = append(required, BoundResource{Buffer: it.Buffer, State: li.Type.requiredState()})
		case li.Type == BindingSampler:
			assertf(it.Sampler != nil, "binding set %q: slot %d needs a sampler", s.label, it.Slot)
			res = gputypes.SamplerBinding{Sampler: it.Sampler.sampler.NativeHandle()}
		default:
			assertf(it.Image != nil, "binding set %q: slot %d needs an image", s.label, it.Slot)
			sub := it.Subresources
			if sub == (Subresources{}) {
				sub = SingleSubresource(0, 0)
			}
			sub = sub.Resolve(&it.Image.spec)
			view, err := dev.createSubresourceView(it.Image, sub)
			if err != nil {
				s.destroyViews(dev, views)
				return fmt.Errorf("rhi: binding set %q slot %d: %w", s.label, it.Slot, err)
			}
			views = append(views, view)
			res = gputypes.TextureViewBinding{TextureView: view.NativeHandle()}
			required = append(required, BoundResource{Image: it.Image, Subresources: sub, State: li.Type.requiredState()})
		}
		entries = append(entries, gputypes.BindGroupEntry{Binding: it.Slot, Resource: res})
	}

	group, err := dev.native.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   s.label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		s.destroyViews(dev, views)
		return fmt.Errorf("rhi: create bind group %q: %w", s.label, err)
	}

	if s.group != nil {
		old, oldViews := s.group, s.views
		dev.Defer(func() {
			dev.native.DestroyBindGroup(old)
			s.destroyViews(dev, oldViews)
		})
	}
	s.group = group
	s.views = views
	s.required = required
	return nil
}

func (s *BindingSet) destroyViews(dev *Device, views []hal.TextureView) {
	for _, v := range views {
		dev.native.DestroyTextureView(v)
	}
}

func (s *BindingSet) destroyNative() {
	dev := s.pool.device
	if s.group != nil {
		dev.native.DestroyBindGroup(s.group)
		s.group = nil
	}
	s.destroyViews(dev, s.views)
	s.views = nil
}
