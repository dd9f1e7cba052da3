// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ImageSpec describes an image at creation time.
type ImageSpec struct {
	Label  string
	Format gputypes.TextureFormat
	Width  uint32
	Height uint32

	// MipLevels and ArraySlices default to 1 when zero.
	MipLevels   uint32
	ArraySlices uint32
	SampleCount uint32

	// Usage is the native usage set. When zero it is derived from the
	// format and InitialState.
	Usage gputypes.TextureUsage

	// InitialState is the state the image is tracked in after creation.
	InitialState ResourceState

	// KeepResourceState makes ResolvePermanentState return the image to
	// InitialState after every operation that transiently changed it.
	KeepResourceState bool
}

func (s *ImageSpec) mipLevels() uint32 {
	return max(s.MipLevels, 1)
}

func (s *ImageSpec) arraySlices() uint32 {
	return max(s.ArraySlices, 1)
}

func (s *ImageSpec) subresourceCount() int {
	return int(s.mipLevels() * s.arraySlices())
}

func (s *ImageSpec) aspect() gputypes.TextureAspect {
	return gputypes.TextureAspectAll
}

func (s *ImageSpec) nativeUsage() gputypes.TextureUsage {
	if s.Usage != 0 {
		return s.Usage
	}
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding
	if s.Format.IsDepthStencil() || s.InitialState&(StateRenderTarget|StateDepthWrite|StateDepthRead) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if s.InitialState.Has(StateUnorderedAccess) {
		u |= gputypes.TextureUsageStorageBinding
	}
	return u
}

func (s *ImageSpec) viewDimension() gputypes.TextureViewDimension {
	if s.arraySlices() > 1 {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

// Image is a tracked 2D (array) texture. Swapchain backbuffers are Images
// whose native texture is replaced on every acquire.
type Image struct {
	spec    ImageSpec
	texture hal.Texture
	view    hal.TextureView

	// backbuffer images do not own their native texture.
	backbuffer bool
}

// Spec returns the creation descriptor.
func (img *Image) Spec() ImageSpec { return img.spec }

// Label returns the debug name.
func (img *Image) Label() string { return img.spec.Label }

// Texture returns the native texture.
func (img *Image) Texture() hal.Texture { return img.texture }

// View returns a native view over every subresource.
func (img *Image) View() hal.TextureView { return img.view }

// BufferSpec describes a buffer at creation time.
type BufferSpec struct {
	Label string
	Size  uint64

	// Usage is the native usage set. When zero it is derived from
	// InitialState plus copy source and destination.
	Usage gputypes.BufferUsage

	// HostVisible adds MapRead and MapWrite so the buffer can be mapped.
	HostVisible bool

	InitialState      ResourceState
	KeepResourceState bool
}

func (s *BufferSpec) nativeUsage() gputypes.BufferUsage {
	u := s.Usage
	if u == 0 {
		u = gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst | s.InitialState.bufferUsage()
	}
	if s.HostVisible {
		u |= gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite
	}
	return u
}

// Buffer is a tracked linear GPU allocation.
type Buffer struct {
	spec   BufferSpec
	buffer hal.Buffer
}

// Spec returns the creation descriptor.
func (b *Buffer) Spec() BufferSpec { return b.spec }

// Label returns the debug name.
func (b *Buffer) Label() string { return b.spec.Label }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.spec.Size }

// Native returns the native buffer.
func (b *Buffer) Native() hal.Buffer { return b.buffer }

// SamplerSpec describes a sampler.
type SamplerSpec = gputypes.SamplerDescriptor

// Sampler is an immutable sampling state object. Samplers are not tracked.
type Sampler struct {
	spec    SamplerSpec
	sampler hal.Sampler
}

// Native returns the native sampler.
func (s *Sampler) Native() hal.Sampler { return s.sampler }

func samplerDescriptor(s *SamplerSpec) *hal.SamplerDescriptor {
	mip := gputypes.FilterModeNearest
	if s.MipmapFilter == gputypes.MipmapFilterModeLinear {
		mip = gputypes.FilterModeLinear
	}
	return &hal.SamplerDescriptor{
		Label:        s.Label,
		AddressModeU: s.AddressModeU,
		AddressModeV: s.AddressModeV,
		AddressModeW: s.AddressModeW,
		MagFilter:    s.MagFilter,
		MinFilter:    s.MinFilter,
		MipmapFilter: mip,
		LodMinClamp:  s.LodMinClamp,
		LodMaxClamp:  s.LodMaxClamp,
		Compare:      s.Compare,
		Anisotropy:   max(s.MaxAnisotropy, 1),
	}
}
