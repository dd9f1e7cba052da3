// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Device is the lifetime root of every GPU object. It owns the state
// tracker, the descriptor heaps, the deferred-destruction queue and the
// swapchains created from it.
type Device struct {
	opts deviceOptions

	instance     hal.Instance
	adapter      hal.Adapter
	ownsInstance bool
	adapterInfo  gputypes.AdapterInfo

	native hal.Device
	queue  *submitQueue
	fence  *Fence

	tracker      *StateTracker
	deferred     deferredQueue
	resourceHeap *DescriptorHeap
	samplerHeap  *DescriptorHeap
	callback     MessageCallback

	swapchains []*Swapchain
	closed     bool
}

// NewDevice opens the compiled-in backend, or wraps the native device
// given with WithHAL.
func NewDevice(opts ...DeviceOption) (*Device, error) {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{opts: o, callback: o.callback}
	if o.driverMessages && o.callback != nil {
		driverMessages.register(d, o.callback, o.driverLevel)
	}

	open := o.open
	if open != nil {
		d.instance = o.instance
	} else {
		od, err := d.openBackend()
		if err != nil {
			driverMessages.unregister(d)
			return nil, err
		}
		open = &od
	}

	d.native = open.Device
	d.queue = newSubmitQueue(open.Queue)
	d.fence = newFence(d.queue, o.label+"_device_fence", o.waitTimeout)
	d.tracker = newStateTracker()
	d.resourceHeap = NewDescriptorHeap("resource", o.resourceHeapSize)
	d.samplerHeap = NewDescriptorHeap("sampler", o.samplerHeapSize)

	Logger().Info("rhi: device created",
		"label", o.label,
		"backend", CompiledBackend,
		"adapter", d.adapterInfo.Name)
	return d, nil
}

// openBackend creates an instance of the compiled-in backend and opens
// the first discrete or integrated adapter, falling back to the first one.
func (d *Device) openBackend() (hal.OpenDevice, error) {
	backend, ok := hal.GetBackend(CompiledBackend)
	if !ok {
		return hal.OpenDevice{}, fmt.Errorf("%w: %s", ErrBackendUnavailable, CompiledBackend)
	}
	var flags gputypes.InstanceFlags
	if d.opts.debug {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: flags})
	if err != nil {
		return hal.OpenDevice{}, fmt.Errorf("rhi: create %s instance: %w", CompiledBackend, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return hal.OpenDevice{}, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	od, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return hal.OpenDevice{}, fmt.Errorf("rhi: open device on %q: %w", selected.Info.Name, err)
	}
	d.instance = instance
	d.adapter = selected.Adapter
	d.ownsInstance = true
	d.adapterInfo = selected.Info
	return od, nil
}

// message delivers a validation diagnostic to the callback, or to the
// package logger when no callback is installed.
func (d *Device) message(sev Severity, msg string) {
	if d.callback != nil {
		d.callback(sev, msg)
		return
	}
	level := slog.LevelInfo
	switch sev {
	case SeverityWarn:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	Logger().Log(context.Background(), level, "rhi: "+msg)
}

// Label returns the device label.
func (d *Device) Label() string { return d.opts.label }

// AdapterInfo describes the opened adapter. It is empty for devices built
// with WithHAL.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.adapterInfo }

// Native returns the native device.
func (d *Device) Native() hal.Device { return d.native }

// Tracker returns the device's resource state tracker.
func (d *Device) Tracker() *StateTracker { return d.tracker }

// Fence returns the fence signalled by device-level command list pools.
func (d *Device) Fence() *Fence { return d.fence }

// ResourceHeap returns the resource-view descriptor heap.
func (d *Device) ResourceHeap() *DescriptorHeap { return d.resourceHeap }

// SamplerHeap returns the sampler descriptor heap.
func (d *Device) SamplerHeap() *DescriptorHeap { return d.samplerHeap }

// Defer queues fn on the deferred-destruction queue.
func (d *Device) Defer(fn func()) {
	d.deferred.push(fn)
}

// PendingDeferred returns the number of queued destructions.
func (d *Device) PendingDeferred() int {
	return d.deferred.len()
}

// ReleaseDeferred runs every queued destruction in submission order and
// returns how many ran. Call it once per frame after the frame-in-flight
// wait has retired the work that referenced them.
func (d *Device) ReleaseDeferred() int {
	n := d.deferred.drain()
	if n > 0 {
		Logger().Debug("rhi: released deferred objects", "count", n)
	}
	return n
}

// Wait blocks until the GPU is idle.
func (d *Device) Wait() error {
	if d.closed {
		return ErrDeviceClosed
	}
	if err := d.native.WaitIdle(); err != nil {
		return fmt.Errorf("rhi: wait idle: %w", err)
	}
	return nil
}

// Close waits for the GPU, closes every swapchain, drains the deferred
// queue and releases the native device when the device opened it.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	var errs []error
	if err := d.Wait(); err != nil {
		errs = append(errs, err)
	}
	for _, sc := range slices.Clone(d.swapchains) {
		if err := sc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.ReleaseDeferred()
	if d.ownsInstance {
		d.native.Destroy()
		if d.adapter != nil {
			d.adapter.Destroy()
		}
		d.instance.Destroy()
	}
	driverMessages.unregister(d)
	d.closed = true
	Logger().Info("rhi: device closed", "label", d.opts.label)
	return errors.Join(errs...)
}

// CreateCommandListPool returns a pool for queue whose lists signal the
// device fence.
func (d *Device) CreateCommandListPool(queue QueueType) *CommandListPool {
	return &CommandListPool{device: d, fence: d.fence, queue: queue, label: d.opts.label}
}

func (d *Device) createSubresourceView(img *Image, sub Subresources) (hal.TextureView, error) {
	dim := gputypes.TextureViewDimension2D
	if sub.NumArraySlices > 1 {
		dim = gputypes.TextureViewDimension2DArray
	}
	v, err := d.native.CreateTextureView(img.texture, &hal.TextureViewDescriptor{
		Label:           img.spec.Label + "_view",
		Format:          img.spec.Format,
		Dimension:       dim,
		Aspect:          img.spec.aspect(),
		BaseMipLevel:    sub.BaseMip,
		MipLevelCount:   sub.NumMips,
		BaseArrayLayer:  sub.BaseArraySlice,
		ArrayLayerCount: sub.NumArraySlices,
	})
	if err != nil {
		return nil, fmt.Errorf("create view of %q: %w", img.spec.Label, err)
	}
	return v, nil
}

// CreateImage creates a texture and starts tracking it in
// spec.InitialState.
func (d *Device) CreateImage(spec ImageSpec) (*Image, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if spec.Width == 0 || spec.Height == 0 || spec.Format == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: image %q needs a size and a format", ErrInvalidDescriptor, spec.Label)
	}
	tex, err := d.native.CreateTexture(&hal.TextureDescriptor{
		Label:         spec.Label,
		Size:          hal.Extent3D{Width: spec.Width, Height: spec.Height, DepthOrArrayLayers: spec.arraySlices()},
		MipLevelCount: spec.mipLevels(),
		SampleCount:   max(spec.SampleCount, 1),
		Dimension:     gputypes.TextureDimension2D,
		Format:        spec.Format,
		Usage:         spec.nativeUsage(),
	})
	if err != nil {
		return nil, fmt.Errorf("rhi: create image %q: %w", spec.Label, err)
	}
	img := &Image{spec: spec, texture: tex}
	view, err := d.native.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:     spec.Label + "_view",
		Format:    spec.Format,
		Dimension: spec.viewDimension(),
		Aspect:    spec.aspect(),
	})
	if err != nil {
		d.native.DestroyTexture(tex)
		return nil, fmt.Errorf("rhi: create image %q view: %w", spec.Label, err)
	}
	img.view = view
	d.tracker.StartTrackingImage(img, AllSubresources, spec.InitialState)
	return img, nil
}

// DestroyImage stops tracking img and queues its native release.
func (d *Device) DestroyImage(img *Image) {
	assertf(!img.backbuffer, "image %q is a swapchain backbuffer", img.Label())
	d.tracker.StopTrackingImage(img)
	tex, view := img.texture, img.view
	img.texture, img.view = nil, nil
	d.Defer(func() {
		d.native.DestroyTextureView(view)
		d.native.DestroyTexture(tex)
	})
}

// CreateBuffer creates a buffer and starts tracking it in
// spec.InitialState.
func (d *Device) CreateBuffer(spec BufferSpec) (*Buffer, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if spec.Size == 0 {
		return nil, fmt.Errorf("%w: buffer %q has zero size", ErrInvalidDescriptor, spec.Label)
	}
	native, err := d.native.CreateBuffer(&hal.BufferDescriptor{
		Label: spec.Label,
		Size:  spec.Size,
		Usage: spec.nativeUsage(),
	})
	if err != nil {
		return nil, fmt.Errorf("rhi: create buffer %q: %w", spec.Label, err)
	}
	buf := &Buffer{spec: spec, buffer: native}
	d.tracker.StartTrackingBuffer(buf, spec.InitialState)
	return buf, nil
}

// DestroyBuffer stops tracking buf and queues its native release.
func (d *Device) DestroyBuffer(buf *Buffer) {
	d.tracker.StopTrackingBuffer(buf)
	native := buf.buffer
	buf.buffer = nil
	d.Defer(func() { d.native.DestroyBuffer(native) })
}

// MapBuffer maps size bytes of a HostVisible buffer at offset. The caller
// must have waited for GPU work touching the range; no hazard detection
// is performed.
func (d *Device) MapBuffer(buf *Buffer, offset, size uint64) ([]byte, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if !buf.spec.HostVisible {
		return nil, fmt.Errorf("%w: buffer %q is not host visible", ErrInvalidDescriptor, buf.Label())
	}
	m, err := d.native.MapBuffer(buf.buffer, offset, size)
	if err != nil {
		return nil, fmt.Errorf("rhi: map buffer %q: %w", buf.Label(), err)
	}
	return unsafe.Slice((*byte)(m.Ptr), size), nil
}

// UnmapBuffer ends a mapping made by MapBuffer.
func (d *Device) UnmapBuffer(buf *Buffer) error {
	if d.closed {
		return ErrDeviceClosed
	}
	if err := d.native.UnmapBuffer(buf.buffer); err != nil {
		return fmt.Errorf("rhi: unmap buffer %q: %w", buf.Label(), err)
	}
	return nil
}

// WriteBuffer copies data into buf at offset through the queue. Like
// MapBuffer it performs no hazard detection.
func (d *Device) WriteBuffer(buf *Buffer, offset uint64, data []byte) error {
	if d.closed {
		return ErrDeviceClosed
	}
	if offset+uint64(len(data)) > buf.spec.Size {
		return fmt.Errorf("%w: write of %d bytes at %d overflows buffer %q",
			ErrInvalidDescriptor, len(data), offset, buf.Label())
	}
	if err := d.queue.writeBuffer(buf.buffer, offset, data); err != nil {
		return fmt.Errorf("rhi: write buffer %q: %w", buf.Label(), err)
	}
	return nil
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(spec SamplerSpec) (*Sampler, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	native, err := d.native.CreateSampler(samplerDescriptor(&spec))
	if err != nil {
		return nil, fmt.Errorf("rhi: create sampler %q: %w", spec.Label, err)
	}
	return &Sampler{spec: spec, sampler: native}, nil
}

// DestroySampler queues the release of s.
func (d *Device) DestroySampler(s *Sampler) {
	d.Defer(func() { d.native.DestroySampler(s.sampler) })
}

// CreateBindingLayout creates a binding layout and counts the heap slots
// one of its sets needs.
func (d *Device) CreateBindingLayout(desc BindingLayoutDesc) (*BindingLayout, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	l := &BindingLayout{desc: desc}
	for i := range desc.Items {
		it := &desc.Items[i]
		if it.Type == BindingRWTexture && it.StorageFormat == gputypes.TextureFormatUndefined {
			return nil, fmt.Errorf("%w: layout %q slot %d needs a storage format", ErrInvalidDescriptor, desc.Label, it.Slot)
		}
		if it.Type == BindingSampler {
			l.samplerSlots += it.count()
		} else {
			l.resourceSlots += it.count()
		}
	}
	native, err := d.native.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: bindingLayoutEntries(desc.Items),
	})
	if err != nil {
		return nil, fmt.Errorf("rhi: create binding layout %q: %w", desc.Label, err)
	}
	l.layout = native
	return l, nil
}

// DestroyBindingLayout queues the release of l.
func (d *Device) DestroyBindingLayout(l *BindingLayout) {
	d.Defer(func() { d.native.DestroyBindGroupLayout(l.layout) })
}

// CreateBindingSetPool reserves heap slots for desc.SetAmount sets.
func (d *Device) CreateBindingSetPool(desc BindingSetPoolDesc) (*BindingSetPool, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if desc.Layout == nil || desc.SetAmount == 0 {
		return nil, fmt.Errorf("%w: binding set pool %q needs a layout and a set amount", ErrInvalidDescriptor, desc.Label)
	}
	p := &BindingSetPool{device: d, desc: desc}
	var err error
	p.resources, err = d.resourceHeap.Allocate(desc.SetAmount * desc.Layout.resourceSlots)
	if err != nil {
		return nil, fmt.Errorf("rhi: binding set pool %q: %w", desc.Label, err)
	}
	p.samplers, err = d.samplerHeap.Allocate(desc.SetAmount * desc.Layout.samplerSlots)
	if err != nil {
		d.resourceHeap.Release(p.resources)
		return nil, fmt.Errorf("rhi: binding set pool %q: %w", desc.Label, err)
	}
	return p, nil
}

// CreateRenderpass creates a renderpass with an empty framebuffer arena.
func (d *Device) CreateRenderpass(desc RenderpassDesc) (*Renderpass, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if len(desc.ColorAttachments) == 0 && desc.DepthAttachment == nil {
		return nil, fmt.Errorf("%w: renderpass %q has no attachments", ErrInvalidDescriptor, desc.Label)
	}
	if da := desc.DepthAttachment; da != nil && !da.Format.IsDepthStencil() {
		return nil, fmt.Errorf("%w: renderpass %q depth attachment format %s", ErrInvalidDescriptor, desc.Label, da.Format)
	}
	return &Renderpass{device: d, desc: desc}, nil
}

// DestroyRenderpass releases rp and its framebuffers through the
// deferred-destruction queue.
func (d *Device) DestroyRenderpass(rp *Renderpass) {
	rp.ResetFramebuffers()
	rp.destroyed = true
}
