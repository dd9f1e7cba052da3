// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Frame pacing limits.
const (
	// FramesInFlight is the number of frames the CPU may record ahead of
	// the GPU.
	FramesInFlight = 2

	// MaxBackbufferCount bounds the swapchain image ring.
	MaxBackbufferCount = 4

	defaultBackbufferCount = 3
)

// SwapchainDesc describes a swapchain.
type SwapchainDesc struct {
	Label string

	// Window reports the client area size used to configure the surface.
	Window gpucontext.WindowProvider

	// DisplayHandle and WindowHandle are the platform handles the surface
	// is created from.
	DisplayHandle uintptr
	WindowHandle  uintptr

	// Surface is an already created surface. When set the handles are
	// ignored and the swapchain does not destroy it.
	Surface hal.Surface

	// Format defaults to BGRA8Unorm.
	Format gputypes.TextureFormat

	// BackbufferCount defaults to 3 and is clamped to
	// [FramesInFlight, MaxBackbufferCount].
	BackbufferCount int

	VSync bool
}

// Swapchain is a ring of presentable backbuffer images paced by a frame
// fence. At most FramesInFlight frames are in flight: AcquireNextImage
// blocks until the frame slot it reuses has been retired by the GPU.
//
// A Swapchain is used by one goroutine at a time.
type Swapchain struct {
	device      *Device
	desc        SwapchainDesc
	surface     hal.Surface
	ownsSurface bool
	fence       *Fence

	images     []*Image
	acquired   hal.SurfaceTexture
	imageIndex int
	frameIndex int

	// slotWait is the fence value a frame slot must reach before reuse.
	slotWait [FramesInFlight]uint64
	// presentable is the fence value at which a backbuffer's rendering
	// is complete.
	presentable [MaxBackbufferCount]uint64

	width, height uint32
	pools         []*CommandListPool
	closed        bool
}

// CreateSwapchain creates a surface for the window, configures it and
// starts tracking its backbuffers in StateUnknown.
func (d *Device) CreateSwapchain(desc SwapchainDesc) (*Swapchain, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if desc.Window == nil {
		return nil, fmt.Errorf("%w: swapchain %q needs a window", ErrInvalidDescriptor, desc.Label)
	}
	if desc.Label == "" {
		desc.Label = d.opts.label + "_swapchain"
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if desc.BackbufferCount == 0 {
		desc.BackbufferCount = defaultBackbufferCount
	}
	desc.BackbufferCount = min(max(desc.BackbufferCount, FramesInFlight), MaxBackbufferCount)

	sc := &Swapchain{
		device:     d,
		desc:       desc,
		surface:    desc.Surface,
		imageIndex: -1,
	}
	if sc.surface == nil {
		if d.instance == nil {
			return nil, fmt.Errorf("%w: swapchain %q has no surface and the device has no instance",
				ErrInvalidDescriptor, desc.Label)
		}
		s, err := d.instance.CreateSurface(desc.DisplayHandle, desc.WindowHandle)
		if err != nil {
			return nil, fmt.Errorf("rhi: create surface for %q: %w", desc.Label, err)
		}
		sc.surface = s
		sc.ownsSurface = true
	}

	sc.width, sc.height = sc.windowSize()
	if sc.width == 0 || sc.height == 0 {
		sc.destroySurface()
		return nil, fmt.Errorf("%w: swapchain %q window has zero size", ErrInvalidDescriptor, desc.Label)
	}
	if err := sc.configure(); err != nil {
		sc.destroySurface()
		return nil, err
	}

	sc.fence = newFence(d.queue, desc.Label+"_frame_fence", d.opts.waitTimeout)
	sc.images = make([]*Image, desc.BackbufferCount)
	for i := range sc.images {
		img := &Image{
			spec: ImageSpec{
				Label:  fmt.Sprintf("%s_backbuffer_%d", desc.Label, i),
				Format: desc.Format,
				Width:  sc.width,
				Height: sc.height,
				Usage:  backbufferUsage,
			},
			backbuffer: true,
		}
		sc.images[i] = img
		d.tracker.StartTrackingImage(img, AllSubresources, StateUnknown)
	}
	d.swapchains = append(d.swapchains, sc)

	Logger().Info("rhi: swapchain created",
		"label", desc.Label,
		"width", sc.width,
		"height", sc.height,
		"backbuffers", desc.BackbufferCount,
		"vsync", desc.VSync)
	return sc, nil
}

const backbufferUsage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst

// windowSize returns the window client area in physical pixels.
func (sc *Swapchain) windowSize() (uint32, uint32) {
	w, h := sc.desc.Window.Size()
	scale := sc.desc.Window.ScaleFactor()
	if scale <= 0 {
		scale = 1
	}
	pw, ph := int(float64(w)*scale), int(float64(h)*scale)
	if pw <= 0 || ph <= 0 {
		return 0, 0
	}
	return uint32(pw), uint32(ph)
}

func (sc *Swapchain) configure() error {
	mode := gputypes.PresentModeImmediate
	if sc.desc.VSync {
		mode = gputypes.PresentModeFifo
	}
	err := sc.surface.Configure(sc.device.native, &hal.SurfaceConfiguration{
		Width:       sc.width,
		Height:      sc.height,
		Format:      sc.desc.Format,
		Usage:       backbufferUsage,
		PresentMode: mode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return fmt.Errorf("rhi: configure swapchain %q: %w", sc.desc.Label, surfaceError(err))
	}
	return nil
}

func (sc *Swapchain) destroySurface() {
	if sc.ownsSurface && sc.surface != nil {
		sc.surface.Destroy()
	}
	sc.surface = nil
}

// surfaceError maps hal surface errors to the package sentinels.
func surfaceError(err error) error {
	switch {
	case errors.Is(err, hal.ErrSurfaceOutdated):
		return fmt.Errorf("%w: %w", ErrSwapchainOutdated, err)
	case errors.Is(err, hal.ErrSurfaceLost):
		return fmt.Errorf("%w: %w", ErrSurfaceLost, err)
	case errors.Is(err, hal.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// AcquireNextImage waits until the GPU has retired the frame that last
// used the current frame slot, then acquires the next backbuffer and
// returns its index. This wait is what bounds the CPU to FramesInFlight
// frames ahead of the GPU.
//
// ErrSwapchainOutdated means the surface no longer matches the window;
// call Resize and retry.
func (sc *Swapchain) AcquireNextImage() (int, error) {
	assertf(!sc.closed, "swapchain %q used after close", sc.desc.Label)
	assertf(sc.acquired == nil, "swapchain %q: image %d acquired twice without present", sc.desc.Label, sc.imageIndex)

	if err := sc.fence.Wait(sc.slotWait[sc.frameIndex]); err != nil {
		return -1, fmt.Errorf("rhi: swapchain %q frame slot %d: %w", sc.desc.Label, sc.frameIndex, err)
	}

	at, err := sc.surface.AcquireTexture(nil)
	if err != nil {
		return -1, fmt.Errorf("rhi: acquire from swapchain %q: %w", sc.desc.Label, surfaceError(err))
	}
	if at.Suboptimal {
		Logger().Debug("rhi: suboptimal swapchain image", "swapchain", sc.desc.Label)
	}

	idx := (sc.imageIndex + 1) % len(sc.images)
	img := sc.images[idx]
	if old := img.view; old != nil {
		sc.device.Defer(func() { sc.device.native.DestroyTextureView(old) })
	}
	img.texture = at.Texture
	img.view = nil
	view, err := sc.device.native.CreateTextureView(at.Texture, &hal.TextureViewDescriptor{
		Label:     img.spec.Label + "_view",
		Format:    img.spec.Format,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		sc.surface.DiscardTexture(at.Texture)
		img.texture = nil
		return -1, fmt.Errorf("rhi: swapchain %q backbuffer view: %w", sc.desc.Label, err)
	}
	img.view = view
	sc.acquired = at.Texture
	sc.imageIndex = idx
	return idx, nil
}

// markPresentable records value as the fence value at which the current
// backbuffer's rendering is complete.
func (sc *Swapchain) markPresentable(value uint64) {
	assertf(sc.imageIndex >= 0, "swapchain %q: presentable mark before the first acquire", sc.desc.Label)
	sc.presentable[sc.imageIndex] = value
}

// Present queues the current backbuffer for display after the submission
// that made it presentable, then signals a fresh fence value that retires
// the current frame slot and advances to the next slot.
func (sc *Swapchain) Present() error {
	assertf(!sc.closed, "swapchain %q used after close", sc.desc.Label)
	assertf(sc.acquired != nil, "swapchain %q: present without an acquired image", sc.desc.Label)

	sc.fence.gpuWait(sc.presentable[sc.imageIndex])
	err := sc.device.queue.present(sc.surface, sc.acquired)
	sc.acquired = nil

	sc.slotWait[sc.frameIndex] = sc.fence.Signal()
	sc.frameIndex = (sc.frameIndex + 1) % FramesInFlight
	if err != nil {
		return fmt.Errorf("rhi: present swapchain %q: %w", sc.desc.Label, surfaceError(err))
	}
	return nil
}

// Resize waits for the device to go idle, releases the backbuffer views
// and reconfigures the surface to the window's current size. Backbuffers
// are re-registered in StateUnknown. A minimized window (zero size) keeps
// the old configuration.
func (sc *Swapchain) Resize() error {
	assertf(!sc.closed, "swapchain %q used after close", sc.desc.Label)
	w, h := sc.windowSize()
	if w == 0 || h == 0 {
		Logger().Warn("rhi: swapchain resize to zero size skipped", "swapchain", sc.desc.Label)
		return nil
	}
	if err := sc.device.Wait(); err != nil {
		return err
	}
	if sc.acquired != nil {
		sc.surface.DiscardTexture(sc.acquired)
		sc.acquired = nil
	}
	sc.releaseViews()

	sc.width, sc.height = w, h
	if err := sc.configure(); err != nil {
		return err
	}
	tracker := sc.device.tracker
	for _, img := range sc.images {
		img.spec.Width, img.spec.Height = w, h
		tracker.StopTrackingImage(img)
		tracker.StartTrackingImage(img, AllSubresources, StateUnknown)
	}
	sc.imageIndex = -1

	Logger().Warn("rhi: swapchain resized", "swapchain", sc.desc.Label, "width", w, "height", h)
	return nil
}

// releaseViews destroys every backbuffer view. The GPU must be idle.
func (sc *Swapchain) releaseViews() {
	for _, img := range sc.images {
		if img.view != nil {
			sc.device.native.DestroyTextureView(img.view)
		}
		img.view, img.texture = nil, nil
	}
}

// CreateCommandListPool returns a pool for queue whose lists signal the
// swapchain's frame fence and may make the current backbuffer
// presentable.
func (sc *Swapchain) CreateCommandListPool(queue QueueType) *CommandListPool {
	p := &CommandListPool{
		device:    sc.device,
		swapchain: sc,
		fence:     sc.fence,
		queue:     queue,
		label:     sc.desc.Label,
	}
	sc.pools = append(sc.pools, p)
	return p
}

// CurrentImage returns the backbuffer returned by the last acquire.
func (sc *Swapchain) CurrentImage() *Image {
	assertf(sc.imageIndex >= 0, "swapchain %q: no image acquired", sc.desc.Label)
	return sc.images[sc.imageIndex]
}

// CurrentImageIndex returns the index of the last acquired backbuffer, or
// -1 before the first acquire.
func (sc *Swapchain) CurrentImageIndex() int { return sc.imageIndex }

// Image returns backbuffer i.
func (sc *Swapchain) Image(i int) *Image { return sc.images[i] }

// BackbufferCount returns the number of images in the ring.
func (sc *Swapchain) BackbufferCount() int { return len(sc.images) }

// FrameIndex returns the current frame slot.
func (sc *Swapchain) FrameIndex() int { return sc.frameIndex }

// Fence returns the frame fence.
func (sc *Swapchain) Fence() *Fence { return sc.fence }

// Format returns the backbuffer format.
func (sc *Swapchain) Format() gputypes.TextureFormat { return sc.desc.Format }

// Size returns the backbuffer size in pixels.
func (sc *Swapchain) Size() (width, height uint32) { return sc.width, sc.height }

// Close waits for the device, frees the swapchain's command list pools and
// releases the surface.
func (sc *Swapchain) Close() error {
	if sc.closed {
		return nil
	}
	d := sc.device
	err := d.Wait()
	if sc.acquired != nil {
		sc.surface.DiscardTexture(sc.acquired)
		sc.acquired = nil
	}
	for _, p := range sc.pools {
		p.Release()
	}
	sc.pools = nil
	sc.releaseViews()
	for _, img := range sc.images {
		d.tracker.StopTrackingImage(img)
	}
	sc.surface.Unconfigure(d.native)
	sc.destroySurface()
	if i := slices.Index(d.swapchains, sc); i >= 0 {
		d.swapchains = slices.Delete(d.swapchains, i, i+1)
	}
	sc.closed = true
	Logger().Info("rhi: swapchain closed", "label", sc.desc.Label)
	return err
}
