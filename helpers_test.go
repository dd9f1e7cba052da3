// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// recordingEncoder counts native barrier insertions on top of a noop
// encoder.
type recordingEncoder struct {
	hal.CommandEncoder

	textureFlushes int
	bufferFlushes  int
	textures       []hal.TextureBarrier
	buffers        []hal.BufferBarrier
	renderPasses   []*hal.RenderPassDescriptor
	computePasses  int
}

func (e *recordingEncoder) TransitionTextures(b []hal.TextureBarrier) {
	e.textureFlushes++
	e.textures = append(e.textures, b...)
	e.CommandEncoder.TransitionTextures(b)
}

func (e *recordingEncoder) TransitionBuffers(b []hal.BufferBarrier) {
	e.bufferFlushes++
	e.buffers = append(e.buffers, b...)
	e.CommandEncoder.TransitionBuffers(b)
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.renderPasses = append(e.renderPasses, desc)
	return e.CommandEncoder.BeginRenderPass(desc)
}

func (e *recordingEncoder) BeginComputePass(desc *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	e.computePasses++
	return e.CommandEncoder.BeginComputePass(desc)
}

// flushes returns the number of native barrier calls of either kind.
func (e *recordingEncoder) flushes() int {
	return e.textureFlushes + e.bufferFlushes
}

// recordingDevice hands out recording encoders.
type recordingDevice struct {
	hal.Device

	mu       sync.Mutex
	encoders []*recordingEncoder
	views    int
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	re := &recordingEncoder{CommandEncoder: enc}
	d.mu.Lock()
	d.encoders = append(d.encoders, re)
	d.mu.Unlock()
	return re, nil
}

func (d *recordingDevice) CreateTextureView(tex hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	d.mu.Lock()
	d.views++
	d.mu.Unlock()
	return d.Device.CreateTextureView(tex, desc)
}

func (d *recordingDevice) DestroyTextureView(v hal.TextureView) {
	d.mu.Lock()
	d.views--
	d.mu.Unlock()
	d.Device.DestroyTextureView(v)
}

func (d *recordingDevice) liveViews() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.views
}

// gatedQueue lets a test hold GPU completion below a submission index.
// While held, PollCompleted reports no progress past the gate.
type gatedQueue struct {
	hal.Queue

	mu        sync.Mutex
	submitted uint64
	gate      uint64
	held      bool
	presents  int
	presentFn func() error
}

func (q *gatedQueue) Submit(bufs []hal.CommandBuffer) (uint64, error) {
	idx, err := q.Queue.Submit(bufs)
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	q.submitted = idx
	q.mu.Unlock()
	return idx, nil
}

func (q *gatedQueue) PollCompleted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.held {
		return min(q.gate, q.submitted)
	}
	return q.submitted
}

func (q *gatedQueue) Present(s hal.Surface, tex hal.SurfaceTexture, damage []image.Rectangle) error {
	q.mu.Lock()
	q.presents++
	fn := q.presentFn
	q.mu.Unlock()
	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}
	return q.Queue.Present(s, tex, damage)
}

// hold freezes completion at the current submission.
func (q *gatedQueue) hold() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held = true
	q.gate = q.submitted
}

// release lets every submission complete.
func (q *gatedQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held = false
}

func (q *gatedQueue) presentCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.presents
}

// testSurface wraps a noop surface with injectable acquire failures.
type testSurface struct {
	hal.Surface

	acquireErr  error
	configures  int
	lastConfig  hal.SurfaceConfiguration
	discarded   int
	destroyed   bool
	unconfigure bool
}

func (s *testSurface) Configure(dev hal.Device, cfg *hal.SurfaceConfiguration) error {
	s.configures++
	s.lastConfig = *cfg
	return s.Surface.Configure(dev, cfg)
}

func (s *testSurface) Unconfigure(dev hal.Device) {
	s.unconfigure = true
	s.Surface.Unconfigure(dev)
}

func (s *testSurface) AcquireTexture(f hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	return s.Surface.AcquireTexture(f)
}

func (s *testSurface) DiscardTexture(tex hal.SurfaceTexture) {
	s.discarded++
	s.Surface.DiscardTexture(tex)
}

func (s *testSurface) Destroy() {
	s.destroyed = true
	s.Surface.Destroy()
}

// testEnv is a device over the noop backend with observable wrappers.
type testEnv struct {
	dev      *Device
	hal      *recordingDevice
	queue    *gatedQueue
	instance hal.Instance
	messages []loggedMessage
}

type loggedMessage struct {
	sev Severity
	msg string
}

func newTestEnv(t *testing.T, opts ...DeviceOption) *testEnv {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	od, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}

	env := &testEnv{
		hal:      &recordingDevice{Device: od.Device},
		queue:    &gatedQueue{Queue: od.Queue},
		instance: instance,
	}
	all := []DeviceOption{
		WithHAL(instance, hal.OpenDevice{Device: env.hal, Queue: env.queue}),
		WithLabel("test"),
		WithMessageCallback(func(sev Severity, msg string) {
			env.messages = append(env.messages, loggedMessage{sev, msg})
		}),
	}
	dev, err := NewDevice(append(all, opts...)...)
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	env.dev = dev
	t.Cleanup(func() {
		env.queue.release()
		if err := dev.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
		od.Device.Destroy()
		instance.Destroy()
	})
	return env
}

// openList allocates and opens a list from a device pool.
func (env *testEnv) openList(t *testing.T) *CommandList {
	t.Helper()
	cl, err := env.dev.CreateCommandListPool(QueueGraphics).AllocateList()
	if err != nil {
		t.Fatalf("AllocateList() = %v", err)
	}
	if err := cl.Open(); err != nil {
		t.Fatalf("Open() = %v", err)
	}
	return cl
}

func (env *testEnv) image(t *testing.T, spec ImageSpec) *Image {
	t.Helper()
	if spec.Format == gputypes.TextureFormatUndefined {
		spec.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if spec.Width == 0 {
		spec.Width, spec.Height = 64, 64
	}
	img, err := env.dev.CreateImage(spec)
	if err != nil {
		t.Fatalf("CreateImage(%q) = %v", spec.Label, err)
	}
	return img
}

func (env *testEnv) buffer(t *testing.T, spec BufferSpec) *Buffer {
	t.Helper()
	if spec.Size == 0 {
		spec.Size = 256
	}
	buf, err := env.dev.CreateBuffer(spec)
	if err != nil {
		t.Fatalf("CreateBuffer(%q) = %v", spec.Label, err)
	}
	return buf
}

func (env *testEnv) swapchain(t *testing.T, desc SwapchainDesc) *Swapchain {
	t.Helper()
	if desc.Window == nil {
		desc.Window = gpucontext.NullWindowProvider{W: 320, H: 240}
	}
	sc, err := env.dev.CreateSwapchain(desc)
	if err != nil {
		t.Fatalf("CreateSwapchain() = %v", err)
	}
	return sc
}

func encoderOf(cl *CommandList) *recordingEncoder {
	return cl.encoder.(*recordingEncoder)
}

// mustPanic runs fn and returns the assertion it raised.
func mustPanic(t *testing.T, fn func()) *AssertionError {
	t.Helper()
	if !assertionsEnabled {
		t.Skip("assertions are compiled out")
	}
	var got *AssertionError
	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok || !errors.As(err, &got) {
				panic(r)
			}
		}()
		fn()
	}()
	if got == nil {
		t.Fatal("expected an assertion panic")
	}
	return got
}
