// Command rhidemo runs the rhi frame loop: it renders a triangle into the
// swapchain and runs a compute pass every frame, printing the barrier and
// fence statistics at the end.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/config"
	"github.com/gogpu/rhi/shader"
)

const triangleWGSL = `
struct Frame {
    tint: vec4<f32>,
}

@group(0) @binding(0) var<uniform> frame: Frame;

@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return frame.tint;
}
`

const counterWGSL = `
@group(0) @binding(0) var<storage, read_write> counters: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    counters[id.x] = counters[id.x] + 1u;
}
`

const counterCount = 256

func main() {
	var (
		cfgPath = flag.String("config", "rhidemo.toml", "TOML configuration file")
		frames  = flag.Int("frames", 8, "number of frames to render")
		verbose = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	if *verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := run(&cfg, *frames); err != nil {
		log.Fatal(err)
	}
}

// demo holds the objects the frame loop records with.
type demo struct {
	dev   *rhi.Device
	sc    *rhi.Swapchain
	pools [rhi.FramesInFlight]*rhi.CommandListPool

	pass     *rhi.Renderpass
	triangle *rhi.GraphicsPipeline
	counter  *rhi.ComputePipeline

	vertices  *rhi.Buffer
	uniforms  *rhi.Buffer
	counters  *rhi.Buffer
	readback  *rhi.Buffer
	drawSet   *rhi.BindingSet
	computeSt *rhi.BindingSet
}

func run(cfg *config.Config, frames int) error {
	opts, err := cfg.DeviceOptions(func(sev rhi.Severity, msg string) {
		log.Printf("[%s] %s", sev, msg)
	})
	if err != nil {
		return err
	}
	dev, err := rhi.NewDevice(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	d := &demo{dev: dev}
	if err := d.setup(cfg); err != nil {
		return err
	}
	for i := range frames {
		if err := d.frame(i); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if err := dev.Wait(); err != nil {
		return err
	}

	data, err := dev.MapBuffer(d.readback, 0, 4)
	if err != nil {
		return err
	}
	first := binary.LittleEndian.Uint32(data)
	if err := dev.UnmapBuffer(d.readback); err != nil {
		return err
	}

	fmt.Printf("rendered %d frames on %s (%d backbuffers)\n", frames, rhi.CompiledBackend, d.sc.BackbufferCount())
	fmt.Printf("frame fence: signalled %d, completed %d\n", d.sc.Fence().Signalled(), d.sc.Fence().Completed())
	fmt.Printf("counter[0] = %d\n", first)
	return nil
}

func (d *demo) setup(cfg *config.Config) error {
	dev := d.dev
	sc, err := dev.CreateSwapchain(rhi.SwapchainDesc{
		Label:           "demo",
		Window:          gpucontext.NullWindowProvider{W: cfg.Swapchain.Width, H: cfg.Swapchain.Height},
		BackbufferCount: cfg.Swapchain.Backbuffers,
		VSync:           cfg.Swapchain.VSync,
	})
	if err != nil {
		return err
	}
	d.sc = sc
	for i := range d.pools {
		d.pools[i] = sc.CreateCommandListPool(rhi.QueueGraphics)
		if _, err := d.pools[i].AllocateList(); err != nil {
			return err
		}
	}

	d.pass, err = dev.CreateRenderpass(rhi.RenderpassDesc{
		Label: "triangle",
		ColorAttachments: []rhi.AttachmentDesc{{
			Format:     sc.Format(),
			EndState:   rhi.StatePresent,
			LoadOp:     gputypes.LoadOpClear,
			ClearColor: gputypes.Color{R: 0.1, G: 0.1, B: 0.15, A: 1},
		}},
		Swapchain: sc,
	})
	if err != nil {
		return err
	}
	for i := range sc.BackbufferCount() {
		if _, err := d.pass.CreateFramebuffer(rhi.FramebufferDesc{
			Color: []rhi.FramebufferAttachment{{Image: sc.Image(i)}},
		}); err != nil {
			return err
		}
	}

	if err := d.createBuffers(); err != nil {
		return err
	}
	return d.createPipelines()
}

func (d *demo) createBuffers() error {
	dev := d.dev
	var err error
	verts := []float32{0, 0.5, -0.5, -0.5, 0.5, -0.5}
	d.vertices, err = dev.CreateBuffer(rhi.BufferSpec{
		Label:             "vertices",
		Size:              uint64(len(verts) * 4),
		InitialState:      rhi.StateVertexBuffer,
		KeepResourceState: true,
	})
	if err != nil {
		return err
	}
	if err := dev.WriteBuffer(d.vertices, 0, float32Bytes(verts)); err != nil {
		return err
	}
	d.uniforms, err = dev.CreateBuffer(rhi.BufferSpec{
		Label:             "uniforms",
		Size:              16,
		InitialState:      rhi.StateConstantBuffer,
		KeepResourceState: true,
	})
	if err != nil {
		return err
	}
	d.counters, err = dev.CreateBuffer(rhi.BufferSpec{
		Label:        "counters",
		Size:         counterCount * 4,
		InitialState: rhi.StateUnorderedAccess,
	})
	if err != nil {
		return err
	}
	d.readback, err = dev.CreateBuffer(rhi.BufferSpec{
		Label:        "readback",
		Size:         counterCount * 4,
		HostVisible:  true,
		InitialState: rhi.StateCopyDst,
	})
	return err
}

func (d *demo) createPipelines() error {
	dev := d.dev
	drawLayout, err := dev.CreateBindingLayout(rhi.BindingLayoutDesc{
		Label: "frame",
		Items: []rhi.BindingLayoutItem{{
			Type:       rhi.BindingConstantBuffer,
			Visibility: gputypes.ShaderStageFragment,
		}},
	})
	if err != nil {
		return err
	}
	computeLayout, err := dev.CreateBindingLayout(rhi.BindingLayoutDesc{
		Label: "counters",
		Items: []rhi.BindingLayoutItem{{
			Type:       rhi.BindingRWStructuredBuffer,
			Visibility: gputypes.ShaderStageCompute,
		}},
	})
	if err != nil {
		return err
	}

	code, err := shader.CompileWGSL(triangleWGSL, shader.Options{})
	if err != nil {
		return err
	}
	vs, err := dev.CreateShader(rhi.ShaderDesc{Label: "triangle_vs", Stage: gputypes.ShaderStageVertex, EntryPoint: "vs_main", SPIRV: code})
	if err != nil {
		return err
	}
	fs, err := dev.CreateShader(rhi.ShaderDesc{Label: "triangle_fs", Stage: gputypes.ShaderStageFragment, EntryPoint: "fs_main", SPIRV: code})
	if err != nil {
		return err
	}
	cs, err := shader.Load(dev, "counter_cs", gputypes.ShaderStageCompute, "main", counterWGSL)
	if err != nil {
		return err
	}

	d.triangle, err = dev.CreateGraphicsPipeline(rhi.GraphicsPipelineDesc{
		Label:          "triangle",
		VertexShader:   vs,
		FragmentShader: fs,
		VertexLayouts: []gputypes.VertexBufferLayout{{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x2}},
		}},
		BindingLayouts: []*rhi.BindingLayout{drawLayout},
		Renderpass:     d.pass,
	})
	if err != nil {
		return err
	}
	d.counter, err = dev.CreateComputePipeline(rhi.ComputePipelineDesc{
		Label:          "counter",
		Shader:         cs,
		BindingLayouts: []*rhi.BindingLayout{computeLayout},
	})
	if err != nil {
		return err
	}
	dev.DestroyShader(vs)
	dev.DestroyShader(fs)
	dev.DestroyShader(cs)

	drawPool, err := dev.CreateBindingSetPool(rhi.BindingSetPoolDesc{Label: "frame", Layout: drawLayout, SetAmount: 1})
	if err != nil {
		return err
	}
	d.drawSet = drawPool.CreateBindingSet("frame")
	if err := d.drawSet.Update([]rhi.BindingItem{{Buffer: d.uniforms}}); err != nil {
		return err
	}
	computePool, err := dev.CreateBindingSetPool(rhi.BindingSetPoolDesc{Label: "counters", Layout: computeLayout, SetAmount: 1})
	if err != nil {
		return err
	}
	d.computeSt = computePool.CreateBindingSet("counters")
	return d.computeSt.Update([]rhi.BindingItem{{Buffer: d.counters}})
}

func (d *demo) frame(n int) error {
	idx, err := d.sc.AcquireNextImage()
	if err != nil {
		return err
	}
	pool := d.pools[d.sc.FrameIndex()]
	pool.Reset()
	cl := pool.Lists()[0]

	t := float64(n) / 8
	tint := []float32{float32(0.5 + 0.5*math.Sin(t)), 0.4, float32(0.5 + 0.5*math.Cos(t)), 1}
	if err := d.dev.WriteBuffer(d.uniforms, 0, float32Bytes(tint)); err != nil {
		return err
	}

	if err := cl.Open(); err != nil {
		return err
	}
	cl.SetComputeState(rhi.ComputeState{Pipeline: d.counter, Bindings: []*rhi.BindingSet{d.computeSt}})
	cl.Dispatch(counterCount/64, 1, 1)
	cl.CopyBuffer(d.readback, 0, d.counters, 0, counterCount*4)

	cl.SetGraphicsState(rhi.GraphicsState{
		Pipeline:      d.triangle,
		Framebuffer:   d.pass.Framebuffer(idx),
		Bindings:      []*rhi.BindingSet{d.drawSet},
		VertexBuffers: []rhi.VertexBufferBinding{{Buffer: d.vertices}},
	})
	cl.Draw(rhi.DrawArguments{VertexCount: 3})
	cl.EndRenderpass()
	if err := cl.Close(); err != nil {
		return err
	}
	if err := cl.Submit(rhi.SubmitArgs{OnFinishMakeSwapchainPresentable: true}); err != nil {
		return err
	}
	if err := d.sc.Present(); err != nil {
		return err
	}
	d.dev.ReleaseDeferred()
	return nil
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
