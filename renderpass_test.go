// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestCreateRenderpassInvalid(t *testing.T) {
	tests := []struct {
		name string
		desc RenderpassDesc
	}{
		{"no attachments", RenderpassDesc{Label: "empty"}},
		{"color depth format", RenderpassDesc{
			Label:           "bad depth",
			DepthAttachment: &AttachmentDesc{Format: gputypes.TextureFormatRGBA8Unorm},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if _, err := env.dev.CreateRenderpass(tt.desc); !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("CreateRenderpass() = %v, want ErrInvalidDescriptor", err)
			}
		})
	}
}

func TestCreateFramebufferMismatch(t *testing.T) {
	env := newTestEnv(t)
	color := env.image(t, ImageSpec{Label: "color", InitialState: StateRenderTarget})
	depth := env.image(t, ImageSpec{Label: "depth", Format: gputypes.TextureFormatDepth32Float, InitialState: StateDepthWrite})
	rp, err := env.dev.CreateRenderpass(RenderpassDesc{
		Label:            "pass",
		ColorAttachments: []AttachmentDesc{{Format: gputypes.TextureFormatRGBA8Unorm}},
	})
	if err != nil {
		t.Fatalf("CreateRenderpass() = %v", err)
	}

	tests := []struct {
		name string
		desc FramebufferDesc
	}{
		{"missing color", FramebufferDesc{}},
		{"extra depth", FramebufferDesc{
			Color: []FramebufferAttachment{{Image: color}},
			Depth: &FramebufferAttachment{Image: depth},
		}},
	}
	for _, tt := range tests {
		if _, err := rp.CreateFramebuffer(tt.desc); !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("%s: CreateFramebuffer() = %v, want ErrInvalidDescriptor", tt.name, err)
		}
	}
	if rp.FramebufferCount() != 0 {
		t.Errorf("FramebufferCount() = %d after failures", rp.FramebufferCount())
	}
}

func TestFramebufferSubresourceViews(t *testing.T) {
	env := newTestEnv(t)
	whole := env.image(t, ImageSpec{Label: "whole", InitialState: StateRenderTarget})
	mipped := env.image(t, ImageSpec{Label: "mipped", MipLevels: 3, InitialState: StateRenderTarget})
	rp, err := env.dev.CreateRenderpass(RenderpassDesc{
		Label: "mrt",
		ColorAttachments: []AttachmentDesc{
			{Format: gputypes.TextureFormatRGBA8Unorm},
			{Format: gputypes.TextureFormatRGBA8Unorm},
		},
	})
	if err != nil {
		t.Fatalf("CreateRenderpass() = %v", err)
	}

	base := env.hal.liveViews()
	fb, err := rp.CreateFramebuffer(FramebufferDesc{Color: []FramebufferAttachment{
		{Image: whole},
		{Image: mipped, Mip: 2},
	}})
	if err != nil {
		t.Fatalf("CreateFramebuffer() = %v", err)
	}
	if got := env.hal.liveViews() - base; got != 1 {
		t.Errorf("framebuffer created %d views, want 1 for the mip attachment", got)
	}
	if w, h := fb.Size(); w != 64 || h != 64 {
		t.Errorf("Size() = %dx%d, want the first attachment's 64x64", w, h)
	}

	rp.ResetFramebuffers()
	if rp.FramebufferCount() != 0 {
		t.Errorf("FramebufferCount() = %d after reset", rp.FramebufferCount())
	}
	if got := env.hal.liveViews() - base; got != 1 {
		t.Errorf("views destroyed before the deferred queue drained")
	}
	env.dev.ReleaseDeferred()
	if got := env.hal.liveViews() - base; got != 0 {
		t.Errorf("live views = %d after release, want 0", got)
	}
}

func TestFramebufferOutlivesArena(t *testing.T) {
	tests := []struct {
		name string
		drop func(env *testEnv, rp *Renderpass)
	}{
		{"reset", func(_ *testEnv, rp *Renderpass) { rp.ResetFramebuffers() }},
		{"destroy", func(env *testEnv, rp *Renderpass) { env.dev.DestroyRenderpass(rp) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			img := env.image(t, ImageSpec{Label: "color", InitialState: StateRenderTarget})
			rp, err := env.dev.CreateRenderpass(RenderpassDesc{
				Label:            "single",
				ColorAttachments: []AttachmentDesc{{Format: gputypes.TextureFormatRGBA8Unorm}},
			})
			if err != nil {
				t.Fatalf("CreateRenderpass() = %v", err)
			}
			fb, err := rp.CreateFramebuffer(FramebufferDesc{Color: []FramebufferAttachment{{Image: img}}})
			if err != nil {
				t.Fatalf("CreateFramebuffer() = %v", err)
			}
			tt.drop(env, rp)
			mustPanic(t, func() { fb.Desc() })
		})
	}
}

func TestSwapchainRenderpassFramebufferLimit(t *testing.T) {
	env := newTestEnv(t)
	sc := env.swapchain(t, SwapchainDesc{BackbufferCount: 2})
	rp, err := env.dev.CreateRenderpass(RenderpassDesc{
		Label:            "present",
		ColorAttachments: []AttachmentDesc{{Format: sc.Format(), EndState: StatePresent}},
		Swapchain:        sc,
	})
	if err != nil {
		t.Fatalf("CreateRenderpass() = %v", err)
	}
	for i := range sc.BackbufferCount() {
		if _, err := rp.CreateFramebuffer(FramebufferDesc{Color: []FramebufferAttachment{{Image: sc.Image(i)}}}); err != nil {
			t.Fatalf("CreateFramebuffer(%d) = %v", i, err)
		}
	}
	mustPanic(t, func() {
		_, _ = rp.CreateFramebuffer(FramebufferDesc{Color: []FramebufferAttachment{{Image: sc.Image(0)}}})
	})
}

func TestRenderpassStartStateMismatch(t *testing.T) {
	tests := []struct {
		name       string
		start      ResourceState
		wantWarned bool
	}{
		{"matching", StateShaderResource, false},
		{"mismatch", StateCopyDst, true},
		{"unchecked", StateUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			f := newDrawFixture(t, env, AttachmentDesc{StartState: tt.start})
			cl := env.openList(t)

			cl.SetGraphicsState(GraphicsState{Pipeline: f.pipeline, Framebuffer: f.fb})
			cl.EndRenderpass()

			warned := false
			for _, m := range env.messages {
				if m.sev == SeverityWarn && strings.Contains(m.msg, "declared start state") {
					warned = true
				}
			}
			if warned != tt.wantWarned {
				t.Errorf("warned = %v, want %v (messages %+v)", warned, tt.wantWarned, env.messages)
			}
			if got := env.dev.Tracker().ImageState(f.target, 0, 0); got != StateRenderTarget {
				t.Errorf("target state = %s, want RenderTarget without an end state", got)
			}
		})
	}
}

func TestDepthAttachmentStates(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		want     ResourceState
	}{
		{"write", false, StateDepthWrite},
		{"read only", true, StateDepthRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			depth := env.image(t, ImageSpec{
				Label:        "depth",
				Format:       gputypes.TextureFormatDepth24PlusStencil8,
				InitialState: StateShaderResource,
			})
			rp, err := env.dev.CreateRenderpass(RenderpassDesc{
				Label: "shadow",
				DepthAttachment: &AttachmentDesc{
					Format:   depth.spec.Format,
					LoadOp:   gputypes.LoadOpClear,
					ReadOnly: tt.readOnly,
				},
			})
			if err != nil {
				t.Fatalf("CreateRenderpass() = %v", err)
			}
			fb, err := rp.CreateFramebuffer(FramebufferDesc{Depth: &FramebufferAttachment{Image: depth}})
			if err != nil {
				t.Fatalf("CreateFramebuffer() = %v", err)
			}
			pipeline, err := env.dev.CreateGraphicsPipeline(GraphicsPipelineDesc{
				Label:        "shadow",
				VertexShader: newShader(t, env, gputypes.ShaderStageVertex),
				Renderpass:   rp,
				DepthTest:    true,
				DepthWrite:   true,
			})
			if err != nil {
				t.Fatalf("CreateGraphicsPipeline() = %v", err)
			}

			cl := env.openList(t)
			cl.SetGraphicsState(GraphicsState{Pipeline: pipeline, Framebuffer: fb})
			if got := env.dev.Tracker().ImageState(depth, 0, 0); got != tt.want {
				t.Errorf("depth state = %s, want %s", got, tt.want)
			}
			ds := encoderOf(cl).renderPasses[0].DepthStencilAttachment
			if ds == nil || ds.DepthReadOnly != tt.readOnly || ds.StencilLoadOp != gputypes.LoadOpClear {
				t.Errorf("depth attachment = %+v", ds)
			}
		})
	}
}
