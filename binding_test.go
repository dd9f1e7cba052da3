// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func mixedLayout(t *testing.T, env *testEnv) *BindingLayout {
	t.Helper()
	l, err := env.dev.CreateBindingLayout(BindingLayoutDesc{
		Label: "mixed",
		Items: []BindingLayoutItem{
			{Slot: 0, Type: BindingConstantBuffer, Visibility: gputypes.ShaderStageVertex},
			{Slot: 1, Type: BindingTexture, Count: 2, Visibility: gputypes.ShaderStageFragment},
			{Slot: 3, Type: BindingSampler, Visibility: gputypes.ShaderStageFragment},
			{Slot: 4, Type: BindingRWTexture, StorageFormat: gputypes.TextureFormatRGBA8Unorm, Visibility: gputypes.ShaderStageCompute},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindingLayout() = %v", err)
	}
	return l
}

func TestBindingLayoutSlots(t *testing.T) {
	env := newTestEnv(t)
	l := mixedLayout(t, env)
	if l.ResourceSlots() != 4 || l.SamplerSlots() != 1 {
		t.Errorf("slots = %d resources, %d samplers; want 4 and 1", l.ResourceSlots(), l.SamplerSlots())
	}
	entries := bindingLayoutEntries(l.desc.Items)
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	if entries[2].Binding != 2 || entries[2].Texture == nil {
		t.Errorf("entry 2 = %+v, want the second texture slot", entries[2])
	}
	if entries[4].StorageTexture == nil || entries[4].StorageTexture.Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("entry 4 = %+v, want a storage texture", entries[4])
	}
}

func TestBindingLayoutStorageFormatRequired(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.dev.CreateBindingLayout(BindingLayoutDesc{
		Label: "rw",
		Items: []BindingLayoutItem{{Type: BindingRWTexture}},
	})
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("CreateBindingLayout() = %v, want ErrInvalidDescriptor", err)
	}
}

func TestBindingSetPoolBlocks(t *testing.T) {
	env := newTestEnv(t)
	l := mixedLayout(t, env)
	const sets = 3
	pool, err := env.dev.CreateBindingSetPool(BindingSetPoolDesc{Label: "pool", Layout: l, SetAmount: sets})
	if err != nil {
		t.Fatalf("CreateBindingSetPool() = %v", err)
	}
	if env.dev.ResourceHeap().Used() != sets*4 || env.dev.SamplerHeap().Used() != sets {
		t.Errorf("heap usage = %d/%d, want %d/%d",
			env.dev.ResourceHeap().Used(), env.dev.SamplerHeap().Used(), sets*4, sets)
	}

	var created []*BindingSet
	for range sets {
		created = append(created, pool.CreateBindingSet("set"))
	}
	for i, a := range created {
		if a.ResourceBlock().Count != 4 || a.SamplerBlock().Count != 1 {
			t.Errorf("set %d blocks = %s/%s", i, a.ResourceBlock(), a.SamplerBlock())
		}
		for _, b := range created[i+1:] {
			if a.ResourceBlock().Overlaps(b.ResourceBlock()) || a.SamplerBlock().Overlaps(b.SamplerBlock()) {
				t.Errorf("sets overlap: %s and %s", a.ResourceBlock(), b.ResourceBlock())
			}
		}
	}
	if pool.Allocated() != sets {
		t.Errorf("Allocated() = %d, want %d", pool.Allocated(), sets)
	}

	mustPanic(t, func() { pool.CreateBindingSet("one too many") })
}

func TestBindingSetPoolRelease(t *testing.T) {
	env := newTestEnv(t)
	l := mixedLayout(t, env)
	pool, err := env.dev.CreateBindingSetPool(BindingSetPoolDesc{Label: "pool", Layout: l, SetAmount: 2})
	if err != nil {
		t.Fatalf("CreateBindingSetPool() = %v", err)
	}
	pool.CreateBindingSet("a")

	pool.Release()
	pool.Release()
	if env.dev.ResourceHeap().Used() == 0 {
		t.Fatal("heap slots returned before the deferred queue drained")
	}
	env.dev.ReleaseDeferred()
	if env.dev.ResourceHeap().Used() != 0 || env.dev.SamplerHeap().Used() != 0 {
		t.Errorf("heap usage after release = %d/%d",
			env.dev.ResourceHeap().Used(), env.dev.SamplerHeap().Used())
	}
	mustPanic(t, func() { pool.GetNextSetIndices() })
}

func TestBindingSetPoolHeapExhausted(t *testing.T) {
	env := newTestEnv(t, WithDescriptorHeapSizes(8, 8))
	l := mixedLayout(t, env)
	_, err := env.dev.CreateBindingSetPool(BindingSetPoolDesc{Label: "big", Layout: l, SetAmount: 3})
	if !errors.Is(err, ErrHeapExhausted) {
		t.Fatalf("CreateBindingSetPool() = %v, want ErrHeapExhausted", err)
	}
	if env.dev.ResourceHeap().Used() != 0 || env.dev.SamplerHeap().Used() != 0 {
		t.Error("failed pool leaked heap slots")
	}
}

func TestBindingSetUpdate(t *testing.T) {
	env := newTestEnv(t)
	l := mixedLayout(t, env)
	pool, err := env.dev.CreateBindingSetPool(BindingSetPoolDesc{Label: "pool", Layout: l, SetAmount: 1})
	if err != nil {
		t.Fatalf("CreateBindingSetPool() = %v", err)
	}
	set := pool.CreateBindingSet("set")

	ubo := env.buffer(t, BufferSpec{Label: "ubo", InitialState: StateConstantBuffer})
	tex := env.image(t, ImageSpec{Label: "tex", MipLevels: 4, InitialState: StateShaderResource})
	rw := env.image(t, ImageSpec{Label: "rw", InitialState: StateUnorderedAccess})
	smp, err := env.dev.CreateSampler(SamplerSpec{Label: "linear"})
	if err != nil {
		t.Fatalf("CreateSampler() = %v", err)
	}

	items := []BindingItem{
		{Slot: 0, Buffer: ubo},
		{Slot: 1, Image: tex},
		{Slot: 2, Image: tex, Subresources: Subresources{BaseMip: 2, NumMips: ^uint32(0), NumArraySlices: 1}},
		{Slot: 3, Sampler: smp},
		{Slot: 4, Image: rw},
	}
	if err := set.Update(items); err != nil {
		t.Fatalf("Update() = %v", err)
	}

	want := []BoundResource{
		{Buffer: ubo, State: StateConstantBuffer},
		{Image: tex, Subresources: SingleSubresource(0, 0), State: StateShaderResource},
		{Image: tex, Subresources: Subresources{BaseMip: 2, NumMips: 2, NumArraySlices: 1}, State: StateShaderResource},
		{Image: rw, Subresources: SingleSubresource(0, 0), State: StateUnorderedAccess},
	}
	got := set.RequiredStates()
	if len(got) != len(want) {
		t.Fatalf("RequiredStates() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RequiredStates()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	first := set.Native()
	if err := set.Update(items); err != nil {
		t.Fatalf("second Update() = %v", err)
	}
	if set.Native() == nil || env.dev.PendingDeferred() != 1 {
		t.Errorf("rebuild did not defer the old group (pending %d, first %v)", env.dev.PendingDeferred(), first)
	}

	if err := set.Update([]BindingItem{{Slot: 9, Buffer: ubo}}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("Update() with unknown slot = %v, want ErrInvalidDescriptor", err)
	}
}

func TestBindingSetBeforeUpdate(t *testing.T) {
	env := newTestEnv(t)
	l := mixedLayout(t, env)
	pipeline, err := env.dev.CreateComputePipeline(ComputePipelineDesc{
		Label:          "c",
		Shader:         newShader(t, env, gputypes.ShaderStageCompute),
		BindingLayouts: []*BindingLayout{l},
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline() = %v", err)
	}
	pool, err := env.dev.CreateBindingSetPool(BindingSetPoolDesc{Label: "pool", Layout: l, SetAmount: 1})
	if err != nil {
		t.Fatalf("CreateBindingSetPool() = %v", err)
	}
	set := pool.CreateBindingSet("empty")
	cl := env.openList(t)
	mustPanic(t, func() { cl.SetComputeState(ComputeState{Pipeline: pipeline, Bindings: []*BindingSet{set}}) })
}

func TestBindingTypeStates(t *testing.T) {
	tests := []struct {
		typ  BindingType
		want ResourceState
	}{
		{BindingConstantBuffer, StateConstantBuffer},
		{BindingStructuredBuffer, StateShaderResource},
		{BindingRWStructuredBuffer, StateUnorderedAccess},
		{BindingTexture, StateShaderResource},
		{BindingRWTexture, StateUnorderedAccess},
		{BindingSampler, StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.requiredState(); got != tt.want {
				t.Errorf("requiredState() = %s, want %s", got, tt.want)
			}
		})
	}
}
