// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"
	"slices"

	"github.com/gogpu/wgpu/hal"
)

// CommandListPool allocates command lists for one logical queue. Lists of
// one pool share its fence; pools created by a swapchain use the
// swapchain's frame fence.
//
// A pool is used by one goroutine at a time.
type CommandListPool struct {
	device    *Device
	swapchain *Swapchain
	fence     *Fence
	queue     QueueType
	label     string
	lists     []*CommandList
	counter   int
}

// Queue returns the logical queue of the pool.
func (p *CommandListPool) Queue() QueueType { return p.queue }

// Fence returns the fence lists of the pool signal.
func (p *CommandListPool) Fence() *Fence { return p.fence }

// Lists returns the live lists of the pool.
func (p *CommandListPool) Lists() []*CommandList { return p.lists }

// AllocateList creates a list in ListAllocated.
func (p *CommandListPool) AllocateList() (*CommandList, error) {
	p.counter++
	label := fmt.Sprintf("%s_%s_%d", p.label, p.queue, p.counter)
	enc, err := p.device.native.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("rhi: allocate command list %q: %w", label, err)
	}
	cl := &CommandList{pool: p, label: label, encoder: enc}
	p.lists = append(p.lists, cl)
	return cl, nil
}

// AllocateLists creates n lists. On failure the lists created so far are
// freed.
func (p *CommandListPool) AllocateLists(n int) ([]*CommandList, error) {
	out := make([]*CommandList, 0, n)
	for range n {
		cl, err := p.AllocateList()
		if err != nil {
			p.FreeLists(out)
			return nil, err
		}
		out = append(out, cl)
	}
	return out, nil
}

// FreeList removes cl from the pool. Its native handles are released
// when the device's deferred-destruction queue is next drained.
func (p *CommandListPool) FreeList(cl *CommandList) {
	assertf(cl.pool == p, "command list %q freed to a foreign pool", cl.label)
	i := slices.Index(p.lists, cl)
	if i < 0 {
		return
	}
	p.lists = slices.Delete(p.lists, i, i+1)
	p.device.Defer(cl.destroy)
}

// FreeLists frees every list in lists.
func (p *CommandListPool) FreeLists(lists []*CommandList) {
	for _, cl := range lists {
		p.FreeList(cl)
	}
}

// Reset returns every list of the pool to ListAllocated. The caller must
// have waited for the GPU to finish all of them; typically this follows
// the frame-in-flight wait of AcquireNextImage.
func (p *CommandListPool) Reset() {
	for _, cl := range p.lists {
		assertf(cl.state != ListOpen, "pool reset while command list %q is open", cl.label)
	}
	for _, cl := range p.lists {
		cl.reset()
	}
}

// Release frees every list of the pool.
func (p *CommandListPool) Release() {
	p.FreeLists(slices.Clone(p.lists))
}
