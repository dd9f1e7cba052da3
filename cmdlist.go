// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// ListState is the lifecycle state of a CommandList.
type ListState uint8

// Command list states.
const (
	ListAllocated ListState = iota
	ListOpen
	ListClosed
	ListSubmitted
	ListCompleted
)

func (s ListState) String() string {
	switch s {
	case ListAllocated:
		return "allocated"
	case ListOpen:
		return "open"
	case ListClosed:
		return "closed"
	case ListSubmitted:
		return "submitted"
	case ListCompleted:
		return "completed"
	}
	return fmt.Sprintf("ListState(%d)", uint8(s))
}

// SubmitArgs declares the ordering of one submission.
type SubmitArgs struct {
	// Dependencies must finish on the GPU before this list starts.
	Dependencies []*CommandList

	// OnFinishMakeSwapchainPresentable marks the current backbuffer of
	// the pool's swapchain presentable once this list completes.
	OnFinishMakeSwapchainPresentable bool
}

// CommandList records GPU work for one logical queue. A list is recorded
// by one goroutine at a time.
type CommandList struct {
	pool    *CommandListPool
	label   string
	encoder hal.CommandEncoder
	cmdBuf  hal.CommandBuffer
	state   ListState

	barriers       barrierBatch
	barrierFlushes int
	lastValue      uint64

	texScratch []hal.TextureBarrier
	bufScratch []hal.BufferBarrier

	pass passState
}

// Label returns the debug name.
func (cl *CommandList) Label() string { return cl.label }

// Queue returns the logical queue the list is recorded for.
func (cl *CommandList) Queue() QueueType { return cl.pool.queue }

// BarrierFlushes returns how many native barrier insertions the list has
// recorded since it was last opened.
func (cl *CommandList) BarrierFlushes() int { return cl.barrierFlushes }

// LastSignalledValue returns the fence value signalled by the latest
// submission, or 0 if the list was never submitted.
func (cl *CommandList) LastSignalledValue() uint64 { return cl.lastValue }

// State returns the lifecycle state. A submitted list reports
// ListCompleted once its fence value is reached.
func (cl *CommandList) State() ListState {
	if cl.state == ListSubmitted && cl.pool.fence.Reached(cl.lastValue) {
		cl.state = ListCompleted
	}
	return cl.state
}

func (cl *CommandList) tracker() *StateTracker {
	return cl.pool.device.tracker
}

func (cl *CommandList) assertOpen(op string) {
	assertf(cl.state == ListOpen, "%s on command list %q in state %s", op, cl.label, cl.state)
}

// Open begins recording. Only an allocated list may be opened.
func (cl *CommandList) Open() error {
	assertf(cl.state == ListAllocated, "Open on command list %q in state %s", cl.label, cl.state)
	if err := cl.encoder.BeginEncoding(cl.label); err != nil {
		return fmt.Errorf("rhi: open command list %q: %w", cl.label, err)
	}
	cl.state = ListOpen
	cl.barrierFlushes = 0
	return nil
}

// Close ends recording. Open passes are ended and pending barriers are
// committed first.
func (cl *CommandList) Close() error {
	cl.assertOpen("Close")
	cl.endPasses()
	cl.tracker().CommitBarriers(cl)
	buf, err := cl.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("rhi: close command list %q: %w", cl.label, err)
	}
	cl.cmdBuf = buf
	cl.state = ListClosed
	return nil
}

// Submit executes the closed list after its dependencies, then signals a
// fresh fence value recorded as the list's completion marker.
func (cl *CommandList) Submit(args SubmitArgs) error {
	assertf(cl.state == ListClosed, "Submit on command list %q in state %s", cl.label, cl.state)
	sc := cl.pool.swapchain
	assertf(!args.OnFinishMakeSwapchainPresentable || sc != nil,
		"command list %q: OnFinishMakeSwapchainPresentable needs a swapchain pool", cl.label)
	for _, dep := range args.Dependencies {
		assertf(dep.state >= ListSubmitted, "command list %q depends on unsubmitted list %q", cl.label, dep.label)
		dep.pool.fence.gpuWait(dep.lastValue)
	}

	q := cl.pool.device.queue
	if _, err := q.submit([]hal.CommandBuffer{cl.cmdBuf}); err != nil {
		return fmt.Errorf("rhi: submit command list %q: %w", cl.label, err)
	}
	cl.lastValue = cl.pool.fence.Signal()
	cl.state = ListSubmitted

	if args.OnFinishMakeSwapchainPresentable {
		sc.markPresentable(cl.lastValue)
	}
	return nil
}

// WaitTillComplete blocks until the GPU finished the latest submission.
func (cl *CommandList) WaitTillComplete() error {
	if cl.lastValue == 0 {
		return nil
	}
	if err := cl.pool.fence.Wait(cl.lastValue); err != nil {
		return fmt.Errorf("rhi: wait for command list %q: %w", cl.label, err)
	}
	cl.State()
	return nil
}

// RequireState schedules a transition of sub of img to state.
func (cl *CommandList) RequireState(img *Image, sub Subresources, state ResourceState) {
	cl.assertOpen("RequireState")
	cl.tracker().RequireImageState(cl, img, sub, state)
}

// RequireBufferState schedules a transition of buf to state.
func (cl *CommandList) RequireBufferState(buf *Buffer, state ResourceState) {
	cl.assertOpen("RequireBufferState")
	cl.tracker().RequireBufferState(cl, buf, state)
}

// CommitBarriers records every pending barrier. Barriers cannot be
// recorded inside a pass, so an open pass is ended first.
func (cl *CommandList) CommitBarriers() {
	cl.assertOpen("CommitBarriers")
	if cl.barriers.empty() {
		return
	}
	cl.endPasses()
	cl.tracker().CommitBarriers(cl)
}

// insertNativeBarriers forwards the pending batch to the encoder as one
// flush. hal splits texture and buffer barriers into two calls, so a mixed
// batch issues them back to back with nothing recorded in between.
func (cl *CommandList) insertNativeBarriers() {
	assertf(!cl.pass.active(), "barrier flush inside a pass on command list %q", cl.label)
	cl.texScratch = cl.barriers.nativeTextureBarriers(cl.texScratch[:0])
	cl.bufScratch = cl.barriers.nativeBufferBarriers(cl.bufScratch[:0])
	if len(cl.texScratch) > 0 {
		cl.encoder.TransitionTextures(cl.texScratch)
	}
	if len(cl.bufScratch) > 0 {
		cl.encoder.TransitionBuffers(cl.bufScratch)
	}
	clear(cl.texScratch)
	clear(cl.bufScratch)
	cl.barrierFlushes++
	Logger().Debug("rhi: barrier flush",
		"list", cl.label,
		"images", len(cl.barriers.images),
		"buffers", len(cl.barriers.buffers))
}

// reset returns the list to ListAllocated, discarding any recording.
func (cl *CommandList) reset() {
	if cl.cmdBuf != nil {
		cl.encoder.ResetAll([]hal.CommandBuffer{cl.cmdBuf})
		cl.cmdBuf = nil
	}
	cl.barriers.reset()
	cl.state = ListAllocated
}

func (cl *CommandList) destroy() {
	dev := cl.pool.device
	if cl.cmdBuf != nil {
		dev.native.FreeCommandBuffer(cl.cmdBuf)
		cl.cmdBuf = nil
	}
	cl.encoder.Destroy()
}
