// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

// uavTracking holds the per-resource flags that suppress duplicate
// unordered-access hazard barriers inside one accumulation window.
type uavTracking struct {
	firstUavBarrierPlaced bool
	enableUavBarriers     bool
}

// uavNecessary reports whether requiring desired must emit a hazard
// barrier even when the state does not change.
func (u *uavTracking) uavNecessary(desired ResourceState) bool {
	return desired.Has(StateUnorderedAccess) && (u.enableUavBarriers || !u.firstUavBarrierPlaced)
}

// imageTracking is the tracked state of one image: monolithic while
// subresources is nil, expanded otherwise.
type imageTracking struct {
	uavTracking
	state        ResourceState
	subresources []ResourceState
}

type bufferTracking struct {
	uavTracking
	state ResourceState
}

// StateTracker maps every live image and buffer of a device to the access
// state the GPU will observe at the end of the recorded work, and turns
// state requirements into pending barriers on a command list.
//
// StateTracker is not safe for concurrent use. Callers recording lists
// on several goroutines must not touch the same resource concurrently.
type StateTracker struct {
	images  map[*Image]*imageTracking
	buffers map[*Buffer]*bufferTracking
}

func newStateTracker() *StateTracker {
	return &StateTracker{
		images:  make(map[*Image]*imageTracking),
		buffers: make(map[*Buffer]*bufferTracking),
	}
}

// StartTrackingImage registers img in state. Only the entire image may be
// registered; sub must resolve to every subresource.
func (t *StateTracker) StartTrackingImage(img *Image, sub Subresources, state ResourceState) {
	_, dup := t.images[img]
	assertf(!dup, "image %q is already tracked", img.Label())
	assertf(sub.Resolve(&img.spec).IsEntireImage(&img.spec),
		"image %q must be tracked over its entire range, got %s", img.Label(), sub)
	t.images[img] = &imageTracking{
		uavTracking: uavTracking{enableUavBarriers: true},
		state:       state,
	}
}

// StartTrackingBuffer registers buf in state.
func (t *StateTracker) StartTrackingBuffer(buf *Buffer, state ResourceState) {
	_, dup := t.buffers[buf]
	assertf(!dup, "buffer %q is already tracked", buf.Label())
	t.buffers[buf] = &bufferTracking{
		uavTracking: uavTracking{enableUavBarriers: true},
		state:       state,
	}
}

// StopTrackingImage forgets img.
func (t *StateTracker) StopTrackingImage(img *Image) {
	delete(t.images, img)
}

// StopTrackingBuffer forgets buf.
func (t *StateTracker) StopTrackingBuffer(buf *Buffer) {
	delete(t.buffers, buf)
}

// IsImageTracked reports whether img is registered.
func (t *StateTracker) IsImageTracked(img *Image) bool {
	_, ok := t.images[img]
	return ok
}

// IsBufferTracked reports whether buf is registered.
func (t *StateTracker) IsBufferTracked(buf *Buffer) bool {
	_, ok := t.buffers[buf]
	return ok
}

func (t *StateTracker) image(img *Image) *imageTracking {
	st := t.images[img]
	assertf(st != nil, "image %q is not tracked", img.Label())
	return st
}

func (t *StateTracker) buffer(buf *Buffer) *bufferTracking {
	st := t.buffers[buf]
	assertf(st != nil, "buffer %q is not tracked", buf.Label())
	return st
}

// ImageState returns the tracked state of one subresource.
func (t *StateTracker) ImageState(img *Image, mip, slice uint32) ResourceState {
	st := t.image(img)
	assertf(mip < img.spec.mipLevels() && slice < img.spec.arraySlices(),
		"image %q has no subresource mip %d slice %d", img.Label(), mip, slice)
	if st.subresources == nil {
		return st.state
	}
	return st.subresources[subresourceIndex(mip, slice, img.spec.mipLevels())]
}

// IsImageExpanded reports whether img is tracked per subresource.
func (t *StateTracker) IsImageExpanded(img *Image) bool {
	return t.image(img).subresources != nil
}

// BufferState returns the tracked state of buf.
func (t *StateTracker) BufferState(buf *Buffer) ResourceState {
	return t.buffer(buf).state
}

// SetEnableImageUavBarriers controls whether every UnorderedAccess
// requirement on img emits a hazard barrier. Disabling lets consecutive
// dispatches that write disjoint data run without one. Each call opens a
// new accumulation window.
func (t *StateTracker) SetEnableImageUavBarriers(img *Image, enable bool) {
	st := t.image(img)
	st.enableUavBarriers = enable
	st.firstUavBarrierPlaced = false
}

// SetEnableBufferUavBarriers is the buffer form of SetEnableImageUavBarriers.
func (t *StateTracker) SetEnableBufferUavBarriers(buf *Buffer, enable bool) {
	st := t.buffer(buf)
	st.enableUavBarriers = enable
	st.firstUavBarrierPlaced = false
}

func assertTransition(label string, before, after ResourceState) {
	if !assertionsEnabled {
		return
	}
	err := ValidateTransition(before, after)
	assertf(err == nil, "%q: %v", label, err)
}

// RequireImageState schedules the barriers that bring sub of img into
// desired on cl. Nothing is recorded natively until CommitBarriers.
func (t *StateTracker) RequireImageState(cl *CommandList, img *Image, sub Subresources, desired ResourceState) {
	st := t.image(img)
	assertTransition(img.Label(), st.state, desired)

	r := sub.Resolve(&img.spec)
	if r.Empty() {
		return
	}
	batch := &cl.barriers

	if st.subresources == nil && r.IsEntireImage(&img.spec) {
		transition := st.state != desired
		uav := st.uavNecessary(desired)
		if transition || uav {
			batch.images = append(batch.images, ImageBarrier{
				Image:       img,
				Before:      st.state,
				After:       desired,
				EntireImage: true,
			})
		}
		if uav && !transition {
			st.firstUavBarrierPlaced = true
		}
		st.state = desired
		return
	}

	mips := img.spec.mipLevels()
	if st.subresources == nil {
		st.subresources = make([]ResourceState, img.spec.subresourceCount())
		for i := range st.subresources {
			st.subresources[i] = st.state
		}
	}

	anyUavBarrier := false
	for slice := r.BaseArraySlice; slice < r.BaseArraySlice+r.NumArraySlices; slice++ {
		for mip := r.BaseMip; mip < r.BaseMip+r.NumMips; mip++ {
			idx := subresourceIndex(mip, slice, mips)
			prior := st.subresources[idx]
			transition := prior != desired
			uav := !anyUavBarrier && st.uavNecessary(desired)
			if transition || uav {
				batch.images = append(batch.images, ImageBarrier{
					Image:      img,
					Before:     prior,
					After:      desired,
					Mip:        mip,
					ArraySlice: slice,
				})
			}
			if uav && !transition {
				anyUavBarrier = true
				st.firstUavBarrierPlaced = true
			}
			st.subresources[idx] = desired
		}
	}
}

// RequireBufferState schedules the barrier that brings buf into desired
// on cl. A second requirement before the next commit is merged into the
// pending barrier instead of appending another one.
func (t *StateTracker) RequireBufferState(cl *CommandList, buf *Buffer, desired ResourceState) {
	st := t.buffer(buf)
	assertTransition(buf.Label(), st.state, desired)
	batch := &cl.barriers

	transition := st.state != desired
	if pending := batch.pendingBuffer(buf); pending != nil {
		// The pending barrier already orders this access; merge into it.
		if !transition {
			return
		}
		merged := pending.After | desired
		if merged.IsWrite() && merged != desired {
			// Write states do not combine; the latest requirement wins.
			merged = desired
		}
		st.state = merged
		if merged != pending.Before {
			pending.After = merged
			return
		}
		// The merge undid the pending transition.
		batch.dropBuffer(buf)
		if st.uavNecessary(merged) {
			batch.buffers = append(batch.buffers, BufferBarrier{Buffer: buf, Before: merged, After: merged})
			st.firstUavBarrierPlaced = true
		}
		return
	}

	uav := st.uavNecessary(desired)
	if transition || uav {
		batch.buffers = append(batch.buffers, BufferBarrier{
			Buffer: buf,
			Before: st.state,
			After:  desired,
		})
	}
	if uav && !transition {
		st.firstUavBarrierPlaced = true
	}
	st.state = desired
}

// CommitBarriers records every pending barrier of cl in exactly one
// native barrier insertion and clears the batch. It does nothing when no
// barrier is pending.
func (t *StateTracker) CommitBarriers(cl *CommandList) {
	if cl.barriers.empty() {
		return
	}
	cl.insertNativeBarriers()
	cl.barriers.reset()
}

// PendingImageBarriers returns the uncommitted image barriers of cl.
// The slice is only valid until the next tracker call.
func (t *StateTracker) PendingImageBarriers(cl *CommandList) []ImageBarrier {
	return cl.barriers.images
}

// PendingBufferBarriers returns the uncommitted buffer barriers of cl.
// The slice is only valid until the next tracker call.
func (t *StateTracker) PendingBufferBarriers(cl *CommandList) []BufferBarrier {
	return cl.barriers.buffers
}

// ResolvePermanentImageState schedules the return of sub of img to its
// declared InitialState when the image was created with
// KeepResourceState. It is a no-op otherwise.
func (t *StateTracker) ResolvePermanentImageState(cl *CommandList, img *Image, sub Subresources) {
	if !img.spec.KeepResourceState {
		return
	}
	st := t.image(img)
	permanent := img.spec.InitialState
	r := sub.Resolve(&img.spec)
	if permanent == StateUnknown || r.Empty() {
		return
	}

	differs := false
	if st.subresources == nil {
		differs = st.state != permanent
	} else {
		mips := img.spec.mipLevels()
		for slice := r.BaseArraySlice; slice < r.BaseArraySlice+r.NumArraySlices && !differs; slice++ {
			for mip := r.BaseMip; mip < r.BaseMip+r.NumMips; mip++ {
				if st.subresources[subresourceIndex(mip, slice, mips)] != permanent {
					differs = true
					break
				}
			}
		}
	}
	if differs {
		t.RequireImageState(cl, img, r, permanent)
	}
}

// ResolvePermanentBufferState is the buffer form of
// ResolvePermanentImageState.
func (t *StateTracker) ResolvePermanentBufferState(cl *CommandList, buf *Buffer) {
	if !buf.spec.KeepResourceState || buf.spec.InitialState == StateUnknown {
		return
	}
	if t.buffer(buf).state != buf.spec.InitialState {
		t.RequireBufferState(cl, buf, buf.spec.InitialState)
	}
}
