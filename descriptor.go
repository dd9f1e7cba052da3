// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"
	"sort"
	"sync"
)

// Default descriptor heap capacities.
const (
	DefaultResourceHeapSize = 1 << 16
	DefaultSamplerHeapSize  = 2048
)

// DescriptorBlock is a contiguous run of descriptor heap slots.
type DescriptorBlock struct {
	Offset uint32
	Count  uint32
}

// End returns the first slot after the block.
func (b DescriptorBlock) End() uint32 { return b.Offset + b.Count }

// Overlaps reports whether b and o share a slot.
func (b DescriptorBlock) Overlaps(o DescriptorBlock) bool {
	return b.Count > 0 && o.Count > 0 && b.Offset < o.End() && o.Offset < b.End()
}

// Sub returns the i-th block of size n inside b.
func (b DescriptorBlock) Sub(i, n uint32) DescriptorBlock {
	return DescriptorBlock{Offset: b.Offset + i*n, Count: n}
}

func (b DescriptorBlock) String() string {
	return fmt.Sprintf("[%d,%d)", b.Offset, b.End())
}

// DescriptorHeap hands out contiguous blocks of slots from a fixed-size
// table. Released blocks are merged with free neighbours.
//
// DescriptorHeap is safe for concurrent use.
type DescriptorHeap struct {
	mu       sync.Mutex
	name     string
	capacity uint32
	used     uint32
	free     []DescriptorBlock // sorted by offset, never adjacent
}

// NewDescriptorHeap returns an empty heap of capacity slots.
func NewDescriptorHeap(name string, capacity uint32) *DescriptorHeap {
	h := &DescriptorHeap{name: name, capacity: capacity}
	if capacity > 0 {
		h.free = []DescriptorBlock{{Offset: 0, Count: capacity}}
	}
	return h
}

// Capacity returns the total number of slots.
func (h *DescriptorHeap) Capacity() uint32 { return h.capacity }

// Used returns the number of allocated slots.
func (h *DescriptorHeap) Used() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Allocate reserves n contiguous slots using first fit. A zero-sized
// request returns an empty block.
func (h *DescriptorHeap) Allocate(n uint32) (DescriptorBlock, error) {
	if n == 0 {
		return DescriptorBlock{}, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.free {
		f := &h.free[i]
		if f.Count < n {
			continue
		}
		b := DescriptorBlock{Offset: f.Offset, Count: n}
		f.Offset += n
		f.Count -= n
		if f.Count == 0 {
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.used += n
		return b, nil
	}
	return DescriptorBlock{}, fmt.Errorf("%w: %s heap needs %d slots, %d of %d in use",
		ErrHeapExhausted, h.name, n, h.used, h.capacity)
}

// Release returns b to the heap.
func (h *DescriptorHeap) Release(b DescriptorBlock) {
	if b.Count == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	assertf(b.End() <= h.capacity, "%s heap: release of %s outside capacity %d", h.name, b, h.capacity)

	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].Offset >= b.Offset })
	if i < len(h.free) {
		assertf(!h.free[i].Overlaps(b), "%s heap: double release of %s", h.name, b)
	}
	if i > 0 {
		assertf(!h.free[i-1].Overlaps(b), "%s heap: double release of %s", h.name, b)
	}
	h.used -= b.Count

	mergePrev := i > 0 && h.free[i-1].End() == b.Offset
	mergeNext := i < len(h.free) && b.End() == h.free[i].Offset
	switch {
	case mergePrev && mergeNext:
		h.free[i-1].Count += b.Count + h.free[i].Count
		h.free = append(h.free[:i], h.free[i+1:]...)
	case mergePrev:
		h.free[i-1].Count += b.Count
	case mergeNext:
		h.free[i].Offset = b.Offset
		h.free[i].Count += b.Count
	default:
		h.free = append(h.free, DescriptorBlock{})
		copy(h.free[i+1:], h.free[i:])
		h.free[i] = b
	}
}

// freeBlocks returns a copy of the free list, for tests.
func (h *DescriptorHeap) freeBlocks() []DescriptorBlock {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DescriptorBlock(nil), h.free...)
}
