// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ImageBarrier is a pending image state transition. EntireImage barriers
// cover every subresource; otherwise Mip and ArraySlice name one.
type ImageBarrier struct {
	Image       *Image
	Before      ResourceState
	After       ResourceState
	EntireImage bool
	Mip         uint32
	ArraySlice  uint32
}

// BufferBarrier is a pending buffer state transition.
type BufferBarrier struct {
	Buffer *Buffer
	Before ResourceState
	After  ResourceState
}

// barrierBatch accumulates the barriers of one command list between
// commits.
type barrierBatch struct {
	images  []ImageBarrier
	buffers []BufferBarrier
}

func (b *barrierBatch) empty() bool {
	return len(b.images) == 0 && len(b.buffers) == 0
}

func (b *barrierBatch) reset() {
	clear(b.images)
	clear(b.buffers)
	b.images = b.images[:0]
	b.buffers = b.buffers[:0]
}

// pendingBuffer returns the uncommitted barrier for buf, or nil.
func (b *barrierBatch) pendingBuffer(buf *Buffer) *BufferBarrier {
	for i := range b.buffers {
		if b.buffers[i].Buffer == buf {
			return &b.buffers[i]
		}
	}
	return nil
}

// dropBuffer removes the pending barrier of buf.
func (b *barrierBatch) dropBuffer(buf *Buffer) {
	b.buffers = slices.DeleteFunc(b.buffers, func(bb BufferBarrier) bool { return bb.Buffer == buf })
}

// nativeTextureBarriers translates the image barriers of the batch.
// Transitions into StatePresent are left to the native present call.
func (b *barrierBatch) nativeTextureBarriers(dst []hal.TextureBarrier) []hal.TextureBarrier {
	for i := range b.images {
		ib := &b.images[i]
		if ib.After == StatePresent || ib.Image.texture == nil {
			continue
		}
		r := hal.TextureRange{Aspect: gputypes.TextureAspectAll}
		if !ib.EntireImage {
			r.BaseMipLevel = ib.Mip
			r.MipLevelCount = 1
			r.BaseArrayLayer = ib.ArraySlice
			r.ArrayLayerCount = 1
		}
		dst = append(dst, hal.TextureBarrier{
			Texture: ib.Image.texture,
			Range:   r,
			Usage: hal.TextureUsageTransition{
				OldUsage: ib.Before.textureUsage(),
				NewUsage: ib.After.textureUsage(),
			},
		})
	}
	return dst
}

// nativeBufferBarriers translates the buffer barriers of the batch.
func (b *barrierBatch) nativeBufferBarriers(dst []hal.BufferBarrier) []hal.BufferBarrier {
	for i := range b.buffers {
		bb := &b.buffers[i]
		dst = append(dst, hal.BufferBarrier{
			Buffer: bb.Buffer.buffer,
			Usage: hal.BufferUsageTransition{
				OldUsage: bb.Before.bufferUsage(),
				NewUsage: bb.After.bufferUsage(),
			},
		})
	}
	return dst
}
