// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/gogpu/gputypes"
)

// ResourceState is a set of access modes a resource may currently be used
// with by the GPU. Read-only bits may be combined; a write bit forces an
// exclusive state.
type ResourceState uint32

// Resource states.
const (
	// StateUnknown is the state of freshly created or discarded contents.
	StateUnknown ResourceState = 0

	StateCommon ResourceState = 1 << iota
	StateConstantBuffer
	StateVertexBuffer
	StateIndexBuffer
	StateIndirectArgument
	StateShaderResource
	StateUnorderedAccess
	StateRenderTarget
	StateDepthWrite
	StateDepthRead
	StateCopySrc
	StateCopyDst
	StateResolveSrc
	StateResolveDst
	StatePresent
)

// StateGenericRead combines every read-only state a buffer may be in at once.
const StateGenericRead = StateConstantBuffer | StateVertexBuffer | StateIndexBuffer |
	StateIndirectArgument | StateShaderResource | StateCopySrc

// writeStates are the states that require exclusive access.
const writeStates = StateUnorderedAccess | StateRenderTarget | StateDepthWrite |
	StateCopyDst | StateResolveDst

var stateNames = [...]string{
	"Common",
	"ConstantBuffer",
	"VertexBuffer",
	"IndexBuffer",
	"IndirectArgument",
	"ShaderResource",
	"UnorderedAccess",
	"RenderTarget",
	"DepthWrite",
	"DepthRead",
	"CopySrc",
	"CopyDst",
	"ResolveSrc",
	"ResolveDst",
	"Present",
}

// String returns the pipe-separated names of the set bits.
func (s ResourceState) String() string {
	if s == StateUnknown {
		return "Unknown"
	}
	var sb strings.Builder
	for v := uint32(s); v != 0; v &= v - 1 {
		i := bits.TrailingZeros32(v) - 1
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		if i >= 0 && i < len(stateNames) {
			sb.WriteString(stateNames[i])
		} else {
			fmt.Fprintf(&sb, "0x%x", uint32(1)<<(i+1))
		}
	}
	return sb.String()
}

// Has reports whether all bits of other are set in s.
func (s ResourceState) Has(other ResourceState) bool {
	return s&other == other
}

// IsWrite reports whether s contains a state that writes the resource.
func (s ResourceState) IsWrite() bool {
	return s&writeStates != 0
}

// ValidateTransition reports whether before → after is a defined
// transition. A resource may not be moved into StateUnknown, and a write
// state may only be combined with nothing else, except DepthWrite which
// implies DepthRead.
func ValidateTransition(before, after ResourceState) error {
	if after == StateUnknown {
		return fmt.Errorf("%w: %s -> Unknown", ErrInvalidTransition, before)
	}
	if !after.IsWrite() {
		return nil
	}
	rest := after &^ writeStates
	if after&StateDepthWrite != 0 {
		rest &^= StateDepthRead
	}
	if bits.OnesCount32(uint32(after&writeStates)) > 1 || rest != 0 {
		return fmt.Errorf("%w: %s -> %s combines a write state", ErrInvalidTransition, before, after)
	}
	return nil
}

// textureUsage translates a state to the hal texture usage used for
// native barriers.
func (s ResourceState) textureUsage() gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if s&(StateCopySrc|StateResolveSrc) != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if s&(StateCopyDst|StateResolveDst) != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	if s&StateShaderResource != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if s&StateUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if s&(StateRenderTarget|StateDepthWrite|StateDepthRead) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	// Present and Common map to no usage: hal owns the presentation layout.
	return u
}

// bufferUsage translates a state to the hal buffer usage used for native
// barriers.
func (s ResourceState) bufferUsage() gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if s&StateCopySrc != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	if s&StateCopyDst != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if s&StateVertexBuffer != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if s&StateIndexBuffer != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if s&StateConstantBuffer != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if s&(StateShaderResource|StateUnorderedAccess) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if s&StateIndirectArgument != 0 {
		u |= gputypes.BufferUsageIndirect
	}
	return u
}
