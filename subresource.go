// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import "fmt"

// Subresources selects a range of mip levels and array slices of an image.
// Counts larger than the image are clamped by Resolve, so ^uint32(0) means
// "all remaining".
type Subresources struct {
	BaseMip        uint32
	NumMips        uint32
	BaseArraySlice uint32
	NumArraySlices uint32
}

// AllSubresources covers every mip level and array slice of any image.
var AllSubresources = Subresources{NumMips: ^uint32(0), NumArraySlices: ^uint32(0)}

// SingleSubresource selects one (mip, slice) pair.
func SingleSubresource(mip, slice uint32) Subresources {
	return Subresources{BaseMip: mip, NumMips: 1, BaseArraySlice: slice, NumArraySlices: 1}
}

// Resolve clamps s to the mip and array extents declared by spec.
// A base outside the image yields an empty range.
func (s Subresources) Resolve(spec *ImageSpec) Subresources {
	mips, slices := spec.mipLevels(), spec.arraySlices()
	r := Subresources{
		BaseMip:        min(s.BaseMip, mips),
		BaseArraySlice: min(s.BaseArraySlice, slices),
	}
	r.NumMips = min(s.NumMips, mips-r.BaseMip)
	r.NumArraySlices = min(s.NumArraySlices, slices-r.BaseArraySlice)
	return r
}

// IsEntireImage reports whether the resolved range s covers every
// subresource of the image described by spec.
func (s Subresources) IsEntireImage(spec *ImageSpec) bool {
	return s.BaseMip == 0 && s.BaseArraySlice == 0 &&
		s.NumMips == spec.mipLevels() && s.NumArraySlices == spec.arraySlices()
}

// Empty reports whether the range selects nothing.
func (s Subresources) Empty() bool {
	return s.NumMips == 0 || s.NumArraySlices == 0
}

// Contains reports whether (mip, slice) lies inside the range.
func (s Subresources) Contains(mip, slice uint32) bool {
	return mip >= s.BaseMip && mip-s.BaseMip < s.NumMips &&
		slice >= s.BaseArraySlice && slice-s.BaseArraySlice < s.NumArraySlices
}

func (s Subresources) String() string {
	return fmt.Sprintf("mips[%d+%d] slices[%d+%d]", s.BaseMip, s.NumMips, s.BaseArraySlice, s.NumArraySlices)
}

// subresourceIndex returns the slot of (mip, slice) in the expanded form.
func subresourceIndex(mip, slice, mipLevels uint32) int {
	return int(mip + slice*mipLevels)
}
