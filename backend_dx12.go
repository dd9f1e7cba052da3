// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build rhi_dx12 && windows && !rhi_vulkan

package rhi

import (
	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/dx12"
)

// CompiledBackend is the hal backend NewDevice opens. It is selected at
// build time with the rhi_vulkan or rhi_dx12 tags.
const CompiledBackend = gputypes.BackendDX12
