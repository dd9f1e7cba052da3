// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !rhi_vulkan && !rhi_dx12

package rhi

import (
	"github.com/gogpu/gputypes"

	// Dummy backend: records nothing and completes every submission
	// immediately.
	_ "github.com/gogpu/wgpu/hal/noop"
)

// CompiledBackend is the hal backend NewDevice opens. It is selected at
// build time with the rhi_vulkan or rhi_dx12 tags.
const CompiledBackend = gputypes.BackendEmpty
