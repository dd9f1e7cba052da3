// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !rhi_release

package rhi

const assertionsEnabled = true
