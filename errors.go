// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrBackendUnavailable is returned when the compiled-in backend is not
	// registered with hal.
	ErrBackendUnavailable = errors.New("rhi: backend not available")

	// ErrNoAdapter is returned when the backend exposes no usable GPU.
	ErrNoAdapter = errors.New("rhi: no GPU adapter found")

	// ErrDeviceClosed is returned by operations on a closed device.
	ErrDeviceClosed = errors.New("rhi: device closed")

	// ErrTimeout is returned when a fence wait exceeds the device wait timeout.
	ErrTimeout = errors.New("rhi: timeout waiting for GPU")

	// ErrSwapchainOutdated is returned by AcquireNextImage and Present when
	// the surface no longer matches the window; call Swapchain.Resize.
	ErrSwapchainOutdated = errors.New("rhi: swapchain outdated")

	// ErrSurfaceLost is returned when the presentation surface is gone.
	ErrSurfaceLost = errors.New("rhi: surface lost")

	// ErrInvalidTransition is wrapped by ValidateTransition.
	ErrInvalidTransition = errors.New("rhi: undefined resource state transition")

	// ErrInvalidDescriptor is returned for malformed creation descriptors.
	ErrInvalidDescriptor = errors.New("rhi: invalid descriptor")

	// ErrHeapExhausted is returned when a descriptor heap cannot supply a
	// contiguous block of the requested size.
	ErrHeapExhausted = errors.New("rhi: descriptor heap exhausted")
)

// AssertionError is the panic value raised when a caller violates the API
// contract. Assertions are compiled out with the rhi_release build tag.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string {
	return "rhi: assertion failed: " + e.Msg
}

// assertf panics with an *AssertionError when cond is false.
func assertf(cond bool, format string, args ...any) {
	if assertionsEnabled && !cond {
		panic(&AssertionError{Msg: fmt.Sprintf(format, args...)})
	}
}
