// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"log/slog"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	dev, err := rhi.NewDevice(
//	    rhi.WithDebug(true),
//	    rhi.WithMessageCallback(func(sev rhi.Severity, msg string) {
//	        log.Printf("[%s] %s", sev, msg)
//	    }),
//	)
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	instance hal.Instance
	open     *hal.OpenDevice

	label            string
	debug            bool
	callback         MessageCallback
	driverMessages   bool
	driverLevel      slog.Level
	waitTimeout      time.Duration
	resourceHeapSize uint32
	samplerHeapSize  uint32
}

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		label:            "rhi",
		driverLevel:      slog.LevelWarn,
		waitTimeout:      DefaultWaitTimeout,
		resourceHeapSize: DefaultResourceHeapSize,
		samplerHeapSize:  DefaultSamplerHeapSize,
	}
}

// WithHAL builds the device over an already opened native device instead
// of opening the compiled-in backend. instance may be nil when no
// swapchain is created. The device does not take ownership of either.
func WithHAL(instance hal.Instance, open hal.OpenDevice) DeviceOption {
	return func(o *deviceOptions) {
		o.instance = instance
		o.open = &open
	}
}

// WithLabel sets the debug name prefix of the device's objects.
func WithLabel(label string) DeviceOption {
	return func(o *deviceOptions) {
		if label != "" {
			o.label = label
		}
	}
}

// WithDebug enables the backend's debug and validation layers.
func WithDebug(enable bool) DeviceOption {
	return func(o *deviceOptions) {
		o.debug = enable
	}
}

// WithMessageCallback installs the receiver of validation diagnostics.
// Without one, diagnostics go to the package logger.
func WithMessageCallback(cb MessageCallback) DeviceOption {
	return func(o *deviceOptions) {
		o.callback = cb
	}
}

// WithDriverMessages forwards native driver log records at or above
// level to the message callback.
func WithDriverMessages(level slog.Level) DeviceOption {
	return func(o *deviceOptions) {
		o.driverMessages = true
		o.driverLevel = level
	}
}

// WithWaitTimeout bounds every CPU-side fence wait. Non-positive values
// keep DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithDescriptorHeapSizes sets the capacities of the resource-view and
// sampler heaps. Zero keeps the default.
func WithDescriptorHeapSizes(resources, samplers uint32) DeviceOption {
	return func(o *deviceOptions) {
		if resources > 0 {
			o.resourceHeapSize = resources
		}
		if samplers > 0 {
			o.samplerHeapSize = samplers
		}
	}
}
