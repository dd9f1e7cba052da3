// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"log/slog"
	"testing"
	"time"
)

func TestDefaultDeviceOptions(t *testing.T) {
	o := defaultDeviceOptions()
	if o.label != "rhi" {
		t.Errorf("label = %q, want rhi", o.label)
	}
	if o.waitTimeout != DefaultWaitTimeout {
		t.Errorf("waitTimeout = %v, want %v", o.waitTimeout, DefaultWaitTimeout)
	}
	if o.resourceHeapSize != DefaultResourceHeapSize || o.samplerHeapSize != DefaultSamplerHeapSize {
		t.Errorf("heap sizes = %d/%d", o.resourceHeapSize, o.samplerHeapSize)
	}
	if o.driverMessages || o.callback != nil || o.open != nil {
		t.Error("defaults enable optional features")
	}
}

func TestDeviceOptions(t *testing.T) {
	tests := []struct {
		name  string
		opt   DeviceOption
		check func(t *testing.T, o *deviceOptions)
	}{
		{"label", WithLabel("scene"), func(t *testing.T, o *deviceOptions) {
			if o.label != "scene" {
				t.Errorf("label = %q", o.label)
			}
		}},
		{"empty label keeps default", WithLabel(""), func(t *testing.T, o *deviceOptions) {
			if o.label != "rhi" {
				t.Errorf("label = %q", o.label)
			}
		}},
		{"debug", WithDebug(true), func(t *testing.T, o *deviceOptions) {
			if !o.debug {
				t.Error("debug not set")
			}
		}},
		{"driver messages", WithDriverMessages(slog.LevelError), func(t *testing.T, o *deviceOptions) {
			if !o.driverMessages || o.driverLevel != slog.LevelError {
				t.Errorf("driver messages = %v at %v", o.driverMessages, o.driverLevel)
			}
		}},
		{"wait timeout", WithWaitTimeout(time.Second), func(t *testing.T, o *deviceOptions) {
			if o.waitTimeout != time.Second {
				t.Errorf("waitTimeout = %v", o.waitTimeout)
			}
		}},
		{"non-positive timeout ignored", WithWaitTimeout(-time.Second), func(t *testing.T, o *deviceOptions) {
			if o.waitTimeout != DefaultWaitTimeout {
				t.Errorf("waitTimeout = %v", o.waitTimeout)
			}
		}},
		{"heap sizes", WithDescriptorHeapSizes(128, 0), func(t *testing.T, o *deviceOptions) {
			if o.resourceHeapSize != 128 || o.samplerHeapSize != DefaultSamplerHeapSize {
				t.Errorf("heap sizes = %d/%d", o.resourceHeapSize, o.samplerHeapSize)
			}
		}},
		{"message callback", WithMessageCallback(func(Severity, string) {}), func(t *testing.T, o *deviceOptions) {
			if o.callback == nil {
				t.Error("callback not set")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultDeviceOptions()
			tt.opt(&o)
			tt.check(t, &o)
		})
	}
}

func TestOptionsReachDevice(t *testing.T) {
	env := newTestEnv(t, WithLabel("opts"), WithDescriptorHeapSizes(64, 8))
	if env.dev.Label() != "opts" {
		t.Errorf("Label() = %q, want opts", env.dev.Label())
	}
	if env.dev.ResourceHeap().Capacity() != 64 || env.dev.SamplerHeap().Capacity() != 8 {
		t.Errorf("heap capacities = %d/%d, want 64/8",
			env.dev.ResourceHeap().Capacity(), env.dev.SamplerHeap().Capacity())
	}
	if got := env.dev.CreateCommandListPool(QueueGraphics).Fence().label; got != "opts_device_fence" {
		t.Errorf("device fence label = %q", got)
	}
}
