// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package config loads device and swapchain settings from a TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/rhi"
)

// Config is the file format.
//
//	label = "demo"
//	debug = true
//	wait_timeout = "2s"
//
//	[log]
//	level = "debug"
//	driver_messages = true
//
//	[heaps]
//	resource = 65536
//	sampler = 2048
//
//	[swapchain]
//	width = 1280
//	height = 720
//	backbuffers = 3
//	vsync = true
type Config struct {
	Label       string `toml:"label"`
	Debug       bool   `toml:"debug"`
	WaitTimeout string `toml:"wait_timeout"`

	Log       Log       `toml:"log"`
	Heaps     Heaps     `toml:"heaps"`
	Swapchain Swapchain `toml:"swapchain"`
}

// Log configures diagnostics.
type Log struct {
	// Level is the package logger level.
	Level slog.Level `toml:"level"`

	// DriverMessages forwards backend log records to the message
	// callback.
	DriverMessages bool `toml:"driver_messages"`
}

// Heaps sizes the descriptor heaps.
type Heaps struct {
	Resource uint32 `toml:"resource"`
	Sampler  uint32 `toml:"sampler"`
}

// Swapchain configures the presentation surface.
type Swapchain struct {
	Width       int  `toml:"width"`
	Height      int  `toml:"height"`
	Backbuffers int  `toml:"backbuffers"`
	VSync       bool `toml:"vsync"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Label:       "rhi",
		WaitTimeout: rhi.DefaultWaitTimeout.String(),
		Log:         Log{Level: slog.LevelWarn},
		Heaps: Heaps{
			Resource: rhi.DefaultResourceHeapSize,
			Sampler:  rhi.DefaultSamplerHeapSize,
		},
		Swapchain: Swapchain{Width: 800, Height: 600, Backbuffers: 3, VSync: true},
	}
}

// Load reads the file at path over Default. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes r over Default. Unknown keys are an error.
func Parse(r io.Reader) (Config, error) {
	c := Default()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return Config{}, fmt.Errorf("config: line %d column %d: %w", row, col, err)
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if _, err := c.Timeout(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Timeout parses WaitTimeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.WaitTimeout == "" {
		return rhi.DefaultWaitTimeout, nil
	}
	d, err := time.ParseDuration(c.WaitTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: wait_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: wait_timeout must be positive, got %s", d)
	}
	return d, nil
}

// DeviceOptions converts the settings to device options. cb receives
// validation messages and, with driver_messages set, backend records.
func (c *Config) DeviceOptions(cb rhi.MessageCallback) ([]rhi.DeviceOption, error) {
	timeout, err := c.Timeout()
	if err != nil {
		return nil, err
	}
	opts := []rhi.DeviceOption{
		rhi.WithLabel(c.Label),
		rhi.WithDebug(c.Debug),
		rhi.WithWaitTimeout(timeout),
		rhi.WithDescriptorHeapSizes(c.Heaps.Resource, c.Heaps.Sampler),
	}
	if cb != nil {
		opts = append(opts, rhi.WithMessageCallback(cb))
		if c.Log.DriverMessages {
			opts = append(opts, rhi.WithDriverMessages(c.Log.Level))
		}
	}
	return opts, nil
}
