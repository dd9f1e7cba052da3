// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package shader compiles WGSL to the SPIR-V bytecode rhi.CreateShader
// consumes.
package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"

	"github.com/gogpu/rhi"
)

// ErrMisaligned is returned when the compiler output is not a whole
// number of 32-bit words.
var ErrMisaligned = errors.New("shader: SPIR-V output is not word aligned")

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Options controls compilation.
type Options struct {
	// Debug emits debug names into the module.
	Debug bool

	// SkipValidation disables IR validation before code generation.
	SkipValidation bool
}

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string, opts Options) ([]uint32, error) {
	co := naga.DefaultOptions()
	co.Debug = opts.Debug
	co.Validate = !opts.SkipValidation

	spirvBytes, err := naga.CompileWithOptions(source, co)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	return Words(spirvBytes)
}

// Words converts little-endian SPIR-V bytes to words and checks the magic
// number.
func Words(spirvBytes []byte) ([]uint32, error) {
	if len(spirvBytes) == 0 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMisaligned, len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("shader: bad SPIR-V magic 0x%08x", words[0])
	}
	return words, nil
}

// Load compiles source and creates a shader module for one entry point.
func Load(dev *rhi.Device, label string, stage gputypes.ShaderStage, entryPoint, source string) (*rhi.Shader, error) {
	code, err := CompileWGSL(source, Options{})
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", label, err)
	}
	return dev.CreateShader(rhi.ShaderDesc{
		Label:      label,
		Stage:      stage,
		EntryPoint: entryPoint,
		SPIRV:      code,
	})
}
