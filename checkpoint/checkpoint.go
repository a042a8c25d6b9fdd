// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint saves and restores model weights, optimizer state and a
// typed training config in one checksummed file.
//
// Example:
//
//	if err := checkpoint.Save("best.ckpt", model, opt, cfg); err != nil {
//	    // already logged; training may continue
//	}
//
//	cfg, err := checkpoint.Load[config.Config]("best.ckpt", model, opt)
//	if err != nil {
//	    return err
//	}
package checkpoint

import (
	"github.com/born-ml/adatrain/internal/checkpoint"
	"github.com/born-ml/adatrain/internal/optim"
)

// Model is anything whose weights round-trip through a state dictionary.
type Model = checkpoint.Model

// Option configures Save, Load, LoadConfig and Inspect.
type Option = checkpoint.Option

// Info is the header summary returned by Inspect.
type Info = checkpoint.Info

// ValidationLevel selects how much of a header is validated on read.
type ValidationLevel = checkpoint.ValidationLevel

// Validation levels.
const (
	ValidationStrict = checkpoint.ValidationStrict
	ValidationNormal = checkpoint.ValidationNormal
	ValidationNone   = checkpoint.ValidationNone
)

// Errors returned when reading a checkpoint.
var (
	ErrChecksumMismatch   = checkpoint.ErrChecksumMismatch
	ErrInvalidMagic       = checkpoint.ErrInvalidMagic
	ErrUnsupportedVersion = checkpoint.ErrUnsupportedVersion
	ErrNoOptimizer        = checkpoint.ErrNoOptimizer
	ErrNoConfig           = checkpoint.ErrNoConfig
)

// Options.
var (
	WithLogger      = checkpoint.WithLogger
	WithMetadata    = checkpoint.WithMetadata
	WithValidation  = checkpoint.WithValidation
	WithoutChecksum = checkpoint.WithoutChecksum
)

// Save writes model, opt and cfg to path atomically. Failures are logged and
// returned.
func Save(path string, model Model, opt optim.Optimizer, cfg any, opts ...Option) error {
	return checkpoint.Save(path, model, opt, cfg, opts...)
}

// Load restores model and opt (each when non-nil) and returns the config.
func Load[C any](path string, model Model, opt optim.Optimizer, opts ...Option) (C, error) {
	return checkpoint.Load[C](path, model, opt, opts...)
}

// LoadConfig returns only the config stored in path.
func LoadConfig[C any](path string, opts ...Option) (C, error) {
	return checkpoint.LoadConfig[C](path, opts...)
}

// Inspect returns the header summary of path.
func Inspect(path string, opts ...Option) (*Info, error) {
	return checkpoint.Inspect(path, opts...)
}
