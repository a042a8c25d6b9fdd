// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train drives optimizers over batches, applies the plateau
// learning-rate policy, checkpoints the best model, and runs lock-free
// multi-worker Adagrad.
package train

import (
	"context"

	"github.com/born-ml/adatrain/internal/config"
	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/optim"
	"github.com/born-ml/adatrain/internal/train"
)

// Config is the training configuration.
type Config = config.Config

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a JSON or YAML config file.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Objective computes a batch loss and sets gradients.
type Objective[B any] = train.Objective[B]

// Trainer runs an optimizer over batches of type B.
type Trainer[B any] = train.Trainer[B]

// Replica is one Hogwild worker's view of the model.
type Replica[B any] = train.Replica[B]

// HogwildConfig configures Hogwild.
type HogwildConfig = train.HogwildConfig

// Option configures a Trainer or Hogwild.
type Option = train.Option

// Options.
var (
	WithLogger  = train.WithLogger
	WithTopK    = train.WithTopK
	WithRunID   = train.WithRunID
	WithHistory = train.WithHistory
)

// New creates a Trainer.
func New[B any](cfg Config, model nn.Module, opt optim.Optimizer, objective Objective[B], opts ...Option) (*Trainer[B], error) {
	return train.New[B](cfg, model, opt, objective, opts...)
}

// Hogwild trains params on one goroutine per shard over shared Adagrad
// accumulators.
func Hogwild[B any](ctx context.Context, params []*nn.Parameter, cfg HogwildConfig, shards [][]B,
	replicate func(worker int) Replica[B], opts ...Option) (*optim.Adagrad, error) {
	return train.Hogwild(ctx, params, cfg, shards, replicate, opts...)
}
