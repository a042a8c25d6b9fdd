// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides trainable parameters with dense or sparse gradients
// and the small modules used by the adatrain examples.
package nn

import (
	"math/rand"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
)

// Module is any component holding parameters.
type Module = nn.Module

// Parameter is a named trainable tensor with an optional gradient.
type Parameter = nn.Parameter

// Gradient is an absent, dense or sparse gradient.
type Gradient = nn.Gradient

// Linear is a fully connected layer.
type Linear = nn.Linear

// Embedding is a lookup table with row-sparse gradients.
type Embedding = nn.Embedding

// Container groups named child modules.
type Container = nn.Container

// NewParameter creates a parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// DenseGrad wraps a dense gradient.
func DenseGrad(t *tensor.Tensor) Gradient {
	return nn.DenseGrad(t)
}

// SparseGrad wraps a sparse gradient.
func SparseGrad(s *tensor.Sparse) Gradient {
	return nn.SparseGrad(s)
}

// NewLinear creates a Linear layer with Xavier weights and zero bias.
func NewLinear(inFeatures, outFeatures int, r *rand.Rand) *Linear {
	return nn.NewLinear(inFeatures, outFeatures, r)
}

// NewEmbedding creates an Embedding; paddingIdx -1 disables padding.
func NewEmbedding(numEmbeddings, embeddingDim, paddingIdx int, r *rand.Rand) *Embedding {
	return nn.NewEmbedding(numEmbeddings, embeddingDim, paddingIdx, r)
}

// NewContainer creates an empty Container.
func NewContainer() *Container {
	return nn.NewContainer()
}

// KeepPartialGrad zeroes rows topk.. of grad in place.
// Panics unless 0 <= topk < rows.
func KeepPartialGrad(grad *tensor.Tensor, topk int) *tensor.Tensor {
	return nn.KeepPartialGrad(grad, topk)
}
