// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the host tensor surface of adatrain: dense float32 and
// int64 tensors over shared buffers, COO sparse tensors, and device tags.
//
//	x := tensor.Zeros(tensor.Shape{2, 3})
//	g := tensor.MustSparse([][]int{{0}, {1}}, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
package tensor

import (
	"github.com/born-ml/adatrain/internal/tensor"
)

// Tensor is a dense tensor.
type Tensor = tensor.Tensor

// Sparse is a COO sparse tensor.
type Sparse = tensor.Sparse

// Shape is a tensor shape.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Device is the device a tensor lives on.
type Device = tensor.Device

// Data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Devices.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// ErrDeviceUnavailable is returned when moving to a device without a backend.
var ErrDeviceUnavailable = tensor.ErrDeviceUnavailable

// Zeros creates a float32 tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Full creates a float32 tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	return tensor.Full(shape, value)
}

// FromFloat32 creates a float32 tensor from data.
func FromFloat32(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromFloat32(data, shape)
}

// MustFromFloat32 is FromFloat32 that panics on error.
func MustFromFloat32(data []float32, shape Shape) *Tensor {
	return tensor.MustFromFloat32(data, shape)
}

// FromInt64 creates an int64 tensor from data.
func FromInt64(data []int64, shape Shape) (*Tensor, error) {
	return tensor.FromInt64(data, shape)
}

// NewSparse creates a sparse tensor, validating indices and values.
func NewSparse(indices [][]int, values []float32, shape Shape) (*Sparse, error) {
	return tensor.NewSparse(indices, values, shape)
}

// MustSparse is NewSparse that panics on error.
func MustSparse(indices [][]int, values []float32, shape Shape) *Sparse {
	return tensor.MustSparse(indices, values, shape)
}

// To moves t to device d.
func To(t *Tensor, d Device) (*Tensor, error) {
	return tensor.To(t, d)
}

// SetCUDA moves t to CUDA when cuda is true.
func SetCUDA(t *Tensor, cuda bool) (*Tensor, error) {
	return tensor.SetCUDA(t, cuda)
}
