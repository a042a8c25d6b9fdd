package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Zeros creates a float32 tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	t, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a float32 tensor filled with value.
//
// Example:
//
//	sum := tensor.Full(param.Shape(), 0.1)
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	data := t.Float32s()
	for i := range data {
		data[i] = value
	}
	return t
}

// FromFloat32 copies data into a new float32 tensor of the given shape.
func FromFloat32(data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	copy(t.Float32s(), data)
	return t, nil
}

// MustFromFloat32 is FromFloat32 that panics on a shape mismatch.
func MustFromFloat32(data []float32, shape Shape) *Tensor {
	t, err := FromFloat32(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// FromInt64 copies data into a new int64 tensor of the given shape.
func FromInt64(data []int64, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := NewRaw(shape, Int64, CPU)
	if err != nil {
		return nil, err
	}
	copy(t.Int64s(), data)
	return t, nil
}

// ScalarInt64 creates a 0-d int64 tensor.
func ScalarInt64(v int64) *Tensor {
	t, err := NewRaw(Shape{}, Int64, CPU)
	if err != nil {
		panic(err)
	}
	t.Int64s()[0] = v
	return t
}

// Randn creates a float32 tensor with values drawn from N(0, std²) using r.
func Randn(shape Shape, std float64, r *rand.Rand) *Tensor {
	t := Zeros(shape)
	data := t.Float32s()
	for i := 0; i < len(data); i += 2 {
		u1 := 1 - r.Float64() // (0, 1]
		u2 := r.Float64()
		mag := math.Sqrt(-2.0*math.Log(u1)) * std
		data[i] = float32(mag * math.Cos(2.0*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = float32(mag * math.Sin(2.0*math.Pi*u2))
		}
	}
	return t
}

// Uniform creates a float32 tensor with values drawn from U(-bound, bound).
func Uniform(shape Shape, bound float64, r *rand.Rand) *Tensor {
	t := Zeros(shape)
	data := t.Float32s()
	for i := range data {
		data[i] = float32((r.Float64()*2.0 - 1.0) * bound)
	}
	return t
}
