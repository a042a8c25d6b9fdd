package tensor

import (
	"errors"
	"fmt"
)

// Device represents the compute device a tensor lives on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// ErrDeviceUnavailable is returned when a tensor is moved to a device this
// build has no backend for.
var ErrDeviceUnavailable = errors.New("device unavailable")

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// To returns t placed on device d.
//
// Only the host backend is compiled in, so moving to any other device fails
// with ErrDeviceUnavailable. A tensor already on d is returned unchanged.
func To(t *Tensor, d Device) (*Tensor, error) {
	if t == nil || t.device == d {
		return t, nil
	}
	if d != CPU {
		return nil, fmt.Errorf("move %v to %s: %w", t.shape, d, ErrDeviceUnavailable)
	}
	moved := t.Clone()
	moved.device = CPU
	return moved, nil
}

// SetCUDA moves t to the CUDA device when cuda is true and returns it
// untouched otherwise.
func SetCUDA(t *Tensor, cuda bool) (*Tensor, error) {
	if !cuda {
		return t, nil
	}
	return To(t, CUDA)
}
