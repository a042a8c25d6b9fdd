package tensor

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// tensorBuffer is a reference-counted buffer that can be aliased by several
// tensors. Aliases created with Share observe each other's writes.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	shared   atomic.Bool
}

func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

func (tb *tensorBuffer) release() {
	tb.refCount.Add(-1)
}

// Tensor is a dense, row-major host tensor.
//
// Element access goes through typed views (Float32s, Int64s) that alias the
// underlying buffer, so writes through a view mutate the tensor in place.
//
// Example:
//
//	w := tensor.Full(tensor.Shape{3, 4}, 0.1)
//	data := w.Float32s()
//	data[0] = 1 // w.At(0, 0) == 1
type Tensor struct {
	buffer *tensorBuffer
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw allocates a zero-filled tensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &Tensor{
		buffer: newTensorBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Strides returns the tensor's memory strides.
func (t *Tensor) Strides() []int {
	return t.stride
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// Device returns the tensor's compute device.
func (t *Tensor) Device() Device {
	return t.device
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (t *Tensor) ByteSize() int {
	return t.NumElements() * t.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory.
func (t *Tensor) Data() []byte {
	return t.buffer.data
}

// Float32s interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (t *Tensor) Float32s() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds fixed by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.buffer.data[0])), t.NumElements())
}

// Int64s interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (t *Tensor) Int64s() []int64 {
	if t.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds fixed by NumElements()
	return unsafe.Slice((*int64)(unsafe.Pointer(&t.buffer.data[0])), t.NumElements())
}

// Bools interprets the data as []bool.
// Panics if the tensor's dtype is not Bool.
func (t *Tensor) Bools() []bool {
	if t.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds fixed by NumElements()
	return unsafe.Slice((*bool)(unsafe.Pointer(&t.buffer.data[0])), t.NumElements())
}

// At returns the float32 element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float32 {
	return t.Float32s()[t.flatIndex(indices)]
}

// Set sets the float32 element at the given indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.Float32s()[t.flatIndex(indices)] = value
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset, err := t.shape.Offset(indices)
	if err != nil {
		panic(err.Error())
	}
	return offset
}

// Rows returns the size of the leading dimension (1 for scalars).
func (t *Tensor) Rows() int {
	if len(t.shape) == 0 {
		return 1
	}
	return t.shape[0]
}

// RowSize returns the number of elements in one leading-dimension slice.
func (t *Tensor) RowSize() int {
	return t.NumElements() / t.Rows()
}

// Row returns a float32 view of row i of the leading dimension.
func (t *Tensor) Row(i int) []float32 {
	if i < 0 || i >= t.Rows() {
		panic(fmt.Sprintf("row %d out of bounds (rows=%d)", i, t.Rows()))
	}
	n := t.RowSize()
	return t.Float32s()[i*n : (i+1)*n]
}

// Clone returns a deep copy that shares nothing with t.
func (t *Tensor) Clone() *Tensor {
	buf := newTensorBuffer(len(t.buffer.data))
	copy(buf.data, t.buffer.data)
	return &Tensor{
		buffer: buf,
		shape:  t.shape.Clone(),
		stride: append([]int(nil), t.stride...),
		dtype:  t.dtype,
		device: t.device,
	}
}

// Share returns a new handle aliasing t's buffer and marks the buffer as
// shared. Writes through either handle are visible to the other; there is no
// synchronization between them.
func (t *Tensor) Share() *Tensor {
	t.buffer.addRef()
	t.buffer.shared.Store(true)
	return &Tensor{
		buffer: t.buffer,
		shape:  t.shape.Clone(),
		stride: append([]int(nil), t.stride...),
		dtype:  t.dtype,
		device: t.device,
	}
}

// IsShared reports whether the buffer has been handed out through Share.
func (t *Tensor) IsShared() bool {
	return t.buffer.shared.Load()
}

// SameStorage reports whether t and other alias one buffer.
func (t *Tensor) SameStorage(other *Tensor) bool {
	return other != nil && t.buffer == other.buffer
}

// RefCount returns the number of live handles on the buffer.
func (t *Tensor) RefCount() int {
	return int(t.buffer.refCount.Load())
}

// Release drops this handle's reference on the buffer.
func (t *Tensor) Release() {
	t.buffer.release()
}

// Equal reports whether t and other have the same dtype, shape and bytes.
func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil {
		return false
	}
	return t.dtype == other.dtype && t.shape.Equal(other.shape) && bytes.Equal(t.buffer.data, other.buffer.data)
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", t.dtype, t.shape, t.device)
}
