package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// stride[i] is the product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Offset converts coordinates over the leading len(coords) dimensions into a
// row-major element offset. Trailing dimensions are treated as contiguous
// blocks, so Offset([]int{r}) on a [R, C] shape returns r*C.
//
// Returns an error if a coordinate is out of range.
func (s Shape) Offset(coords []int) (int, error) {
	if len(coords) > len(s) {
		return 0, fmt.Errorf("got %d coordinates for %d-d shape %v", len(coords), len(s), s)
	}
	strides := s.ComputeStrides()
	offset := 0
	for i, c := range coords {
		if c < 0 || c >= s[i] {
			return 0, fmt.Errorf("index %d out of bounds for dimension %d (size %d)", c, i, s[i])
		}
		offset += c * strides[i]
	}
	return offset, nil
}
