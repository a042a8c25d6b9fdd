package tensor

import (
	"fmt"
	"sort"
)

// Sparse is a COO tensor: nnz coordinate tuples over the leading SparseDims
// dimensions of Shape, each carrying a dense block of the remaining
// dimensions. With SparseDims == len(Shape) every entry is a single element;
// an embedding gradient uses SparseDims == 1 so each entry is a full row.
//
// All coordinates not listed are implicitly zero. Entries may repeat a
// coordinate until Coalesce is called.
type Sparse struct {
	indices [][]int
	values  []float32
	shape   Shape
	sdims   int
}

// NewSparse builds a sparse tensor. indices[k] is the coordinate tuple of
// entry k and must have the same length for every entry; values holds nnz
// blocks of DenseSize() elements each.
func NewSparse(indices [][]int, values []float32, shape Shape) (*Sparse, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	sdims := len(shape)
	if len(indices) > 0 {
		sdims = len(indices[0])
	}
	if sdims == 0 || sdims > len(shape) {
		return nil, fmt.Errorf("sparse dims %d invalid for shape %v", sdims, shape)
	}

	s := &Sparse{
		indices: make([][]int, len(indices)),
		shape:   shape.Clone(),
		sdims:   sdims,
	}
	block := s.DenseSize()
	if len(values) != len(indices)*block {
		return nil, fmt.Errorf("got %d values for %d entries of %d elements", len(values), len(indices), block)
	}

	for k, idx := range indices {
		if len(idx) != sdims {
			return nil, fmt.Errorf("entry %d has %d coordinates, want %d", k, len(idx), sdims)
		}
		if _, err := shape.Offset(idx); err != nil {
			return nil, fmt.Errorf("entry %d: %w", k, err)
		}
		s.indices[k] = append([]int(nil), idx...)
	}
	s.values = append([]float32(nil), values...)

	return s, nil
}

// MustSparse is NewSparse that panics on invalid input.
func MustSparse(indices [][]int, values []float32, shape Shape) *Sparse {
	s, err := NewSparse(indices, values, shape)
	if err != nil {
		panic(err)
	}
	return s
}

// Shape returns the logical dense shape.
func (s *Sparse) Shape() Shape {
	return s.shape
}

// SparseDims returns the number of leading dimensions addressed by indices.
func (s *Sparse) SparseDims() int {
	return s.sdims
}

// DenseSize returns the number of elements in one entry's value block.
func (s *Sparse) DenseSize() int {
	n := 1
	for _, d := range s.shape[s.sdims:] {
		n *= d
	}
	return n
}

// NNZ returns the number of stored entries.
func (s *Sparse) NNZ() int {
	return len(s.indices)
}

// Index returns the coordinate tuple of entry k.
func (s *Sparse) Index(k int) []int {
	return s.indices[k]
}

// Values returns entry k's value block. The slice aliases s.
func (s *Sparse) Values(k int) []float32 {
	n := s.DenseSize()
	return s.values[k*n : (k+1)*n]
}

// AllValues returns every value block back to back. The slice aliases s.
func (s *Sparse) AllValues() []float32 {
	return s.values
}

// Offset returns the dense element offset where entry k's block starts.
func (s *Sparse) Offset(k int) int {
	off, err := s.shape.Offset(s.indices[k])
	if err != nil {
		panic(err.Error())
	}
	return off
}

// Coalesce returns a copy with entries sorted by coordinate and duplicate
// coordinates merged by summing their blocks.
func (s *Sparse) Coalesce() *Sparse {
	n := s.DenseSize()
	order := make([]int, s.NNZ())
	offsets := make([]int, s.NNZ())
	for k := range order {
		order[k] = k
		offsets[k] = s.Offset(k)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return offsets[order[a]] < offsets[order[b]]
	})

	out := &Sparse{shape: s.shape.Clone(), sdims: s.sdims}
	last := -1
	for _, k := range order {
		if len(out.indices) > 0 && offsets[k] == last {
			dst := out.values[len(out.values)-n:]
			for i, v := range s.Values(k) {
				dst[i] += v
			}
			continue
		}
		out.indices = append(out.indices, append([]int(nil), s.indices[k]...))
		out.values = append(out.values, s.Values(k)...)
		last = offsets[k]
	}
	return out
}

// IsCoalesced reports whether entries are strictly increasing by coordinate.
func (s *Sparse) IsCoalesced() bool {
	for k := 1; k < s.NNZ(); k++ {
		if s.Offset(k) <= s.Offset(k-1) {
			return false
		}
	}
	return true
}

// ToDense materializes s, summing repeated coordinates.
func (s *Sparse) ToDense() *Tensor {
	t := Zeros(s.shape)
	data := t.Float32s()
	for k := range s.indices {
		off := s.Offset(k)
		for i, v := range s.Values(k) {
			data[off+i] += v
		}
	}
	return t
}
