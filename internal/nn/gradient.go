package nn

import (
	"github.com/born-ml/adatrain/internal/tensor"
)

// GradKind tags the representation held by a Gradient.
type GradKind int

// Gradient representations.
const (
	GradAbsent GradKind = iota
	GradDense
	GradSparse
)

// String returns the kind name.
func (k GradKind) String() string {
	switch k {
	case GradDense:
		return "dense"
	case GradSparse:
		return "sparse"
	default:
		return "absent"
	}
}

// Gradient is either a dense tensor or a COO sparse tensor. The zero value
// is an absent gradient; optimizers skip parameters whose gradient is absent.
type Gradient struct {
	kind   GradKind
	dense  *tensor.Tensor
	sparse *tensor.Sparse
}

// DenseGrad wraps a dense gradient. A nil tensor yields an absent gradient.
func DenseGrad(t *tensor.Tensor) Gradient {
	if t == nil {
		return Gradient{}
	}
	return Gradient{kind: GradDense, dense: t}
}

// SparseGrad wraps a sparse gradient. A nil tensor yields an absent gradient.
func SparseGrad(s *tensor.Sparse) Gradient {
	if s == nil {
		return Gradient{}
	}
	return Gradient{kind: GradSparse, sparse: s}
}

// Kind returns the representation tag.
func (g Gradient) Kind() GradKind {
	return g.kind
}

// IsAbsent reports whether no gradient is present.
func (g Gradient) IsAbsent() bool {
	return g.kind == GradAbsent
}

// IsSparse reports whether the gradient is stored as index/value pairs.
func (g Gradient) IsSparse() bool {
	return g.kind == GradSparse
}

// Dense returns the dense tensor, or nil for other kinds.
func (g Gradient) Dense() *tensor.Tensor {
	return g.dense
}

// Sparse returns the sparse tensor, or nil for other kinds.
func (g Gradient) Sparse() *tensor.Sparse {
	return g.sparse
}

// ToDense returns a dense view of the gradient: the tensor itself for dense
// gradients, a freshly materialized tensor for sparse ones, nil when absent.
func (g Gradient) ToDense() *tensor.Tensor {
	switch g.kind {
	case GradDense:
		return g.dense
	case GradSparse:
		return g.sparse.ToDense()
	default:
		return nil
	}
}

// Shape returns the gradient's logical shape, nil when absent.
func (g Gradient) Shape() tensor.Shape {
	switch g.kind {
	case GradDense:
		return g.dense.Shape()
	case GradSparse:
		return g.sparse.Shape()
	default:
		return nil
	}
}
