package nn

import (
	"fmt"

	"github.com/born-ml/adatrain/internal/tensor"
)

// KeepPartialGrad keeps only the first topk rows of a dense gradient and
// zeroes the rest in place. Used to freeze all but the most frequent rows of
// an embedding matrix.
//
// Panics unless 0 <= topk < grad.Rows().
func KeepPartialGrad(grad *tensor.Tensor, topk int) *tensor.Tensor {
	if topk < 0 || topk >= grad.Rows() {
		panic(fmt.Sprintf("keep partial grad: topk %d must be in [0, %d)", topk, grad.Rows()))
	}
	tensor.ZeroRows(grad, topk)
	return grad
}

// KeepPartialParamGrad applies KeepPartialGrad to p's gradient. Sparse
// gradients drop entries whose leading index is >= topk; absent gradients
// are left alone.
func KeepPartialParamGrad(p *Parameter, topk int) {
	g := p.Grad()
	switch g.Kind() {
	case GradDense:
		KeepPartialGrad(g.Dense(), topk)
	case GradSparse:
		s := g.Sparse()
		if topk < 0 || topk >= s.Shape()[0] {
			panic(fmt.Sprintf("keep partial grad: topk %d must be in [0, %d)", topk, s.Shape()[0]))
		}
		var (
			indices [][]int
			values  []float32
		)
		for k := range s.NNZ() {
			if s.Index(k)[0] < topk {
				indices = append(indices, s.Index(k))
				values = append(values, s.Values(k)...)
			}
		}
		p.SetSparseGrad(tensor.MustSparse(indices, values, s.Shape()))
	}
}
