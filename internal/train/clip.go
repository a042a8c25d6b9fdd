package train

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
)

// ClipGradNorm rescales the gradients of params in place so that their
// joint Euclidean norm is at most maxNorm, and returns the norm before
// clipping. Sparse gradients are coalesced first.
func ClipGradNorm(params []*nn.Parameter, maxNorm float32) float32 {
	var sq float32
	for _, p := range params {
		g := p.Grad()
		switch g.Kind() {
		case nn.GradDense:
			n := tensor.Norm(g.Dense())
			sq += n * n
		case nn.GradSparse:
			s := g.Sparse()
			if !s.IsCoalesced() {
				s = s.Coalesce()
				p.SetSparseGrad(s)
			}
			for _, v := range s.AllValues() {
				sq += v * v
			}
		}
	}

	total := math32.Sqrt(sq)
	if total <= maxNorm {
		return total
	}

	scale := maxNorm / (total + 1e-6)
	for _, p := range params {
		g := p.Grad()
		switch g.Kind() {
		case nn.GradDense:
			tensor.Scale(scale, g.Dense())
		case nn.GradSparse:
			values := g.Sparse().AllValues()
			for i := range values {
				values[i] *= scale
			}
		}
	}
	return total
}
