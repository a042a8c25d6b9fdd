package optim

import (
	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
)

// denseGrad returns grad as a dense tensor with the L2 penalty folded in.
// The caller's gradient is never modified.
func denseGrad(p *nn.Parameter, grad nn.Gradient, weightDecay float32) *tensor.Tensor {
	g := grad.ToDense()
	if weightDecay == 0 {
		return g
	}
	if !grad.IsSparse() {
		g = g.Clone()
	}
	tensor.Axpy(weightDecay, p.Tensor(), g)
	return g
}
