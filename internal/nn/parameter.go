package nn

import (
	"github.com/born-ml/adatrain/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// A parameter owns its value tensor and an optional gradient. The gradient
// is absent until a backward pass (or a test) sets one, and is cleared by
// ZeroGrad.
//
// Example:
//
//	weight := nn.NewParameter("linear.weight", tensor.Zeros(tensor.Shape{4, 3}))
//	weight.SetDenseGrad(grad)
type Parameter struct {
	name   string
	tensor *tensor.Tensor
	grad   Gradient
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Shape returns the parameter's shape.
func (p *Parameter) Shape() tensor.Shape {
	return p.tensor.Shape()
}

// Grad returns the current gradient. The zero Gradient means "absent".
func (p *Parameter) Grad() Gradient {
	return p.grad
}

// SetGrad replaces the gradient.
func (p *Parameter) SetGrad(g Gradient) {
	p.grad = g
}

// SetDenseGrad sets a dense gradient.
func (p *Parameter) SetDenseGrad(g *tensor.Tensor) {
	p.grad = DenseGrad(g)
}

// SetSparseGrad sets a sparse gradient.
func (p *Parameter) SetSparseGrad(g *tensor.Sparse) {
	p.grad = SparseGrad(g)
}

// ZeroGrad clears the gradient.
func (p *Parameter) ZeroGrad() {
	p.grad = Gradient{}
}
