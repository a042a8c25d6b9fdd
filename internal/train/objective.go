package train

import (
	"fmt"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
)

// Objective computes the loss of one batch and leaves gradients on the
// parameters it was built over.
type Objective[B any] interface {
	Loss(batch B) (float32, error)
}

// ObjectiveFunc adapts a function to Objective.
type ObjectiveFunc[B any] func(batch B) (float32, error)

// Loss calls f.
func (f ObjectiveFunc[B]) Loss(batch B) (float32, error) {
	return f(batch)
}

// Regression is a batch of inputs X [n, in] and targets Y [n, out].
type Regression struct {
	X *tensor.Tensor
	Y *tensor.Tensor
}

// LeastSquares is the mean squared error of a linear model:
//
//	loss = sum((x @ W.T + b - y)^2) / n
type LeastSquares struct {
	Model *nn.Linear
}

// Loss runs the forward and backward passes and returns the loss.
func (o LeastSquares) Loss(b Regression) (float32, error) {
	if b.X.Rows() != b.Y.Rows() {
		return 0, fmt.Errorf("regression batch: %d inputs, %d targets", b.X.Rows(), b.Y.Rows())
	}
	if b.X.Rows() == 0 {
		return 0, fmt.Errorf("regression batch is empty")
	}

	pred := o.Model.Forward(b.X)
	if !pred.Shape().Equal(b.Y.Shape()) {
		return 0, fmt.Errorf("regression batch: prediction shape %v, target shape %v", pred.Shape(), b.Y.Shape())
	}

	n := float32(b.X.Rows())
	diff := pred.Float32s()
	var loss float32
	for i, y := range b.Y.Float32s() {
		d := diff[i] - y
		loss += d * d
		diff[i] = 2 * d / n
	}

	o.Model.Backward(b.X, pred)
	return loss / n, nil
}
