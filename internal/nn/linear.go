package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/adatrain/internal/tensor"
)

// Linear implements a fully connected layer y = x @ W.T + b.
//
// Weights are Xavier-initialized, biases start at zero. Backward fills dense
// gradients on both parameters.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]
}

// NewLinear creates a new Linear layer.
func NewLinear(inFeatures, outFeatures int, r *rand.Rand) *Linear {
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, r)),
		bias:        NewParameter("bias", tensor.Zeros(tensor.Shape{outFeatures})),
	}
}

// Forward computes x @ W.T + b for x of shape [batch, in_features].
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	y := tensor.MatMul(x, l.weight.Tensor(), false, true)
	b := l.bias.Tensor().Float32s()
	for i := range y.Rows() {
		row := y.Row(i)
		for j := range row {
			row[j] += b[j]
		}
	}
	return y
}

// Backward sets dW = gradOut.T @ x and db = sum(gradOut, 0), and returns
// the gradient with respect to x.
func (l *Linear) Backward(x, gradOut *tensor.Tensor) *tensor.Tensor {
	if gradOut.Rows() != x.Rows() {
		panic(fmt.Sprintf("linear backward: batch mismatch %v vs %v", x.Shape(), gradOut.Shape()))
	}
	l.weight.SetDenseGrad(tensor.MatMul(gradOut, x, true, false))

	db := tensor.Zeros(tensor.Shape{l.outFeatures})
	acc := db.Float32s()
	for i := range gradOut.Rows() {
		for j, v := range gradOut.Row(i) {
			acc[j] += v
		}
	}
	l.bias.SetDenseGrad(db)

	return tensor.MatMul(gradOut, l.weight.Tensor(), false, false)
}

// Parameters returns weight and bias.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// StateDict returns a map of parameter names to tensors.
func (l *Linear) StateDict() map[string]*tensor.Tensor {
	return ParamStateDict(l.Parameters())
}

// LoadStateDict loads parameters from a state dictionary.
func (l *Linear) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return LoadParams(l.Parameters(), stateDict)
}

// Share returns a Linear whose parameters are new handles over the same
// weight and bias buffers. Gradients are per handle; values are not.
func (l *Linear) Share() *Linear {
	return &Linear{
		inFeatures:  l.inFeatures,
		outFeatures: l.outFeatures,
		weight:      NewParameter(l.weight.Name(), l.weight.Tensor().Share()),
		bias:        NewParameter(l.bias.Name(), l.bias.Tensor().Share()),
	}
}
