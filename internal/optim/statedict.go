package optim

import (
	"fmt"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
)

// GroupState is the serializable form of a ParamGroup. Params lists the
// registration indices of the group's parameters.
type GroupState struct {
	LR            float32    `json:"lr"`
	LRDecay       float32    `json:"lr_decay,omitempty"`
	InitAccuValue float32    `json:"init_accu_value,omitempty"`
	WeightDecay   float32    `json:"weight_decay,omitempty"`
	Momentum      float32    `json:"momentum,omitempty"`
	Betas         [2]float32 `json:"betas,omitempty"`
	Eps           float32    `json:"eps,omitempty"`
	Params        []int      `json:"params"`
}

// StateDict is an optimizer snapshot: hyperparameters per group plus
// per-parameter buffers keyed "<buffer>.<index>" (e.g. "sum.0", "step.3").
type StateDict struct {
	Type    string
	Groups  []GroupState
	Tensors map[string]*tensor.Tensor
}

func groupStates(groups []*ParamGroup) []GroupState {
	states := make([]GroupState, len(groups))
	for gi, g := range groups {
		idx := make([]int, len(g.Params))
		for j := range g.Params {
			idx[j] = g.Index(j)
		}
		states[gi] = GroupState{
			LR:            g.LR,
			LRDecay:       g.LRDecay,
			InitAccuValue: g.InitAccuValue,
			WeightDecay:   g.WeightDecay,
			Momentum:      g.Momentum,
			Betas:         g.Betas,
			Eps:           g.Eps,
			Params:        idx,
		}
	}
	return states
}

// checkStateDict verifies sd was produced by an optimizer of type name over
// the same group layout. It does not touch the optimizer.
func checkStateDict(sd *StateDict, name string, groups []*ParamGroup) error {
	if sd == nil {
		return fmt.Errorf("%w: nil state dict", ErrStateMismatch)
	}
	if sd.Type != name {
		return fmt.Errorf("%w: state dict is for %q, optimizer is %q", ErrStateMismatch, sd.Type, name)
	}
	if len(sd.Groups) != len(groups) {
		return fmt.Errorf("%w: state dict has %d groups, optimizer has %d", ErrStateMismatch, len(sd.Groups), len(groups))
	}
	for gi, g := range groups {
		if len(sd.Groups[gi].Params) != len(g.Params) {
			return fmt.Errorf("%w: group %d has %d parameters, state dict has %d",
				ErrStateMismatch, gi, len(g.Params), len(sd.Groups[gi].Params))
		}
	}
	return nil
}

func applyGroupStates(groups []*ParamGroup, states []GroupState) {
	for gi, g := range groups {
		s := states[gi]
		g.LR = s.LR
		g.LRDecay = s.LRDecay
		g.InitAccuValue = s.InitAccuValue
		g.WeightDecay = s.WeightDecay
		g.Momentum = s.Momentum
		g.Betas = s.Betas
		g.Eps = s.Eps
	}
}

func stateKey(buffer string, i int) string {
	return fmt.Sprintf("%s.%d", buffer, i)
}

// stateTensor fetches sd.Tensors[buffer.i] and checks it against p.
func stateTensor(sd *StateDict, buffer string, i int, p *nn.Parameter) (*tensor.Tensor, error) {
	key := stateKey(buffer, i)
	t, ok := sd.Tensors[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrStateMismatch, key)
	}
	if t.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%w: %q has dtype %s, want float32", ErrStateMismatch, key, t.DType())
	}
	if !t.Shape().Equal(p.Shape()) {
		return nil, fmt.Errorf("%w: %q has shape %v, parameter %q has %v", ErrStateMismatch, key, t.Shape(), p.Name(), p.Shape())
	}
	return t, nil
}

// stepTensor fetches the int64 scalar step counter for parameter i.
func stepTensor(sd *StateDict, i int) (int64, error) {
	key := stateKey("step", i)
	t, ok := sd.Tensors[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrStateMismatch, key)
	}
	if t.DType() != tensor.Int64 || t.NumElements() != 1 {
		return 0, fmt.Errorf("%w: %q must be an int64 scalar, got %s", ErrStateMismatch, key, t)
	}
	return t.Int64s()[0], nil
}
