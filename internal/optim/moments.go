package optim

import (
	"fmt"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
)

// moments holds the per-parameter state shared by Adam and Adamax: a step
// counter plus first and second moment buffers, allocated on first use.
type moments struct {
	name   string
	groups []*ParamGroup
	params []*nn.Parameter
	steps  []int64
	m      []*tensor.Tensor
	v      []*tensor.Tensor
}

var momentOptions = []string{OptLR, OptBeta1, OptBeta2, OptEps, OptWeightDecay}

func newMoments(name string, specs []GroupSpec, defaults ParamGroup) (*moments, error) {
	groups, params, err := buildGroups(specs, defaults, momentOptions...)
	if err != nil {
		return nil, err
	}
	for gi, g := range groups {
		for _, err := range []error{
			checkRange("lr", g.LR, 0, false),
			checkBeta("beta1", g.Betas[0]),
			checkBeta("beta2", g.Betas[1]),
			checkRange("eps", g.Eps, 0, true),
			checkRange("weight_decay", g.WeightDecay, 0, true),
		} {
			if err != nil {
				return nil, fmt.Errorf("group %d: %w", gi, err)
			}
		}
	}

	return &moments{
		name:   name,
		groups: groups,
		params: params,
		steps:  make([]int64, len(params)),
		m:      make([]*tensor.Tensor, len(params)),
		v:      make([]*tensor.Tensor, len(params)),
	}, nil
}

// update visits every parameter with a gradient, advances its step counter,
// allocates its buffers if needed and calls apply with the dense gradient.
func (o *moments) update(closure Closure, apply func(g *ParamGroup, step int64, param, grad, m, v []float32)) (float32, error) {
	loss, err := runClosure(closure)
	if err != nil {
		return loss, err
	}

	for _, g := range o.groups {
		for j, p := range g.Params {
			grad := p.Grad()
			if grad.IsAbsent() {
				continue
			}
			if err := checkGrad(p, grad); err != nil {
				return loss, err
			}

			i := g.Index(j)
			if o.m[i] == nil {
				o.m[i] = tensor.Zeros(p.Shape())
				o.v[i] = tensor.Zeros(p.Shape())
			}
			o.steps[i]++
			d := denseGrad(p, grad, g.WeightDecay)
			apply(g, o.steps[i], p.Tensor().Float32s(), d.Float32s(), o.m[i].Float32s(), o.v[i].Float32s())
		}
	}

	return loss, nil
}

// ZeroGrad clears gradients for all parameters.
func (o *moments) ZeroGrad() {
	zeroGrad(o.groups)
}

// ParamGroups returns the live parameter groups.
func (o *moments) ParamGroups() []*ParamGroup {
	return o.groups
}

// GetLR returns the learning rate of the first group.
func (o *moments) GetLR() float32 {
	return o.groups[0].LR
}

// SetLR sets the learning rate of every group.
func (o *moments) SetLR(lr float32) {
	setLR(o.groups, lr)
}

// Name returns the selection name.
func (o *moments) Name() string {
	return o.name
}

// StateDict exports "m.{i}", "v.{i}" and "step.{i}" for every parameter that
// has been updated at least once.
func (o *moments) StateDict() *StateDict {
	sd := &StateDict{
		Type:    o.name,
		Groups:  groupStates(o.groups),
		Tensors: make(map[string]*tensor.Tensor),
	}
	for i := range o.params {
		if o.m[i] == nil {
			continue
		}
		sd.Tensors[stateKey("m", i)] = o.m[i].Clone()
		sd.Tensors[stateKey("v", i)] = o.v[i].Clone()
		sd.Tensors[stateKey("step", i)] = tensor.ScalarInt64(o.steps[i])
	}
	return sd
}

// LoadStateDict restores moment buffers and counters.
func (o *moments) LoadStateDict(sd *StateDict) error {
	if err := checkStateDict(sd, o.name, o.groups); err != nil {
		return err
	}

	n := len(o.params)
	steps, ms, vs := make([]int64, n), make([]*tensor.Tensor, n), make([]*tensor.Tensor, n)
	for i, p := range o.params {
		if _, ok := sd.Tensors[stateKey("m", i)]; !ok {
			continue
		}
		m, err := stateTensor(sd, "m", i, p)
		if err != nil {
			return err
		}
		v, err := stateTensor(sd, "v", i, p)
		if err != nil {
			return err
		}
		step, err := stepTensor(sd, i)
		if err != nil {
			return err
		}
		steps[i], ms[i], vs[i] = step, m.Clone(), v.Clone()
	}

	applyGroupStates(o.groups, sd.Groups)
	o.steps, o.m, o.v = steps, ms, vs
	return nil
}
