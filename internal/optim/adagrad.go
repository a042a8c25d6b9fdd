package optim

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/parallel"
	"github.com/born-ml/adatrain/internal/tensor"
)

// adagradEps keeps the denominator away from zero when an accumulator is 0.
const adagradEps = 1e-10

// Adagrad implements the adaptive gradient algorithm with a configurable
// initial accumulator value.
//
// Every parameter owns a step counter and an accumulator "sum" of the same
// shape, filled with InitAccuValue at construction. On each Step, for every
// parameter with a gradient g:
//
//	step += 1
//	g     = g + weight_decay * param            // dense gradients only
//	clr   = lr / (1 + (step-1) * lr_decay)
//	sum  += g ⊙ g
//	param -= clr * g / (sqrt(sum) + 1e-10)
//
// Sparse gradients are coalesced first and only the touched coordinates of
// sum and param are read or written.
//
// Example:
//
//	opt, err := optim.NewAdagrad(model.Parameters(), optim.DefaultAdagradConfig())
//	if err != nil {
//	    return err
//	}
//	loss, err := opt.Step(closure)
type Adagrad struct {
	groups []*ParamGroup
	params []*nn.Parameter
	state  []adagradState
	par    parallel.Config
}

type adagradState struct {
	step int64
	sum  *tensor.Tensor
}

// AdagradConfig holds the default hyperparameters for every group.
type AdagradConfig struct {
	LR            float32 // Learning rate (default: 0.01)
	LRDecay       float32 // Per-parameter decay of the learning rate (default: 0)
	InitAccuValue float32 // Initial accumulator value (default: 0.1)
	WeightDecay   float32 // L2 penalty, dense gradients only (default: 0)
}

// DefaultAdagradConfig returns LR 0.01, InitAccuValue 0.1 and no decay.
func DefaultAdagradConfig() AdagradConfig {
	return AdagradConfig{LR: 0.01, InitAccuValue: 0.1}
}

func (c AdagradConfig) group() ParamGroup {
	if c.LR == 0 {
		c.LR = 0.01
	}
	return ParamGroup{
		LR:            c.LR,
		LRDecay:       c.LRDecay,
		InitAccuValue: c.InitAccuValue,
		WeightDecay:   c.WeightDecay,
	}
}

var adagradOptions = []string{OptLR, OptLRDecay, OptInitAccuValue, OptWeightDecay}

// NewAdagrad creates an Adagrad optimizer over a single parameter group.
//
// A zero LR selects the default 0.01. Every other field is used as given, so
// start from DefaultAdagradConfig to get the 0.1 initial accumulator.
func NewAdagrad(params []*nn.Parameter, config AdagradConfig) (*Adagrad, error) {
	return NewAdagradGroups(SingleGroup(params), config)
}

// NewAdagradGroups creates an Adagrad optimizer over explicit parameter
// groups. Accepted option keys: lr, lr_decay, init_accu_value, weight_decay.
func NewAdagradGroups(specs []GroupSpec, config AdagradConfig) (*Adagrad, error) {
	groups, params, err := buildGroups(specs, config.group(), adagradOptions...)
	if err != nil {
		return nil, err
	}
	if err := validateAdagrad(groups); err != nil {
		return nil, err
	}

	a := &Adagrad{
		groups: groups,
		params: params,
		state:  make([]adagradState, len(params)),
		par:    parallel.DefaultConfig(),
	}
	for _, g := range groups {
		for j, p := range g.Params {
			a.state[g.Index(j)].sum = tensor.Full(p.Shape(), g.InitAccuValue)
		}
	}
	return a, nil
}

func validateAdagrad(groups []*ParamGroup) error {
	for gi, g := range groups {
		checks := []error{
			checkRange("lr", g.LR, 0, false),
			checkRange("lr_decay", g.LRDecay, 0, true),
			checkRange("init_accu_value", g.InitAccuValue, 0, true),
			checkRange("weight_decay", g.WeightDecay, 0, true),
		}
		for _, err := range checks {
			if err != nil {
				return fmt.Errorf("group %d: %w", gi, err)
			}
		}
	}
	return nil
}

// EffectiveLR returns the learning rate applied on a parameter's step-th
// update: lr / (1 + (step-1) * lrDecay).
func EffectiveLR(lr, lrDecay float32, step int64) float32 {
	return float32(float64(lr) / (1 + float64(step-1)*float64(lrDecay)))
}

// SetParallel replaces the loop-splitting policy of the dense update.
func (a *Adagrad) SetParallel(cfg parallel.Config) {
	a.par = cfg
}

// Step performs a single optimization step.
//
// If a sparse gradient meets a non-zero weight decay, Step stops with
// ErrSparseWeightDecay. Parameters processed before it keep their update and
// the offending parameter's step counter has already advanced.
func (a *Adagrad) Step(closure Closure) (float32, error) {
	loss, err := runClosure(closure)
	if err != nil {
		return loss, err
	}

	for _, g := range a.groups {
		for j, p := range g.Params {
			grad := p.Grad()
			if grad.IsAbsent() {
				continue
			}
			if err := checkGrad(p, grad); err != nil {
				return loss, err
			}

			st := &a.state[g.Index(j)]
			st.step++

			if g.WeightDecay != 0 {
				if grad.IsSparse() {
					return loss, fmt.Errorf("%w: parameter %q", ErrSparseWeightDecay, p.Name())
				}
				decayed := grad.Dense().Clone()
				tensor.Axpy(g.WeightDecay, p.Tensor(), decayed)
				grad = nn.DenseGrad(decayed)
			}

			clr := EffectiveLR(g.LR, g.LRDecay, st.step)
			if grad.IsSparse() {
				sparseAdagrad(p.Tensor(), st.sum, grad.Sparse(), clr)
			} else {
				denseAdagrad(p.Tensor(), st.sum, grad.Dense(), clr, a.par)
			}
		}
	}

	return loss, nil
}

func denseAdagrad(param, sum, grad *tensor.Tensor, clr float32, cfg parallel.Config) {
	p, s, gd := param.Float32s(), sum.Float32s(), grad.Float32s()
	parallel.ForRange(len(p), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			g := gd[i]
			s[i] += g * g
			p[i] -= clr * g / (math32.Sqrt(s[i]) + adagradEps)
		}
	}, cfg)
}

// sparseAdagrad updates only the coordinates present in grad. Coalescing is
// required: squaring is not linear in repeated indices.
func sparseAdagrad(param, sum *tensor.Tensor, grad *tensor.Sparse, clr float32) {
	grad = grad.Coalesce()
	p, s := param.Float32s(), sum.Float32s()
	for k := 0; k < grad.NNZ(); k++ {
		off := grad.Offset(k)
		for i, g := range grad.Values(k) {
			s[off+i] += g * g
		}
		for i, g := range grad.Values(k) {
			p[off+i] -= clr * g / (math32.Sqrt(s[off+i]) + adagradEps)
		}
	}
}

// State returns the step counter and accumulator of the i-th registered
// parameter. The accumulator aliases the optimizer's buffer.
func (a *Adagrad) State(i int) (int64, *tensor.Tensor) {
	return a.state[i].step, a.state[i].sum
}

// ZeroGrad clears gradients for all parameters.
func (a *Adagrad) ZeroGrad() {
	zeroGrad(a.groups)
}

// ParamGroups returns the live parameter groups.
func (a *Adagrad) ParamGroups() []*ParamGroup {
	return a.groups
}

// GetLR returns the learning rate of the first group.
func (a *Adagrad) GetLR() float32 {
	return a.groups[0].LR
}

// SetLR sets the learning rate of every group.
func (a *Adagrad) SetLR(lr float32) {
	setLR(a.groups, lr)
}

// Name returns "adagrad".
func (a *Adagrad) Name() string {
	return "adagrad"
}

// StateDict exports "sum.{i}" accumulators and "step.{i}" counters.
func (a *Adagrad) StateDict() *StateDict {
	sd := &StateDict{
		Type:    a.Name(),
		Groups:  groupStates(a.groups),
		Tensors: make(map[string]*tensor.Tensor, 2*len(a.state)),
	}
	for i, st := range a.state {
		sd.Tensors[stateKey("sum", i)] = st.sum.Clone()
		sd.Tensors[stateKey("step", i)] = tensor.ScalarInt64(st.step)
	}
	return sd
}

// LoadStateDict restores accumulators and counters. Accumulators are copied
// into the existing buffers so shared handles stay attached. Nothing is
// modified if validation fails.
func (a *Adagrad) LoadStateDict(sd *StateDict) error {
	if err := checkStateDict(sd, a.Name(), a.groups); err != nil {
		return err
	}

	sums := make([]*tensor.Tensor, len(a.params))
	steps := make([]int64, len(a.params))
	for i, p := range a.params {
		sum, err := stateTensor(sd, "sum", i, p)
		if err != nil {
			return err
		}
		step, err := stepTensor(sd, i)
		if err != nil {
			return err
		}
		sums[i], steps[i] = sum, step
	}

	applyGroupStates(a.groups, sd.Groups)
	for i := range a.state {
		tensor.CopyInto(a.state[i].sum, sums[i])
		a.state[i].step = steps[i]
	}
	return nil
}
