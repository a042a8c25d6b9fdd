package optim

import (
	"fmt"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Sparse gradients are densified before the update.
type SGD struct {
	groups     []*ParamGroup
	params     []*nn.Parameter
	velocities []*tensor.Tensor // nil until first used
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float32 // Learning rate (default: 0.01)
	Momentum    float32 // Momentum factor (default: 0.0, range: [0, 1))
	WeightDecay float32 // L2 penalty (default: 0)
}

var sgdOptions = []string{OptLR, OptMomentum, OptWeightDecay}

// NewSGD creates an SGD optimizer over a single parameter group.
func NewSGD(params []*nn.Parameter, config SGDConfig) (*SGD, error) {
	return NewSGDGroups(SingleGroup(params), config)
}

// NewSGDGroups creates an SGD optimizer over explicit parameter groups.
// Accepted option keys: lr, momentum, weight_decay.
func NewSGDGroups(specs []GroupSpec, config SGDConfig) (*SGD, error) {
	if config.LR == 0 {
		config.LR = 0.01
	}
	defaults := ParamGroup{LR: config.LR, Momentum: config.Momentum, WeightDecay: config.WeightDecay}

	groups, params, err := buildGroups(specs, defaults, sgdOptions...)
	if err != nil {
		return nil, err
	}
	for gi, g := range groups {
		for _, err := range []error{
			checkRange("lr", g.LR, 0, false),
			checkBeta("momentum", g.Momentum),
			checkRange("weight_decay", g.WeightDecay, 0, true),
		} {
			if err != nil {
				return nil, fmt.Errorf("group %d: %w", gi, err)
			}
		}
	}

	return &SGD{
		groups:     groups,
		params:     params,
		velocities: make([]*tensor.Tensor, len(params)),
	}, nil
}

// Step performs a single optimization step.
func (s *SGD) Step(closure Closure) (float32, error) {
	loss, err := runClosure(closure)
	if err != nil {
		return loss, err
	}

	for _, g := range s.groups {
		for j, p := range g.Params {
			grad := p.Grad()
			if grad.IsAbsent() {
				continue
			}
			if err := checkGrad(p, grad); err != nil {
				return loss, err
			}

			d := denseGrad(p, grad, g.WeightDecay)
			if g.Momentum != 0 {
				i := g.Index(j)
				if s.velocities[i] == nil {
					s.velocities[i] = tensor.Zeros(p.Shape())
				}
				// velocity = momentum * velocity + grad
				tensor.Scale(g.Momentum, s.velocities[i])
				tensor.Axpy(1, d, s.velocities[i])
				d = s.velocities[i]
			}
			tensor.Axpy(-g.LR, d, p.Tensor())
		}
	}

	return loss, nil
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrad(s.groups)
}

// ParamGroups returns the live parameter groups.
func (s *SGD) ParamGroups() []*ParamGroup {
	return s.groups
}

// GetLR returns the learning rate of the first group.
func (s *SGD) GetLR() float32 {
	return s.groups[0].LR
}

// SetLR updates the learning rate of every group.
//
// Useful for learning rate scheduling during training.
func (s *SGD) SetLR(lr float32) {
	setLR(s.groups, lr)
}

// Name returns "sgd".
func (s *SGD) Name() string {
	return "sgd"
}

// StateDict exports velocity buffers as "velocity.{i}". Parameters that
// have not been updated with momentum yet have no entry.
func (s *SGD) StateDict() *StateDict {
	sd := &StateDict{
		Type:    s.Name(),
		Groups:  groupStates(s.groups),
		Tensors: make(map[string]*tensor.Tensor),
	}
	for i, v := range s.velocities {
		if v == nil {
			continue
		}
		sd.Tensors[stateKey("velocity", i)] = v.Clone()
	}
	return sd
}

// LoadStateDict restores velocity buffers. Missing velocities are
// initialized on the next step.
func (s *SGD) LoadStateDict(sd *StateDict) error {
	if err := checkStateDict(sd, s.Name(), s.groups); err != nil {
		return err
	}

	velocities := make([]*tensor.Tensor, len(s.params))
	for i, p := range s.params {
		if _, ok := sd.Tensors[stateKey("velocity", i)]; !ok {
			continue
		}
		v, err := stateTensor(sd, "velocity", i, p)
		if err != nil {
			return err
		}
		velocities[i] = v.Clone()
	}

	applyGroupStates(s.groups, sd.Groups)
	s.velocities = velocities
	return nil
}
