// Package optim implements the optimizers used by the training driver.
//
// This package provides:
//   - Optimizer interface: Step with an optional closure, parameter groups,
//     learning-rate access and state dictionaries
//   - Adagrad: adaptive gradient with a configurable initial accumulator,
//     dense and sparse update paths, and shareable accumulators
//   - SGD, Adam, Adamax: stock optimizers reachable through Get
//
// State is kept per parameter in slices indexed by the order in which
// parameters were registered, never by pointer identity.
//
// Example usage:
//
//	opt, err := optim.Get("adagrad", model.Parameters(), 0.1)
//	if err != nil {
//	    return err
//	}
//	for _, batch := range batches {
//	    loss, err := opt.Step(func() (float32, error) {
//	        return objective.Loss(batch)
//	    })
//	    ...
//	    opt.ZeroGrad()
//	}
package optim

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/adatrain/internal/nn"
)

// Errors returned by optimizer construction and Step.
var (
	ErrUnknownOption        = errors.New("unknown optimizer option")
	ErrDuplicateParameter   = errors.New("some parameters appear in more than one parameter group")
	ErrInvalidConfig        = errors.New("invalid optimizer configuration")
	ErrSparseWeightDecay    = errors.New("weight_decay option is not compatible with sparse gradients")
	ErrShapeMismatch        = errors.New("gradient shape does not match parameter")
	ErrUnsupportedOptimizer = errors.New("unsupported optimizer")
	ErrStateMismatch        = errors.New("optimizer state does not match")
)

// Option keys accepted in GroupSpec.Options.
const (
	OptLR            = "lr"
	OptLRDecay       = "lr_decay"
	OptInitAccuValue = "init_accu_value"
	OptWeightDecay   = "weight_decay"
	OptMomentum      = "momentum"
	OptBeta1         = "beta1"
	OptBeta2         = "beta2"
	OptEps           = "eps"
)

// Closure re-evaluates the model and returns the loss. Step calls it before
// updating and returns its loss.
type Closure func() (float32, error)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step runs closure (if non-nil) and then updates every parameter that
	// has a gradient. It returns the closure's loss, or 0 without a closure.
	Step(closure Closure) (float32, error)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// ParamGroups returns the live parameter groups. Hyperparameters may be
	// edited in place; edits apply to the next Step.
	ParamGroups() []*ParamGroup

	// GetLR returns the learning rate of the first group.
	GetLR() float32

	// SetLR sets the learning rate of every group.
	SetLR(lr float32)

	// StateDict snapshots hyperparameters and per-parameter buffers.
	StateDict() *StateDict

	// LoadStateDict restores a snapshot taken from an optimizer of the same
	// type over parameters of the same shapes.
	LoadStateDict(sd *StateDict) error

	// Name returns the selection name ("adagrad", "sgd", ...).
	Name() string
}

// GroupSpec describes one parameter group at construction time. Options
// override the optimizer's defaults for this group only.
type GroupSpec struct {
	Params  []*nn.Parameter
	Options map[string]float64
}

// ParamGroup is a set of parameters sharing one hyperparameter set. Only
// the fields relevant to the owning optimizer are used.
type ParamGroup struct {
	Params        []*nn.Parameter
	LR            float32
	LRDecay       float32
	InitAccuValue float32
	WeightDecay   float32
	Momentum      float32
	Betas         [2]float32
	Eps           float32

	first int // global index of Params[0]
}

// Index returns the global, registration-order index of the group's j-th
// parameter.
func (g *ParamGroup) Index(j int) int {
	return g.first + j
}

func (g *ParamGroup) set(key string, v float64) {
	switch key {
	case OptLR:
		g.LR = float32(v)
	case OptLRDecay:
		g.LRDecay = float32(v)
	case OptInitAccuValue:
		g.InitAccuValue = float32(v)
	case OptWeightDecay:
		g.WeightDecay = float32(v)
	case OptMomentum:
		g.Momentum = float32(v)
	case OptBeta1:
		g.Betas[0] = float32(v)
	case OptBeta2:
		g.Betas[1] = float32(v)
	case OptEps:
		g.Eps = float32(v)
	}
}

// SingleGroup wraps params in one GroupSpec with no overrides.
func SingleGroup(params []*nn.Parameter) []GroupSpec {
	return []GroupSpec{{Params: params}}
}

// buildGroups validates specs against the allowed option keys and returns
// the groups (defaults applied) plus the flat parameter list whose indices
// identify per-parameter state.
func buildGroups(specs []GroupSpec, defaults ParamGroup, allowed ...string) ([]*ParamGroup, []*nn.Parameter, error) {
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("%w: optimizer got an empty parameter list", ErrInvalidConfig)
	}

	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}

	seen := make(map[*nn.Parameter]int)
	var (
		groups []*ParamGroup
		flat   []*nn.Parameter
	)
	for gi, spec := range specs {
		if err := checkOptions(spec.Options, ok, allowed); err != nil {
			return nil, nil, fmt.Errorf("group %d: %w", gi, err)
		}

		g := defaults
		g.Params = nil
		g.first = len(flat)
		for _, key := range sortedKeys(spec.Options) {
			g.set(key, spec.Options[key])
		}

		for _, p := range spec.Params {
			if p == nil {
				return nil, nil, fmt.Errorf("%w: group %d has a nil parameter", ErrInvalidConfig, gi)
			}
			if prev, dup := seen[p]; dup {
				return nil, nil, fmt.Errorf("%w: %q (groups %d and %d)", ErrDuplicateParameter, p.Name(), prev, gi)
			}
			seen[p] = gi
			g.Params = append(g.Params, p)
			flat = append(flat, p)
		}
		groups = append(groups, &g)
	}

	return groups, flat, nil
}

func checkOptions(opts map[string]float64, ok map[string]bool, allowed []string) error {
	for _, key := range sortedKeys(opts) {
		if !ok[key] {
			return fmt.Errorf("%w %q (accepted: %s)", ErrUnknownOption, key, strings.Join(allowed, ", "))
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func checkRange(name string, v float32, minimum float32, inclusive bool) error {
	if v < minimum || (!inclusive && v == minimum) {
		op := ">"
		if inclusive {
			op = ">="
		}
		return fmt.Errorf("%w: %s must be %s %v, got %v", ErrInvalidConfig, name, op, minimum, v)
	}
	return nil
}

func checkBeta(name string, v float32) error {
	if v < 0 || v >= 1 {
		return fmt.Errorf("%w: %s must be in [0, 1), got %v", ErrInvalidConfig, name, v)
	}
	return nil
}

// checkGrad verifies the gradient's logical shape matches the parameter.
func checkGrad(p *nn.Parameter, g nn.Gradient) error {
	if !g.Shape().Equal(p.Shape()) {
		return fmt.Errorf("%w: %q has shape %v, gradient %v", ErrShapeMismatch, p.Name(), p.Shape(), g.Shape())
	}
	return nil
}

// zeroGrad clears gradients across groups.
func zeroGrad(groups []*ParamGroup) {
	for _, g := range groups {
		nn.ZeroGrad(g.Params)
	}
}

func setLR(groups []*ParamGroup, lr float32) {
	for _, g := range groups {
		g.LR = lr
	}
}

func runClosure(closure Closure) (float32, error) {
	if closure == nil {
		return 0, nil
	}
	loss, err := closure()
	if err != nil {
		return loss, fmt.Errorf("closure: %w", err)
	}
	return loss, nil
}
