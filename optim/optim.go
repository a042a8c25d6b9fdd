// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/optim"
)

// Optimizer is the common interface of all optimizers.
type Optimizer = optim.Optimizer

// Closure recomputes the loss and gradients inside Step.
type Closure = optim.Closure

// ParamGroup is a set of parameters sharing hyperparameters.
type ParamGroup = optim.ParamGroup

// GroupSpec describes one parameter group at construction.
type GroupSpec = optim.GroupSpec

// StateDict is the serializable optimizer state.
type StateDict = optim.StateDict

// GroupState is the serializable form of a ParamGroup.
type GroupState = optim.GroupState

// Option keys accepted in GroupSpec.Options.
const (
	OptLR            = optim.OptLR
	OptLRDecay       = optim.OptLRDecay
	OptInitAccuValue = optim.OptInitAccuValue
	OptWeightDecay   = optim.OptWeightDecay
	OptMomentum      = optim.OptMomentum
	OptBeta1         = optim.OptBeta1
	OptBeta2         = optim.OptBeta2
	OptEps           = optim.OptEps
)

// Errors returned by construction, Step and LoadStateDict.
var (
	ErrUnknownOption        = optim.ErrUnknownOption
	ErrDuplicateParameter   = optim.ErrDuplicateParameter
	ErrInvalidConfig        = optim.ErrInvalidConfig
	ErrSparseWeightDecay    = optim.ErrSparseWeightDecay
	ErrShapeMismatch        = optim.ErrShapeMismatch
	ErrUnsupportedOptimizer = optim.ErrUnsupportedOptimizer
	ErrStateMismatch        = optim.ErrStateMismatch
)

// SingleGroup wraps params in one group with default options.
func SingleGroup(params []*nn.Parameter) []GroupSpec {
	return optim.SingleGroup(params)
}

// Adagrad

// Adagrad is the adaptive gradient optimizer.
type Adagrad = optim.Adagrad

// AdagradConfig contains the Adagrad defaults.
type AdagradConfig = optim.AdagradConfig

// SharedState is a handle on shared Adagrad accumulators.
type SharedState = optim.SharedState

// DefaultAdagradConfig returns LR 0.01 and InitAccuValue 0.1.
func DefaultAdagradConfig() AdagradConfig {
	return optim.DefaultAdagradConfig()
}

// NewAdagrad creates an Adagrad optimizer.
//
// Example:
//
//	cfg := optim.DefaultAdagradConfig()
//	cfg.LR = 0.3
//	opt, err := optim.NewAdagrad(model.Parameters(), cfg)
func NewAdagrad(params []*nn.Parameter, config AdagradConfig) (*Adagrad, error) {
	return optim.NewAdagrad(params, config)
}

// NewAdagradGroups creates an Adagrad optimizer over explicit groups.
func NewAdagradGroups(specs []GroupSpec, config AdagradConfig) (*Adagrad, error) {
	return optim.NewAdagradGroups(specs, config)
}

// NewAdagradWorker creates an Adagrad optimizer whose accumulators alias
// shared.
func NewAdagradWorker(specs []GroupSpec, config AdagradConfig, shared *SharedState) (*Adagrad, error) {
	return optim.NewAdagradWorker(specs, config, shared)
}

// EffectiveLR returns lr / (1 + (step-1) * lrDecay).
func EffectiveLR(lr, lrDecay float32, step int64) float32 {
	return optim.EffectiveLR(lr, lrDecay, step)
}

// SGD

// SGD is stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig contains the SGD defaults.
type SGDConfig = optim.SGDConfig

// NewSGD creates an SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) (*SGD, error) {
	return optim.NewSGD(params, config)
}

// Adam and Adamax

// Adam is the Adam optimizer with bias correction.
type Adam = optim.Adam

// Adamax is the infinity-norm variant of Adam.
type Adamax = optim.Adamax

// AdamConfig contains the Adam and Adamax defaults.
type AdamConfig = optim.AdamConfig

// NewAdam creates an Adam optimizer.
func NewAdam(params []*nn.Parameter, config AdamConfig) (*Adam, error) {
	return optim.NewAdam(params, config)
}

// NewAdamax creates an Adamax optimizer.
func NewAdamax(params []*nn.Parameter, config AdamConfig) (*Adamax, error) {
	return optim.NewAdamax(params, config)
}

// Selection

// Names lists the names accepted by Get.
var Names = optim.Names

// Get builds an optimizer by (case-insensitive) name.
func Get(name string, params []*nn.Parameter, lr float32) (Optimizer, error) {
	return optim.Get(name, params, lr)
}

// ChangeLR sets the learning rate of every group of opt.
func ChangeLR(opt Optimizer, lr float32) {
	optim.ChangeLR(opt, lr)
}
