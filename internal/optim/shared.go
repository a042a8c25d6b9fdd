package optim

import (
	"fmt"

	"github.com/born-ml/adatrain/internal/parallel"
	"github.com/born-ml/adatrain/internal/tensor"
)

// SharedState is a handle on a set of Adagrad accumulators that several
// optimizer instances update in place.
//
// There is no locking. Concurrent workers may interleave their
// read-modify-write sequences on the same element, so some updates are
// lost. This is the accepted trade-off of Hogwild training; numeric
// semantics of a single Step are unchanged.
type SharedState struct {
	sums []*tensor.Tensor
}

// ShareMemory marks every accumulator as shared and returns a handle from
// which NewAdagradWorker builds additional optimizers over the same buffers.
// Calling it more than once returns handles over the same buffers.
func (a *Adagrad) ShareMemory() *SharedState {
	shared := &SharedState{sums: make([]*tensor.Tensor, len(a.state))}
	for i := range a.state {
		shared.sums[i] = a.state[i].sum.Share()
	}
	return shared
}

// Len returns the number of accumulators in the handle.
func (s *SharedState) Len() int {
	return len(s.sums)
}

// NewAdagradWorker builds an Adagrad instance whose accumulators alias the
// buffers behind shared. specs must register parameters of the same shapes,
// in the same order, as the optimizer that produced shared; typically they
// are per-worker Parameter handles over shared value tensors.
//
// The worker has its own step counters and hyperparameters.
func NewAdagradWorker(specs []GroupSpec, config AdagradConfig, shared *SharedState) (*Adagrad, error) {
	if shared == nil {
		return nil, fmt.Errorf("%w: nil shared state", ErrInvalidConfig)
	}

	groups, params, err := buildGroups(specs, config.group(), adagradOptions...)
	if err != nil {
		return nil, err
	}
	if err := validateAdagrad(groups); err != nil {
		return nil, err
	}
	if len(params) != shared.Len() {
		return nil, fmt.Errorf("%w: worker has %d parameters, shared state has %d",
			ErrStateMismatch, len(params), shared.Len())
	}

	a := &Adagrad{
		groups: groups,
		params: params,
		state:  make([]adagradState, len(params)),
		par:    parallel.Sequential(),
	}
	for i, p := range params {
		sum := shared.sums[i]
		if !sum.Shape().Equal(p.Shape()) {
			return nil, fmt.Errorf("%w: parameter %d %q has shape %v, shared accumulator %v",
				ErrStateMismatch, i, p.Name(), p.Shape(), sum.Shape())
		}
		a.state[i].sum = sum.Share()
	}
	return a, nil
}
