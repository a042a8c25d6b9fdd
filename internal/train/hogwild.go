package train

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/optim"
	"github.com/born-ml/adatrain/internal/parallel"
)

// Replica is one worker's view of the model: parameter handles over the
// shared value buffers (see nn.Linear.Share and tensor.Tensor.Share) and an
// objective computing gradients into those handles.
type Replica[B any] struct {
	Params    []*nn.Parameter
	Objective Objective[B]
}

// HogwildConfig configures Hogwild.
type HogwildConfig struct {
	Adagrad optim.AdagradConfig
	Epochs  int // passes over each shard (default 1)
	LogStep int // log every k worker steps (0 disables)
}

// Hogwild trains params with one goroutine per shard and no locking.
//
// A primary Adagrad optimizer is built over params and its accumulators are
// shared with one worker optimizer per shard. replicate(i) must return
// handles aliasing params' buffers in the same order. Workers update values
// and accumulators concurrently, so updates may be lost; each worker keeps
// its own step counters.
//
// The primary optimizer is returned so its accumulators can be
// checkpointed. Its own step counters stay at zero.
func Hogwild[B any](ctx context.Context, params []*nn.Parameter, cfg HogwildConfig, shards [][]B,
	replicate func(worker int) Replica[B], opts ...Option) (*optim.Adagrad, error) {
	if len(shards) == 0 {
		return nil, errors.New("hogwild: no shards")
	}
	if replicate == nil {
		return nil, errors.New("hogwild: nil replicate")
	}
	epochs := max(cfg.Epochs, 1)
	o := newOptions(opts)

	primary, err := optim.NewAdagrad(params, cfg.Adagrad)
	if err != nil {
		return nil, fmt.Errorf("hogwild: %w", err)
	}
	shared := primary.ShareMemory()

	replicas := make([]Replica[B], len(shards))
	workers := make([]*optim.Adagrad, len(shards))
	for i := range shards {
		r := replicate(i)
		if err := checkReplica(params, r.Params); err != nil {
			return nil, fmt.Errorf("hogwild: worker %d: %w", i, err)
		}
		if r.Objective == nil {
			return nil, fmt.Errorf("hogwild: worker %d: nil objective", i)
		}
		w, err := optim.NewAdagradWorker([]optim.GroupSpec{{Params: r.Params}}, cfg.Adagrad, shared)
		if err != nil {
			return nil, fmt.Errorf("hogwild: worker %d: %w", i, err)
		}
		replicas[i], workers[i] = r, w
	}

	o.logger.Info("hogwild training", "workers", len(shards), "epochs", epochs, "run_id", o.runID)
	err = parallel.Workers(ctx, len(shards), func(ctx context.Context, id int) error {
		r, opt := replicas[id], workers[id]
		steps := 0
		for epoch := range epochs {
			for _, b := range shards[id] {
				if err := ctx.Err(); err != nil {
					return err
				}
				loss, err := opt.Step(func() (float32, error) {
					nn.ZeroGrad(r.Params)
					return r.Objective.Loss(b)
				})
				if err != nil {
					return err
				}
				steps++
				if cfg.LogStep > 0 && steps%cfg.LogStep == 0 {
					o.logger.Debug("hogwild step", "worker", id, "epoch", epoch+1, "step", steps, "loss", loss)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hogwild: %w", err)
	}
	return primary, nil
}

func checkReplica(params, replica []*nn.Parameter) error {
	if len(replica) != len(params) {
		return fmt.Errorf("replica has %d parameters, model has %d", len(replica), len(params))
	}
	for j, p := range params {
		if !replica[j].Tensor().SameStorage(p.Tensor()) {
			return fmt.Errorf("replica parameter %d %q does not share storage with %q", j, replica[j].Name(), p.Name())
		}
	}
	return nil
}
