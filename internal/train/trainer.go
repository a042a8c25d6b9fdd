package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/born-ml/adatrain/internal/checkpoint"
	"github.com/born-ml/adatrain/internal/config"
	"github.com/born-ml/adatrain/internal/history"
	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/optim"
)

// BestFile is the checkpoint written to Config.SaveDir whenever the
// evaluation score improves.
const BestFile = "best_model.ckpt"

// Option configures a Trainer or Hogwild.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	topk    []*nn.Parameter
	runID   string
	history *history.Store
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

// WithLogger sets the logger for progress and checkpoint diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTopK restricts gradients of params to their first Config.TopK rows
// after every backward pass. Typically the word embedding.
func WithTopK(params ...*nn.Parameter) Option {
	return func(o *options) {
		o.topk = append(o.topk, params...)
	}
}

// WithRunID sets the run id stamped into checkpoint metadata. A random UUID
// is used otherwise.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithHistory records every epoch of Fit in store. Recording failures are
// logged and do not stop training.
func WithHistory(store *history.Store) Option {
	return func(o *options) {
		o.history = store
	}
}

// Evaluator scores the model after an epoch; higher is better.
type Evaluator func(ctx context.Context) (float64, error)

// EpochResult summarizes one epoch of Fit.
type EpochResult struct {
	Epoch     int
	TrainLoss float32
	Score     float64
	LR        float64
	Best      bool
	Decayed   bool
}

// Trainer runs an optimizer over batches of type B.
type Trainer[B any] struct {
	cfg       config.Config
	model     nn.Module
	params    []*nn.Parameter
	opt       optim.Optimizer
	objective Objective[B]
	logger    *slog.Logger
	topk      []*nn.Parameter
	runID     string
	history   *history.Store

	step int
	lr   float64
}

// New creates a Trainer. The optimizer must have been built over
// model.Parameters(); cfg is validated and stored in every checkpoint.
func New[B any](cfg config.Config, model nn.Module, opt optim.Optimizer, objective Objective[B], opts ...Option) (*Trainer[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == nil || opt == nil || objective == nil {
		return nil, errors.New("trainer needs a model, an optimizer and an objective")
	}

	o := newOptions(opts)
	return &Trainer[B]{
		cfg:       cfg,
		model:     model,
		params:    model.Parameters(),
		opt:       opt,
		objective: objective,
		logger:    o.logger,
		topk:      o.topk,
		runID:     o.runID,
		history:   o.history,
		lr:        float64(opt.GetLR()),
	}, nil
}

// Steps returns the number of optimizer steps taken so far.
func (t *Trainer[B]) Steps() int {
	return t.step
}

// LR returns the current learning rate.
func (t *Trainer[B]) LR() float64 {
	return t.lr
}

// RunID returns the id stamped into checkpoints.
func (t *Trainer[B]) RunID() string {
	return t.runID
}

// Step takes one optimizer step on batch and returns its loss.
func (t *Trainer[B]) Step(batch B) (float32, error) {
	loss, err := t.opt.Step(func() (float32, error) {
		nn.ZeroGrad(t.params)
		loss, err := t.objective.Loss(batch)
		if err != nil {
			return 0, err
		}
		if t.cfg.TopK > 0 {
			for _, p := range t.topk {
				nn.KeepPartialParamGrad(p, t.cfg.TopK)
			}
		}
		if t.cfg.MaxGradNorm > 0 {
			ClipGradNorm(t.params, float32(t.cfg.MaxGradNorm))
		}
		return loss, nil
	})
	if err != nil {
		return 0, fmt.Errorf("step %d: %w", t.step+1, err)
	}

	t.step++
	if t.step%t.cfg.LogStep == 0 {
		t.logger.Info("train step", "step", t.step, "loss", loss, "lr", t.lr)
	}
	return loss, nil
}

// Epoch steps over every batch and returns the mean loss. It stops between
// batches when ctx is done.
func (t *Trainer[B]) Epoch(ctx context.Context, batches []B) (float32, error) {
	var total float32
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		loss, err := t.Step(b)
		if err != nil {
			return 0, err
		}
		total += loss
	}
	if len(batches) == 0 {
		return 0, nil
	}
	return total / float32(len(batches)), nil
}

// Fit trains for Config.NumEpoch epochs. After each epoch the model is
// scored with eval (the negated training loss when eval is nil); an
// improved score is checkpointed to Config.SaveDir/BestFile, and a
// non-improving one may decay the learning rate (see DecayLR).
//
// Checkpoint failures are logged and do not stop training.
func (t *Trainer[B]) Fit(ctx context.Context, batches []B, eval Evaluator) ([]EpochResult, error) {
	if t.cfg.SaveDir != "" {
		if err := os.MkdirAll(t.cfg.SaveDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create save dir: %w", err)
		}
	}

	if t.history != nil {
		if err := t.history.StartRun(ctx, t.runID, t.opt.Name(), t.cfg); err != nil {
			t.logger.Warn("history unavailable", "error", err)
		}
	}

	var (
		results []EpochResult
		scores  []float64
	)
	for epoch := 1; epoch <= t.cfg.NumEpoch; epoch++ {
		loss, err := t.Epoch(ctx, batches)
		if err != nil {
			return results, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		score := -float64(loss)
		if eval != nil {
			if score, err = eval(ctx); err != nil {
				return results, fmt.Errorf("epoch %d: evaluate: %w", epoch, err)
			}
		}

		res := EpochResult{Epoch: epoch, TrainLoss: loss, Score: score, LR: t.lr}
		res.Best = len(scores) == 0 || score > slices.Max(scores)
		if res.Best {
			t.saveBest(epoch, score)
		}
		if lr, ok := DecayLR(t.cfg, epoch, score, scores, t.lr); ok {
			t.lr = lr
			optim.ChangeLR(t.opt, float32(lr))
			res.Decayed = true
			t.logger.Info("learning rate decayed", "epoch", epoch, "lr", lr)
		}

		t.record(ctx, res)
		t.logger.Info("epoch done", "epoch", epoch, "train_loss", loss, "score", score, "best", res.Best)
		scores = append(scores, score)
		results = append(results, res)
	}
	return results, nil
}

func (t *Trainer[B]) record(ctx context.Context, res EpochResult) {
	if t.history == nil {
		return
	}
	err := t.history.Record(ctx, t.runID, history.Epoch{
		Epoch:     res.Epoch,
		TrainLoss: float64(res.TrainLoss),
		Score:     res.Score,
		LR:        res.LR,
		Best:      res.Best,
		Decayed:   res.Decayed,
	})
	if err != nil {
		t.logger.Warn("history record failed", "epoch", res.Epoch, "error", err)
	}
}

func (t *Trainer[B]) saveBest(epoch int, score float64) {
	if t.cfg.SaveDir == "" {
		return
	}
	path := filepath.Join(t.cfg.SaveDir, BestFile)
	// best-effort: Save logs its own failures
	_ = checkpoint.Save(path, t.model, t.opt, t.cfg,
		checkpoint.WithLogger(t.logger),
		checkpoint.WithMetadata(map[string]string{
			"run_id": t.runID,
			"epoch":  strconv.Itoa(epoch),
			"score":  strconv.FormatFloat(score, 'g', -1, 64),
		}))
}

