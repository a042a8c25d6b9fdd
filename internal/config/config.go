// Package config holds the training configuration stored alongside every
// checkpoint.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/optim"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the training configuration. Field names on disk follow the
// original training scripts so existing config files keep loading.
type Config struct {
	Optimizer     string  `json:"optimizer" yaml:"optimizer"`
	LR            float64 `json:"lr" yaml:"lr"`
	LRDecay       float64 `json:"lr_decay" yaml:"lr_decay"`
	AdagradDecay  float64 `json:"adagrad_lr_decay" yaml:"adagrad_lr_decay"`
	InitAccuValue float64 `json:"init_accu_value" yaml:"init_accu_value"`
	WeightDecay   float64 `json:"weight_decay" yaml:"weight_decay"`
	BatchSize     int     `json:"batch_size" yaml:"batch_size"`
	NumEpoch      int     `json:"num_epoch" yaml:"num_epoch"`
	DecayEpoch    int     `json:"decay_epoch" yaml:"decay_epoch"`
	MaxGradNorm   float64 `json:"max_grad_norm" yaml:"max_grad_norm"`
	TopK          int     `json:"topk" yaml:"topk"`
	Seed          int64   `json:"seed" yaml:"seed"`
	CUDA          bool    `json:"cuda" yaml:"cuda"`
	SaveDir       string  `json:"save_dir" yaml:"save_dir"`
	LogStep       int     `json:"log_step" yaml:"log_step"`
	Workers       int     `json:"workers" yaml:"workers"`
	HistoryDB     string  `json:"history_db,omitempty" yaml:"history_db,omitempty"`
}

// Default returns the configuration used when no file or flag overrides it.
func Default() Config {
	return Config{
		Optimizer:     "adagrad",
		LR:            0.3,
		LRDecay:       0.9,
		AdagradDecay:  0,
		InitAccuValue: 0.1,
		WeightDecay:   0,
		BatchSize:     50,
		NumEpoch:      30,
		DecayEpoch:    5,
		MaxGradNorm:   5,
		TopK:          0,
		Seed:          1234,
		CUDA:          false,
		SaveDir:       "./saved_models",
		LogStep:       20,
		Workers:       1,
	}
}

// Validate checks value ranges and the optimizer name.
func (c Config) Validate() error {
	name := strings.ToLower(strings.TrimSpace(c.Optimizer))
	known := false
	for _, n := range optim.Names {
		if n == name {
			known = true
			break
		}
	}

	switch {
	case !known:
		return fmt.Errorf("%w: unknown optimizer %q", ErrInvalid, c.Optimizer)
	case c.LR <= 0:
		return fmt.Errorf("%w: lr must be positive, got %v", ErrInvalid, c.LR)
	case c.LRDecay < 0:
		return fmt.Errorf("%w: lr_decay must be non-negative, got %v", ErrInvalid, c.LRDecay)
	case c.AdagradDecay < 0:
		return fmt.Errorf("%w: adagrad_lr_decay must be non-negative, got %v", ErrInvalid, c.AdagradDecay)
	case c.InitAccuValue < 0:
		return fmt.Errorf("%w: init_accu_value must be non-negative, got %v", ErrInvalid, c.InitAccuValue)
	case c.WeightDecay < 0:
		return fmt.Errorf("%w: weight_decay must be non-negative, got %v", ErrInvalid, c.WeightDecay)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalid, c.BatchSize)
	case c.NumEpoch <= 0:
		return fmt.Errorf("%w: num_epoch must be positive, got %d", ErrInvalid, c.NumEpoch)
	case c.DecayEpoch < 0:
		return fmt.Errorf("%w: decay_epoch must be non-negative, got %d", ErrInvalid, c.DecayEpoch)
	case c.MaxGradNorm < 0:
		return fmt.Errorf("%w: max_grad_norm must be non-negative, got %v", ErrInvalid, c.MaxGradNorm)
	case c.TopK < 0:
		return fmt.Errorf("%w: topk must be non-negative, got %d", ErrInvalid, c.TopK)
	case c.LogStep <= 0:
		return fmt.Errorf("%w: log_step must be positive, got %d", ErrInvalid, c.LogStep)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, c.Workers)
	}
	return nil
}

// Load reads a config file on top of Default. Files ending in .yaml or .yml
// are YAML; anything else is JSON. Unknown JSON fields are rejected.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path, as YAML or JSON depending on the extension.
func (c Config) Save(path string) error {
	var (
		raw []byte
		err error
	)
	if isYAML(path) {
		raw, err = yaml.Marshal(c)
	} else {
		raw, err = json.MarshalIndent(c, "", "  ")
		raw = append(raw, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// RegisterFlags binds every field to a flag on fs, using c's current values
// as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Optimizer, "optim", c.Optimizer, "Optimizer: "+strings.Join(optim.Names, ", "))
	fs.Float64Var(&c.LR, "lr", c.LR, "Learning rate")
	fs.Float64Var(&c.LRDecay, "lr_decay", c.LRDecay, "Learning rate decay applied when the dev score stops improving")
	fs.Float64Var(&c.AdagradDecay, "adagrad_lr_decay", c.AdagradDecay, "Adagrad per-step learning rate decay")
	fs.Float64Var(&c.InitAccuValue, "init_accu_value", c.InitAccuValue, "Initial Adagrad accumulator value")
	fs.Float64Var(&c.WeightDecay, "weight_decay", c.WeightDecay, "L2 weight decay")
	fs.IntVar(&c.BatchSize, "batch_size", c.BatchSize, "Training batch size")
	fs.IntVar(&c.NumEpoch, "num_epoch", c.NumEpoch, "Number of training epochs")
	fs.IntVar(&c.DecayEpoch, "decay_epoch", c.DecayEpoch, "First epoch at which lr decay may apply")
	fs.Float64Var(&c.MaxGradNorm, "max_grad_norm", c.MaxGradNorm, "Gradient clipping norm (0 disables)")
	fs.IntVar(&c.TopK, "topk", c.TopK, "Only finetune the first topk embedding rows (0 disables)")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Random seed")
	fs.BoolVar(&c.CUDA, "cuda", c.CUDA, "Place tensors on CUDA")
	fs.StringVar(&c.SaveDir, "save_dir", c.SaveDir, "Checkpoint directory")
	fs.IntVar(&c.LogStep, "log_step", c.LogStep, "Log every k steps")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Lock-free training workers sharing one accumulator")
	fs.StringVar(&c.HistoryDB, "history_db", c.HistoryDB, "SQLite file recording per-epoch results (empty disables)")
}

// AdagradConfig returns the Adagrad hyperparameters of c. LRDecay is the
// plateau multiplier and is not part of it.
func (c Config) AdagradConfig() optim.AdagradConfig {
	return optim.AdagradConfig{
		LR:            float32(c.LR),
		LRDecay:       float32(c.AdagradDecay),
		InitAccuValue: float32(c.InitAccuValue),
		WeightDecay:   float32(c.WeightDecay),
	}
}

// NewOptimizer builds the optimizer named by c over params. Adagrad gets
// AdagradConfig; the others are built by optim.Get with lr and then take
// weight_decay.
func (c Config) NewOptimizer(params []*nn.Parameter) (optim.Optimizer, error) {
	switch strings.ToLower(strings.TrimSpace(c.Optimizer)) {
	case "adagrad", "myadagrad":
		opt, err := optim.NewAdagrad(params, c.AdagradConfig())
		if err != nil {
			return nil, err
		}
		return opt, nil
	}
	opt, err := optim.Get(c.Optimizer, params, float32(c.LR))
	if err != nil {
		return nil, err
	}
	for _, g := range opt.ParamGroups() {
		g.WeightDecay = float32(c.WeightDecay)
	}
	return opt, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
