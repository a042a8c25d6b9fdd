package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/born-ml/adatrain/internal/optim"
	"github.com/born-ml/adatrain/internal/tensor"
)

// Model is anything whose weights round-trip through a state dictionary.
// *nn.Container and the nn layers satisfy it.
type Model interface {
	StateDict() map[string]*tensor.Tensor
	LoadStateDict(stateDict map[string]*tensor.Tensor) error
}

// Option configures Save, Load, LoadConfig and Inspect.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	metadata map[string]string
	reader   ReaderOptions
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used for save and load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetadata attaches free-form string metadata to a saved checkpoint.
func WithMetadata(metadata map[string]string) Option {
	return func(o *options) {
		o.metadata = metadata
	}
}

// WithValidation sets the reader validation level (default strict).
func WithValidation(level ValidationLevel) Option {
	return func(o *options) {
		o.reader.ValidationLevel = level
	}
}

// WithoutChecksum skips checksum verification on read.
func WithoutChecksum() Option {
	return func(o *options) {
		o.reader.SkipChecksumValidation = true
	}
}

// Save writes model weights, optimizer state and cfg to path. opt and cfg
// may be nil. The file is replaced atomically.
//
// Save is best-effort: a failure is logged as a warning and returned, and
// callers in a training loop are expected to carry on.
func Save(path string, model Model, opt optim.Optimizer, cfg any, opts ...Option) error {
	o := newOptions(opts)
	n, err := save(path, model, opt, cfg, o)
	if err != nil {
		o.logger.Warn("checkpoint save failed", "path", path, "error", err)
		return fmt.Errorf("save checkpoint %s: %w", path, err)
	}
	o.logger.Info("checkpoint saved", "path", path, "tensors", n)
	return nil
}

func save(path string, model Model, opt optim.Optimizer, cfg any, o *options) (int, error) {
	if model == nil {
		return 0, fmt.Errorf("nil model")
	}

	tensors := make(map[string]*tensor.Tensor)
	for key, t := range model.StateDict() {
		tensors[ModelPrefix+key] = t
	}

	header := Header{
		CreatedAt: time.Now().UTC(),
		Metadata:  o.metadata,
	}

	if opt != nil {
		sd := opt.StateDict()
		for key, t := range sd.Tensors {
			tensors[OptimizerPrefix+key] = t
		}
		header.Optimizer = &OptimizerMeta{Type: sd.Type, Groups: sd.Groups}
	}

	if cfg != nil {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal config: %w", err)
		}
		header.Config = raw
	}

	if err := WriteFile(path, tensors, header); err != nil {
		return 0, err
	}
	return len(tensors), nil
}

// Load restores model and opt from path and returns the stored config.
// model and opt may be nil to skip them. A checkpoint saved without a config
// yields the zero config. On any failure model and opt are left as they were;
// the failure is logged and returned, and the returned config is then the
// zero value and must not be used.
func Load[C any](path string, model Model, opt optim.Optimizer, opts ...Option) (C, error) {
	o := newOptions(opts)
	cfg, err := load[C](path, model, opt, o)
	if err != nil {
		o.logger.Error("checkpoint load failed", "path", path, "error", err)
		var zero C
		return zero, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	o.logger.Info("checkpoint loaded", "path", path)
	return cfg, nil
}

func load[C any](path string, model Model, opt optim.Optimizer, o *options) (C, error) {
	var cfg C

	r, err := OpenReaderWithOptions(path, o.reader)
	if err != nil {
		return cfg, err
	}
	defer func() { _ = r.Close() }()

	header := r.Header()
	if len(header.Config) > 0 {
		if cfg, err = decodeConfig[C](header); err != nil {
			return cfg, err
		}
	}
	if opt != nil && header.Optimizer == nil {
		return cfg, ErrNoOptimizer
	}

	all, err := r.ReadAll()
	if err != nil {
		return cfg, err
	}
	modelState, optState := split(all)

	// optimizer loads are all-or-nothing; the model is rolled back by hand
	var backup map[string]*tensor.Tensor
	if model != nil {
		backup = snapshot(model)
		if err := model.LoadStateDict(modelState); err != nil {
			restore(model, backup)
			return cfg, fmt.Errorf("model: %w", err)
		}
	}
	if opt != nil {
		sd := &optim.StateDict{
			Type:    header.Optimizer.Type,
			Groups:  header.Optimizer.Groups,
			Tensors: optState,
		}
		if err := opt.LoadStateDict(sd); err != nil {
			if model != nil {
				restore(model, backup)
			}
			return cfg, fmt.Errorf("optimizer: %w", err)
		}
	}

	return cfg, nil
}

func snapshot(model Model) map[string]*tensor.Tensor {
	live := model.StateDict()
	backup := make(map[string]*tensor.Tensor, len(live))
	for k, t := range live {
		backup[k] = t.Clone()
	}
	return backup
}

// restore copies backup into the live state dict. Keys and shapes come from
// the model itself, so the copy cannot fail.
func restore(model Model, backup map[string]*tensor.Tensor) {
	for k, t := range model.StateDict() {
		if b, ok := backup[k]; ok {
			tensor.CopyInto(t, b)
		}
	}
}

// LoadConfig reads only the stored config. Tensor data is still checksummed
// unless WithoutChecksum is given.
func LoadConfig[C any](path string, opts ...Option) (C, error) {
	o := newOptions(opts)
	r, err := OpenReaderWithOptions(path, o.reader)
	if err != nil {
		var zero C
		return zero, fmt.Errorf("load config %s: %w", path, err)
	}
	defer func() { _ = r.Close() }()

	cfg, err := decodeConfig[C](r.Header())
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeConfig[C any](h Header) (C, error) {
	var cfg C
	if len(h.Config) == 0 {
		return cfg, ErrNoConfig
	}
	if err := json.Unmarshal(h.Config, &cfg); err != nil {
		var zero C
		return zero, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// split separates full tensor names into model and optimizer state keyed
// without their prefixes.
func split(all map[string]*tensor.Tensor) (model, opt map[string]*tensor.Tensor) {
	model = make(map[string]*tensor.Tensor)
	opt = make(map[string]*tensor.Tensor)
	for name, t := range all {
		if key, ok := strings.CutPrefix(name, OptimizerPrefix); ok {
			opt[key] = t
		} else if key, ok := strings.CutPrefix(name, ModelPrefix); ok {
			model[key] = t
		}
	}
	return model, opt
}

// Info summarizes a checkpoint without loading its tensors.
type Info struct {
	Path          string            `json:"path"`
	FormatVersion int               `json:"format_version"`
	WriterVersion string            `json:"writer_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Flags         uint32            `json:"flags"`
	Checksum      string            `json:"checksum"`
	DataSize      int64             `json:"data_size"`
	Tensors       []TensorMeta      `json:"tensors"`
	Optimizer     *OptimizerMeta    `json:"optimizer,omitempty"`
	Config        json.RawMessage   `json:"config,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Inspect opens and validates path and returns its header summary.
func Inspect(path string, opts ...Option) (*Info, error) {
	o := newOptions(opts)
	r, err := OpenReaderWithOptions(path, o.reader)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	defer func() { _ = r.Close() }()

	h := r.Header()
	sum := r.Checksum()
	return &Info{
		Path:          path,
		FormatVersion: h.FormatVersion,
		WriterVersion: h.WriterVersion,
		CreatedAt:     h.CreatedAt,
		Flags:         r.Flags(),
		Checksum:      hex.EncodeToString(sum[:]),
		DataSize:      r.dataSize,
		Tensors:       h.Tensors,
		Optimizer:     h.Optimizer,
		Config:        h.Config,
		Metadata:      h.Metadata,
	}, nil
}
