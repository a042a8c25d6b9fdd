// Package main provides the adatrain CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/born-ml/adatrain/internal/checkpoint"
	"github.com/born-ml/adatrain/internal/config"
	"github.com/born-ml/adatrain/internal/history"
	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
	"github.com/born-ml/adatrain/internal/train"
)

const version = "v0.1.0-dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "adatrain: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	switch args[0] {
	case "version":
		fmt.Printf("adatrain %s\n", version)
		return nil
	case "config":
		return configCmd(args[1:])
	case "inspect":
		return inspectCmd(args[1:])
	case "demo":
		return demoCmd(args[1:])
	case "history":
		return historyCmd(args[1:])
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Println("adatrain - Adagrad training utilities")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version              Show version")
	fmt.Println("  config [-o file]     Print (or write) the default training config")
	fmt.Println("  inspect <file>       Show a checkpoint header")
	fmt.Println("  demo [flags]         Fit a linear model on synthetic data and checkpoint it")
	fmt.Println("  history <db> [run]   List recorded runs, or the epochs of one run")
}

func configCmd(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	out := fs.String("o", "", "Write the config to this file (.json, .yaml) instead of stdout")
	cfg := config.Default()
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if *out != "" {
		return cfg.Save(*out)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func inspectCmd(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	skipChecksum := fs.Bool("skip-checksum", false, "Do not verify the data checksum")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect needs exactly one checkpoint path")
	}

	var opts []checkpoint.Option
	if *skipChecksum {
		opts = append(opts, checkpoint.WithoutChecksum())
	}
	info, err := checkpoint.Inspect(fs.Arg(0), opts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func historyCmd(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("history needs a database path and an optional run id")
	}
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("history database: %w", err)
	}

	ctx := context.Background()
	store, err := history.Open(ctx, args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	var out any
	if len(args) == 1 {
		out, err = store.Runs(ctx)
	} else {
		out, err = store.Epochs(ctx, args[1])
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type demoOptions struct {
	cfg     config.Config
	samples int
	verbose bool
}

// parseDemo parses args twice: once to find -config, then again on top of
// the loaded file so that flags override it.
func parseDemo(args []string) (demoOptions, error) {
	base := config.Default()
	base.NumEpoch = 10
	base.SaveDir = filepath.Join(os.TempDir(), "adatrain-demo")

	var cfgPath string
	for pass := range 2 {
		o := demoOptions{cfg: base}
		fs := flag.NewFlagSet("demo", flag.ContinueOnError)
		fs.StringVar(&cfgPath, "config", cfgPath, "Load the config from this file; flags override it")
		fs.IntVar(&o.samples, "samples", 2000, "Number of synthetic samples")
		fs.BoolVar(&o.verbose, "v", false, "Debug logging")
		o.cfg.RegisterFlags(fs)
		if pass == 0 {
			fs.SetOutput(io.Discard)
		}
		if err := fs.Parse(args); err != nil {
			return demoOptions{}, err
		}

		if pass == 1 || cfgPath == "" {
			return o, o.cfg.Validate()
		}
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return demoOptions{}, err
		}
		base = loaded
	}
	panic("unreachable")
}

func demoCmd(args []string) error {
	o, err := parseDemo(args)
	if err != nil {
		return err
	}
	cfg := o.cfg

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := rand.New(rand.NewSource(cfg.Seed))
	batches, err := synthetic(r, o.samples, cfg.BatchSize, cfg.CUDA)
	if err != nil {
		return err
	}
	model := nn.NewLinear(len(trueWeights), 1, r)

	if cfg.Workers > 1 && strings.Contains(strings.ToLower(cfg.Optimizer), "adagrad") {
		return demoHogwild(ctx, cfg, model, batches, logger)
	}

	opt, err := cfg.NewOptimizer(model.Parameters())
	if err != nil {
		return err
	}
	trainOpts := []train.Option{train.WithLogger(logger)}
	if cfg.HistoryDB != "" {
		store, err := history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		trainOpts = append(trainOpts, train.WithHistory(store))
	}
	tr, err := train.New[train.Regression](cfg, model, opt, train.LeastSquares{Model: model}, trainOpts...)
	if err != nil {
		return err
	}
	results, err := tr.Fit(ctx, batches, nil)
	if err != nil {
		return err
	}

	last := results[len(results)-1]
	fmt.Printf("optimizer=%s epochs=%d final_loss=%.6f lr=%g\n", opt.Name(), len(results), last.TrainLoss, tr.LR())
	fmt.Printf("weights=%v bias=%v (true %v, %v)\n",
		model.Weight().Tensor().Float32s(), model.Bias().Tensor().Float32s(), trueWeights, trueBias)
	fmt.Printf("checkpoint: %s\n", filepath.Join(cfg.SaveDir, train.BestFile))
	if cfg.HistoryDB != "" {
		fmt.Printf("history: %s run=%s\n", cfg.HistoryDB, tr.RunID())
	}
	return nil
}

func demoHogwild(ctx context.Context, cfg config.Config, model *nn.Linear, batches []train.Regression, logger *slog.Logger) error {
	shards := make([][]train.Regression, cfg.Workers)
	for i, b := range batches {
		shards[i%cfg.Workers] = append(shards[i%cfg.Workers], b)
	}

	hcfg := train.HogwildConfig{
		Adagrad: cfg.AdagradConfig(),
		Epochs:  cfg.NumEpoch,
		LogStep: cfg.LogStep,
	}
	replicate := func(int) train.Replica[train.Regression] {
		s := model.Share()
		return train.Replica[train.Regression]{Params: s.Parameters(), Objective: train.LeastSquares{Model: s}}
	}
	opt, err := train.Hogwild(ctx, model.Parameters(), hcfg, shards, replicate, train.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfg.SaveDir, "hogwild.ckpt")
	if err := checkpoint.Save(path, model, opt, cfg, checkpoint.WithLogger(logger)); err != nil {
		return err
	}

	fmt.Printf("optimizer=adagrad workers=%d epochs=%d\n", cfg.Workers, cfg.NumEpoch)
	fmt.Printf("weights=%v bias=%v (true %v, %v)\n",
		model.Weight().Tensor().Float32s(), model.Bias().Tensor().Float32s(), trueWeights, trueBias)
	fmt.Printf("checkpoint: %s\n", path)
	return nil
}

var (
	trueWeights = []float32{2, -3.5, 0.5}
	trueBias    = float32(1)
)

// synthetic draws y = x @ trueWeights + trueBias + noise in batches.
func synthetic(r *rand.Rand, n, batchSize int, cuda bool) ([]train.Regression, error) {
	in := len(trueWeights)
	var batches []train.Regression
	for start := 0; start < n; start += batchSize {
		size := min(batchSize, n-start)
		x := make([]float32, size*in)
		y := make([]float32, size)
		for i := range size {
			y[i] = trueBias + float32(r.NormFloat64()*0.01)
			for j, w := range trueWeights {
				v := float32(r.NormFloat64())
				x[i*in+j] = v
				y[i] += w * v
			}
		}

		xt, err := tensor.SetCUDA(tensor.MustFromFloat32(x, tensor.Shape{size, in}), cuda)
		if err != nil {
			return nil, err
		}
		yt, err := tensor.SetCUDA(tensor.MustFromFloat32(y, tensor.Shape{size, 1}), cuda)
		if err != nil {
			return nil, err
		}
		batches = append(batches, train.Regression{X: xt, Y: yt})
	}
	return batches, nil
}

