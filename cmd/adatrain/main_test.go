package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/born-ml/adatrain/internal/checkpoint"
	"github.com/born-ml/adatrain/internal/config"
	"github.com/born-ml/adatrain/internal/history"
	"github.com/born-ml/adatrain/internal/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommands(t *testing.T) {
	require.NoError(t, run(nil))
	require.NoError(t, run([]string{"version"}))
	require.Error(t, run([]string{"serve"}))
	require.Error(t, run([]string{"inspect"}))
}

func TestConfigCommandWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, run([]string{"config", "-o", path, "-optim", "sgd", "-lr", "0.5"}))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sgd", cfg.Optimizer)
	assert.InDelta(t, 0.5, cfg.LR, 1e-12)
}

func TestDemoAndInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "demo.json")
	base := config.Default()
	base.NumEpoch = 2
	base.BatchSize = 20
	require.NoError(t, base.Save(cfgPath))

	require.NoError(t, run([]string{"demo", "-config", cfgPath, "-samples", "100", "-save_dir", dir}))

	path := filepath.Join(dir, train.BestFile)
	got, err := checkpoint.LoadConfig[config.Config](path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumEpoch)
	assert.Equal(t, 20, got.BatchSize)
	assert.Equal(t, dir, got.SaveDir)

	require.NoError(t, run([]string{"inspect", path}))
}

func TestDemoRejectsCUDA(t *testing.T) {
	err := run([]string{"demo", "-samples", "10", "-cuda", "-save_dir", t.TempDir()})
	require.Error(t, err)
}

func TestParseDemoFlagsOverrideFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "demo.yaml")
	base := config.Default()
	base.LR = 0.7
	base.TopK = 3
	require.NoError(t, base.Save(cfgPath))

	o, err := parseDemo([]string{"-config", cfgPath, "-lr", "0.2", "-samples", "5"})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, o.cfg.LR, 1e-12)
	assert.Equal(t, 3, o.cfg.TopK)
	assert.Equal(t, 5, o.samples)
}

func TestDemoRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")

	require.NoError(t, run([]string{"demo", "-samples", "60", "-batch_size", "20", "-num_epoch", "3",
		"-save_dir", dir, "-history_db", db}))

	ctx := context.Background()
	store, err := history.Open(ctx, db)
	require.NoError(t, err)
	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	epochs, err := store.Epochs(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, epochs, 3)
	require.NoError(t, store.Close())

	require.NoError(t, run([]string{"history", db}))
	require.NoError(t, run([]string{"history", db, runs[0].ID}))
	require.Error(t, run([]string{"history", filepath.Join(dir, "missing.db")}))
	require.Error(t, run([]string{"history"}))
}

func TestDemoPassesAdagradSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run([]string{"demo", "-samples", "60", "-batch_size", "20", "-num_epoch", "2",
		"-init_accu_value", "0.5", "-weight_decay", "0.01", "-save_dir", dir}))

	info, err := checkpoint.Inspect(filepath.Join(dir, train.BestFile))
	require.NoError(t, err)
	require.NotNil(t, info.Optimizer)
	assert.Equal(t, "adagrad", info.Optimizer.Type)
	g := info.Optimizer.Groups[0]
	assert.InDelta(t, 0.5, g.InitAccuValue, 1e-6)
	assert.InDelta(t, 0.01, g.WeightDecay, 1e-6)
	assert.Zero(t, g.LRDecay)
}

func TestDemoHogwildIgnoresPlateauDecay(t *testing.T) {
	if raceEnabled {
		t.Skip("hogwild workers race by design")
	}
	dir := t.TempDir()
	require.NoError(t, run([]string{"demo", "-samples", "60", "-batch_size", "10", "-num_epoch", "2",
		"-workers", "2", "-lr_decay", "0.9", "-init_accu_value", "0.5", "-save_dir", dir}))

	info, err := checkpoint.Inspect(filepath.Join(dir, "hogwild.ckpt"))
	require.NoError(t, err)
	require.NotNil(t, info.Optimizer)
	g := info.Optimizer.Groups[0]
	assert.Zero(t, g.LRDecay)
	assert.InDelta(t, 0.5, g.InitAccuValue, 1e-6)

	require.NoError(t, run([]string{"demo", "-samples", "60", "-batch_size", "10", "-num_epoch", "2",
		"-workers", "2", "-adagrad_lr_decay", "0.05", "-save_dir", dir}))
	info, err = checkpoint.Inspect(filepath.Join(dir, "hogwild.ckpt"))
	require.NoError(t, err)
	assert.InDelta(t, 0.05, info.Optimizer.Groups[0].LRDecay, 1e-6)
}
