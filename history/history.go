// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package history records training runs and per-epoch results in SQLite.
//
// Example:
//
//	store, err := history.Open(ctx, "runs.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	trainer, err := train.New(cfg, model, opt, objective, train.WithHistory(store))
package history

import (
	"github.com/born-ml/adatrain/internal/history"
)

// Store is a run history backed by SQLite.
type Store = history.Store

// Run is one training run.
type Run = history.Run

// Epoch is the result of one epoch of a run.
type Epoch = history.Epoch

// ErrNotFound is returned when a run has no recorded epochs.
var ErrNotFound = history.ErrNotFound

// Open opens (creating if needed) the history database at path.
// ":memory:" gives a private in-memory store.
var Open = history.Open
