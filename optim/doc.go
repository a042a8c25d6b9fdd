// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizers used by adatrain.
//
// # Overview
//
// This package contains:
//   - Adagrad: adaptive gradient with a configurable initial accumulator,
//     per-parameter learning-rate decay, and sparse gradient support
//   - SGD, Adam, Adamax: stock optimizers returned by Get
//   - Get / ChangeLR: selection by name and in-place learning-rate changes
//
// # Basic Usage
//
//	model := nn.NewLinear(784, 10, rng)
//	opt, err := optim.NewAdagrad(model.Parameters(), optim.DefaultAdagradConfig())
//	if err != nil {
//	    return err
//	}
//
//	for _, batch := range batches {
//	    loss, err := opt.Step(func() (float32, error) {
//	        opt.ZeroGrad()
//	        return objective.Loss(batch) // sets parameter gradients
//	    })
//	    if err != nil {
//	        return err
//	    }
//	}
//
// # Parameter Groups
//
// Each group overrides the defaults with its own options:
//
//	opt, err := optim.NewAdagradGroups([]optim.GroupSpec{
//	    {Params: embedding.Parameters(), Options: map[string]float64{"lr": 0.1}},
//	    {Params: head.Parameters()},
//	}, optim.DefaultAdagradConfig())
//
// Unknown option keys fail with ErrUnknownOption; a parameter registered
// twice fails with ErrDuplicateParameter.
//
// # Shared Accumulators
//
// ShareMemory and NewAdagradWorker let several goroutines train one model
// without locks (Hogwild). See the train package for a driver.
package optim
