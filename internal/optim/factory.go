package optim

import (
	"fmt"
	"strings"

	"github.com/born-ml/adatrain/internal/nn"
)

// Names lists the optimizer names accepted by Get.
var Names = []string{"sgd", "adagrad", "myadagrad", "adam", "adamax"}

// Get builds an optimizer by name. name is trimmed and matched
// case-insensitively:
//
//	sgd                  SGD with the given lr
//	adagrad, myadagrad   Adagrad with the given lr and init_accu_value 0.1
//	adam                 Adam with the given lr and betas (0.9, 0.99)
//	adamax               Adamax with its default lr; lr is ignored
func Get(name string, params []*nn.Parameter, lr float32) (Optimizer, error) {
	var (
		opt Optimizer
		err error
	)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sgd":
		opt, err = asOptimizer(NewSGD(params, SGDConfig{LR: lr}))
	case "adagrad", "myadagrad":
		cfg := DefaultAdagradConfig()
		cfg.LR = lr
		opt, err = asOptimizer(NewAdagrad(params, cfg))
	case "adam":
		opt, err = asOptimizer(NewAdam(params, AdamConfig{LR: lr, Betas: [2]float32{0.9, 0.99}}))
	case "adamax":
		opt, err = asOptimizer(NewAdamax(params, AdamConfig{}))
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedOptimizer, name, strings.Join(Names, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return opt, nil
}

// asOptimizer drops the typed result on error so callers never see a
// non-nil interface holding a nil pointer.
func asOptimizer[O Optimizer](o O, err error) (Optimizer, error) {
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Compile-time interface checks.
var (
	_ Optimizer = (*Adagrad)(nil)
	_ Optimizer = (*SGD)(nil)
	_ Optimizer = (*Adam)(nil)
	_ Optimizer = (*Adamax)(nil)
)

// ChangeLR overwrites the learning rate of every parameter group. The new
// rate applies from the next Step.
func ChangeLR(opt Optimizer, lr float32) {
	opt.SetLR(lr)
}
