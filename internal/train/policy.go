package train

import (
	"slices"
	"strings"

	"github.com/born-ml/adatrain/internal/config"
)

// decaying lists the optimizers whose learning rate is decayed on a plateau.
// Adaptive-moment optimizers manage their own step sizes.
var decaying = []string{"sgd", "adagrad", "myadagrad"}

// DecayLR applies the plateau policy after an epoch. Once epoch is past
// cfg.DecayEpoch, a score that does not beat every earlier score multiplies
// lr by cfg.LRDecay for SGD and Adagrad. history holds the scores of the
// previous epochs, not the current one.
func DecayLR(cfg config.Config, epoch int, score float64, history []float64, lr float64) (float64, bool) {
	if epoch <= cfg.DecayEpoch || len(history) == 0 {
		return lr, false
	}
	if !slices.Contains(decaying, strings.ToLower(strings.TrimSpace(cfg.Optimizer))) {
		return lr, false
	}
	if score > slices.Max(history) {
		return lr, false
	}
	return lr * cfg.LRDecay, true
}
