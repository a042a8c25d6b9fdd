package optim

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/born-ml/adatrain/internal/nn"
)

// Adamax implements the infinity-norm variant of Adam.
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	u_t = max(beta2 * u_{t-1}, |gradient| + eps)
//	param = param - lr / (1 - beta1^t) * m_t / u_t
//
// The infinity norm u is stored under the "v.{i}" state keys.
type Adamax struct {
	*moments
}

// NewAdamax creates an Adamax optimizer. Zero fields select LR 0.002,
// betas (0.9, 0.999) and eps 1e-8.
func NewAdamax(params []*nn.Parameter, config AdamConfig) (*Adamax, error) {
	return NewAdamaxGroups(SingleGroup(params), config)
}

// NewAdamaxGroups creates an Adamax optimizer over explicit parameter groups.
func NewAdamaxGroups(specs []GroupSpec, config AdamConfig) (*Adamax, error) {
	m, err := newMoments("adamax", specs, config.withDefaults(0.002))
	if err != nil {
		return nil, err
	}
	return &Adamax{m}, nil
}

// Step performs a single optimization step.
func (a *Adamax) Step(closure Closure) (float32, error) {
	return a.update(closure, adamaxUpdate)
}

func adamaxUpdate(g *ParamGroup, step int64, param, grad, m, u []float32) {
	beta1, beta2 := g.Betas[0], g.Betas[1]
	clr := g.LR / float32(1.0-math.Pow(float64(beta1), float64(step)))

	for i := range param {
		gi := grad[i]
		m[i] = beta1*m[i] + (1.0-beta1)*gi
		u[i] = max(beta2*u[i], math32.Abs(gi)+g.Eps)
		param[i] -= clr * m[i] / u[i]
	}
}
