package optim

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/born-ml/adatrain/internal/nn"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// t is counted per parameter. Sparse gradients are densified.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	*moments
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32    // L2 penalty (default: 0)
}

func (c AdamConfig) withDefaults(lr float32) ParamGroup {
	if c.LR == 0 {
		c.LR = lr
	}
	if c.Betas[0] == 0 {
		c.Betas[0] = 0.9
	}
	if c.Betas[1] == 0 {
		c.Betas[1] = 0.999
	}
	if c.Eps == 0 {
		c.Eps = 1e-8
	}
	return ParamGroup{LR: c.LR, Betas: c.Betas, Eps: c.Eps, WeightDecay: c.WeightDecay}
}

// NewAdam creates an Adam optimizer over a single parameter group. Zero
// fields select the defaults.
func NewAdam(params []*nn.Parameter, config AdamConfig) (*Adam, error) {
	return NewAdamGroups(SingleGroup(params), config)
}

// NewAdamGroups creates an Adam optimizer over explicit parameter groups.
// Accepted option keys: lr, beta1, beta2, eps, weight_decay.
func NewAdamGroups(specs []GroupSpec, config AdamConfig) (*Adam, error) {
	m, err := newMoments("adam", specs, config.withDefaults(0.001))
	if err != nil {
		return nil, err
	}
	return &Adam{m}, nil
}

// Step performs a single optimization step.
func (a *Adam) Step(closure Closure) (float32, error) {
	return a.update(closure, adamUpdate)
}

func adamUpdate(g *ParamGroup, step int64, param, grad, m, v []float32) {
	beta1, beta2 := g.Betas[0], g.Betas[1]
	biasCorrection1 := float32(1.0 - math.Pow(float64(beta1), float64(step)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(beta2), float64(step)))

	for i := range param {
		gi := grad[i]
		m[i] = beta1*m[i] + (1.0-beta1)*gi
		v[i] = beta2*v[i] + (1.0-beta2)*gi*gi
		mHat := m[i] / biasCorrection1
		vHat := v[i] / biasCorrection2
		param[i] -= g.LR * mHat / (math32.Sqrt(vHat) + g.Eps)
	}
}
