package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/adatrain/internal/tensor"
)

// Xavier (Glorot) uniform initialization:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))).
func Xavier(fanIn, fanOut int, shape tensor.Shape, r *rand.Rand) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(shape, bound, r)
}

// Normal initialization N(0, std²).
func Normal(shape tensor.Shape, std float64, r *rand.Rand) *tensor.Tensor {
	return tensor.Randn(shape, std, r)
}
