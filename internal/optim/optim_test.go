package optim_test

import (
	"testing"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/optim"
	"github.com/born-ml/adatrain/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarGrad(p *nn.Parameter, v float32) {
	p.SetDenseGrad(tensor.MustFromFloat32([]float32{v}, tensor.Shape{1}))
}

func TestSGD_SimpleUpdate(t *testing.T) {
	x := param("x", []float32{2}, 1)
	opt, err := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)

	scalarGrad(x, 1)
	_, err = opt.Step(nil)
	require.NoError(t, err)

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0
	assert.InDelta(t, 1.9, x.Tensor().At(0), 1e-6)
	assert.Empty(t, opt.StateDict().Tensors, "no velocity without momentum")
}

func TestSGD_WithMomentum(t *testing.T) {
	x := param("x", []float32{1}, 1)
	opt, err := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	require.NoError(t, err)

	scalarGrad(x, 1)
	_, err = opt.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, x.Tensor().At(0), 1e-6)

	// velocity = 0.9*1 + 1 = 1.9
	_, err = opt.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.71, x.Tensor().At(0), 1e-6)

	sd := opt.StateDict()
	require.Contains(t, sd.Tensors, "velocity.0")
	assert.InDelta(t, 1.9, sd.Tensors["velocity.0"].At(0), 1e-6)

	y := param("y", []float32{x.Tensor().At(0)}, 1)
	restored, err := optim.NewSGD([]*nn.Parameter{y}, optim.SGDConfig{LR: 0.5, Momentum: 0.9})
	require.NoError(t, err)
	require.NoError(t, restored.LoadStateDict(sd))
	assert.Equal(t, float32(0.1), restored.GetLR())

	scalarGrad(x, 1)
	scalarGrad(y, 1)
	_, err = opt.Step(nil)
	require.NoError(t, err)
	_, err = restored.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, x.Tensor().At(0), y.Tensor().At(0))
}

func TestSGD_SparseGradientIsDensified(t *testing.T) {
	w := param("w", []float32{1, 1, 1}, 3)
	opt, err := optim.NewSGD([]*nn.Parameter{w}, optim.SGDConfig{LR: 1})
	require.NoError(t, err)

	w.SetSparseGrad(tensor.MustSparse([][]int{{1}, {1}}, []float32{0.25, 0.25}, tensor.Shape{3}))
	_, err = opt.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5, 1}, w.Tensor().Float32s())
}

func TestSGD_WeightDecayWithSparseGradient(t *testing.T) {
	w := param("w", []float32{2, 2}, 2)
	opt, err := optim.NewSGD([]*nn.Parameter{w}, optim.SGDConfig{LR: 1, WeightDecay: 0.5})
	require.NoError(t, err)

	w.SetSparseGrad(tensor.MustSparse([][]int{{0}}, []float32{1}, tensor.Shape{2}))
	_, err = opt.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, w.Tensor().Float32s())
}

func TestSGD_InvalidConfig(t *testing.T) {
	x := param("x", []float32{1}, 1)
	_, err := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 0.1, Momentum: 1})
	require.ErrorIs(t, err, optim.ErrInvalidConfig)

	_, err = optim.NewSGDGroups([]optim.GroupSpec{{Params: []*nn.Parameter{x}, Options: map[string]float64{"lr_decay": 0.1}}}, optim.SGDConfig{})
	require.ErrorIs(t, err, optim.ErrUnknownOption)
}

func TestAdam_FirstStep(t *testing.T) {
	x := param("x", []float32{1, 1}, 2)
	opt, err := optim.NewAdam([]*nn.Parameter{x}, optim.AdamConfig{LR: 0.1})
	require.NoError(t, err)

	x.SetDenseGrad(tensor.MustFromFloat32([]float32{2, -0.5}, tensor.Shape{2}))
	_, err = opt.Step(nil)
	require.NoError(t, err)

	// bias-corrected first step moves each coordinate by lr * sign(g)
	assert.InDelta(t, 0.9, x.Tensor().At(0), 1e-5)
	assert.InDelta(t, 1.1, x.Tensor().At(1), 1e-5)

	groups := opt.ParamGroups()
	assert.Equal(t, [2]float32{0.9, 0.999}, groups[0].Betas)
	assert.Equal(t, float32(1e-8), groups[0].Eps)
}

func TestAdam_ConvergesOnQuadratic(t *testing.T) {
	x := param("x", []float32{5}, 1)
	opt, err := optim.NewAdam([]*nn.Parameter{x}, optim.AdamConfig{LR: 0.1})
	require.NoError(t, err)

	for range 500 {
		_, err := opt.Step(func() (float32, error) {
			v := x.Tensor().At(0)
			scalarGrad(x, 2*v)
			return v * v, nil
		})
		require.NoError(t, err)
	}
	assert.InDelta(t, 0, x.Tensor().At(0), 0.2)
}

func TestAdam_StateDictRoundTrip(t *testing.T) {
	x := param("x", []float32{1, 2}, 2)
	unused := param("unused", []float32{0}, 1)
	opt, err := optim.NewAdam([]*nn.Parameter{x, unused}, optim.AdamConfig{})
	require.NoError(t, err)

	x.SetDenseGrad(tensor.MustFromFloat32([]float32{1, 1}, tensor.Shape{2}))
	_, err = opt.Step(nil)
	require.NoError(t, err)

	sd := opt.StateDict()
	assert.Equal(t, "adam", sd.Type)
	assert.Contains(t, sd.Tensors, "m.0")
	assert.Contains(t, sd.Tensors, "v.0")
	assert.Contains(t, sd.Tensors, "step.0")
	assert.NotContains(t, sd.Tensors, "m.1")

	y := param("y", []float32{1, 2}, 2)
	restored, err := optim.NewAdam([]*nn.Parameter{y, param("u", []float32{0}, 1)}, optim.AdamConfig{})
	require.NoError(t, err)
	require.NoError(t, restored.LoadStateDict(sd))
	assert.True(t, restored.StateDict().Tensors["m.0"].Equal(sd.Tensors["m.0"]))

	adamax, err := optim.NewAdamax([]*nn.Parameter{y, param("u", []float32{0}, 1)}, optim.AdamConfig{})
	require.NoError(t, err)
	require.ErrorIs(t, adamax.LoadStateDict(sd), optim.ErrStateMismatch)
}

func TestAdamax_FirstStep(t *testing.T) {
	x := param("x", []float32{1}, 1)
	opt, err := optim.NewAdamax([]*nn.Parameter{x}, optim.AdamConfig{})
	require.NoError(t, err)
	assert.Equal(t, float32(0.002), opt.GetLR())

	scalarGrad(x, 3)
	_, err = opt.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.998, x.Tensor().At(0), 1e-6)

	sd := opt.StateDict()
	assert.Equal(t, "adamax", sd.Type)
	assert.InDelta(t, 3, sd.Tensors["v.0"].At(0), 1e-6)
}

func TestGet(t *testing.T) {
	tests := []struct {
		name   string
		lr     float32
		want   string
		wantLR float32
	}{
		{"sgd", 0.5, "sgd", 0.5},
		{"  Adagrad ", 0.1, "adagrad", 0.1},
		{"MYADAGRAD", 0.2, "adagrad", 0.2},
		{"adam", 0.001, "adam", 0.001},
		{"adamax", 1, "adamax", 0.002},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := param("x", []float32{1, 2}, 2)
			opt, err := optim.Get(tt.name, []*nn.Parameter{x}, tt.lr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, opt.Name())
			assert.Equal(t, tt.wantLR, opt.GetLR())
		})
	}
}

func TestGet_AdagradUsesInitAccuValue(t *testing.T) {
	x := param("x", []float32{1, 2}, 2)
	opt, err := optim.Get("myadagrad", []*nn.Parameter{x}, 0.1)
	require.NoError(t, err)

	ada, ok := opt.(*optim.Adagrad)
	require.True(t, ok)
	_, sum := ada.State(0)
	assert.Equal(t, []float32{0.1, 0.1}, sum.Float32s())
	assert.Equal(t, float32(0.1), ada.ParamGroups()[0].InitAccuValue)
}

func TestGet_AdamBetas(t *testing.T) {
	opt, err := optim.Get("adam", []*nn.Parameter{param("x", []float32{1}, 1)}, 0.01)
	require.NoError(t, err)
	assert.Equal(t, [2]float32{0.9, 0.99}, opt.ParamGroups()[0].Betas)
}

func TestGet_Errors(t *testing.T) {
	x := param("x", []float32{1}, 1)

	opt, err := optim.Get("rmsprop", []*nn.Parameter{x}, 0.1)
	require.ErrorIs(t, err, optim.ErrUnsupportedOptimizer)
	assert.Nil(t, opt)

	opt, err = optim.Get("sgd", []*nn.Parameter{x}, -1)
	require.ErrorIs(t, err, optim.ErrInvalidConfig)
	assert.Nil(t, opt)
}

func TestChangeLR(t *testing.T) {
	for _, name := range optim.Names {
		opt, err := optim.Get(name, []*nn.Parameter{param("x", []float32{1}, 1)}, 0.1)
		require.NoError(t, err)
		optim.ChangeLR(opt, 0.025)
		assert.Equal(t, float32(0.025), opt.GetLR(), name)
	}
}
