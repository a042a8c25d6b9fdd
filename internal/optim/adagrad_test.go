package optim_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/optim"
	"github.com/born-ml/adatrain/internal/parallel"
	"github.com/born-ml/adatrain/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(name string, data []float32, shape ...int) *nn.Parameter {
	return nn.NewParameter(name, tensor.MustFromFloat32(data, tensor.Shape(shape)))
}

func adagrad(t *testing.T, params []*nn.Parameter, cfg optim.AdagradConfig) *optim.Adagrad {
	t.Helper()
	opt, err := optim.NewAdagrad(params, cfg)
	require.NoError(t, err)
	return opt
}

func TestAdagrad_AccumulatorInit(t *testing.T) {
	w := nn.NewParameter("w", tensor.Zeros(tensor.Shape{2, 3}))
	b := nn.NewParameter("b", tensor.Zeros(tensor.Shape{3}))

	for _, v := range []float32{0, 0.1, 2.5} {
		cfg := optim.DefaultAdagradConfig()
		cfg.InitAccuValue = v
		opt := adagrad(t, []*nn.Parameter{w, b}, cfg)

		for i, p := range []*nn.Parameter{w, b} {
			step, sum := opt.State(i)
			assert.Equal(t, int64(0), step)
			assert.Equal(t, p.Shape(), sum.Shape())
			for _, x := range sum.Float32s() {
				assert.Equal(t, v, x)
			}
		}
	}
}

func TestAdagrad_DenseUpdate(t *testing.T) {
	p := param("p", []float32{1, 2}, 2)
	opt := adagrad(t, []*nn.Parameter{p}, optim.AdagradConfig{LR: 0.1, InitAccuValue: 0.1})

	p.SetDenseGrad(tensor.MustFromFloat32([]float32{0.5, -1}, tensor.Shape{2}))
	_, err := opt.Step(nil)
	require.NoError(t, err)

	_, sum := opt.State(0)
	assert.InDeltaSlice(t, []float32{0.35, 1.1}, sum.Float32s(), 1e-6)

	want0 := 1 - 0.1*0.5/math.Sqrt(0.35)
	want1 := 2 + 0.1/math.Sqrt(1.1)
	assert.InDelta(t, want0, p.Tensor().At(0), 1e-5)
	assert.InDelta(t, want1, p.Tensor().At(1), 1e-5)
}

func TestAdagrad_MonotonicAccumulation(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	p := nn.NewParameter("p", tensor.Randn(tensor.Shape{4, 5}, 1, r))
	opt := adagrad(t, []*nn.Parameter{p}, optim.DefaultAdagradConfig())

	_, sum := opt.State(0)
	prev := append([]float32(nil), sum.Float32s()...)
	for range 10 {
		p.SetDenseGrad(tensor.Randn(tensor.Shape{4, 5}, 1, r))
		_, err := opt.Step(nil)
		require.NoError(t, err)

		for i, x := range sum.Float32s() {
			assert.GreaterOrEqual(t, x, prev[i])
			assert.GreaterOrEqual(t, x, float32(0))
		}
		copy(prev, sum.Float32s())
	}
}

func TestEffectiveLR(t *testing.T) {
	assert.InDelta(t, 0.1, optim.EffectiveLR(0.1, 0.01, 1), 1e-7)
	assert.InDelta(t, 0.1/1.01, optim.EffectiveLR(0.1, 0.01, 2), 1e-7)
	assert.InDelta(t, 0.09804, optim.EffectiveLR(0.1, 0.01, 3), 1e-5)
	assert.InDelta(t, 0.1, optim.EffectiveLR(0.1, 0, 100), 1e-7)
}

func TestAdagrad_DecayLawThroughStep(t *testing.T) {
	p := param("p", []float32{0}, 1)
	opt := adagrad(t, []*nn.Parameter{p}, optim.AdagradConfig{LR: 0.1, LRDecay: 0.01})

	want := 0.0
	for k := 1; k <= 3; k++ {
		p.SetDenseGrad(tensor.MustFromFloat32([]float32{1}, tensor.Shape{1}))
		_, err := opt.Step(nil)
		require.NoError(t, err)

		clr := 0.1 / (1 + float64(k-1)*0.01)
		want -= clr / math.Sqrt(float64(k))
		assert.InDelta(t, want, p.Tensor().At(0), 1e-5, "step %d", k)
	}

	step, _ := opt.State(0)
	assert.Equal(t, int64(3), step)
}

func TestAdagrad_SparseDenseEquivalence(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	init := tensor.Randn(tensor.Shape{5, 3}, 1, r)
	dense := nn.NewParameter("dense", init.Clone())
	sparse := nn.NewParameter("sparse", init.Clone())

	optDense := adagrad(t, []*nn.Parameter{dense}, optim.AdagradConfig{LR: 0.5, LRDecay: 0.1, InitAccuValue: 0.1})
	optSparse := adagrad(t, []*nn.Parameter{sparse}, optim.AdagradConfig{LR: 0.5, LRDecay: 0.1, InitAccuValue: 0.1})

	for range 3 {
		rows := []float32{0.3, -1.2, 0.7, 2.0, -0.4, 0.9}
		g := tensor.Zeros(tensor.Shape{5, 3})
		copy(g.Row(1), rows[:3])
		copy(g.Row(4), rows[3:])
		dense.SetDenseGrad(g)
		sparse.SetSparseGrad(tensor.MustSparse([][]int{{4}, {1}}, append(rows[3:6:6], rows[:3]...), tensor.Shape{5, 3}))

		_, err := optDense.Step(nil)
		require.NoError(t, err)
		_, err = optSparse.Step(nil)
		require.NoError(t, err)
	}

	assert.InDeltaSlice(t, dense.Tensor().Float32s(), sparse.Tensor().Float32s(), 1e-6)
	_, sumDense := optDense.State(0)
	_, sumSparse := optSparse.State(0)
	assert.InDeltaSlice(t, sumDense.Float32s(), sumSparse.Float32s(), 1e-6)

	// untouched rows keep their initial value and accumulator
	assert.Equal(t, init.Row(0), sparse.Tensor().Row(0))
	assert.Equal(t, []float32{0.1, 0.1, 0.1}, sumSparse.Row(2))
}

func TestAdagrad_SparseElementwise(t *testing.T) {
	a := param("a", []float32{1, 1, 1, 1}, 2, 2)
	b := param("b", []float32{1, 1, 1, 1}, 2, 2)
	optA := adagrad(t, []*nn.Parameter{a}, optim.DefaultAdagradConfig())
	optB := adagrad(t, []*nn.Parameter{b}, optim.DefaultAdagradConfig())

	a.SetSparseGrad(tensor.MustSparse([][]int{{0, 1}, {1, 0}}, []float32{2, -3}, tensor.Shape{2, 2}))
	b.SetDenseGrad(tensor.MustFromFloat32([]float32{0, 2, -3, 0}, tensor.Shape{2, 2}))
	_, err := optA.Step(nil)
	require.NoError(t, err)
	_, err = optB.Step(nil)
	require.NoError(t, err)

	assert.InDeltaSlice(t, b.Tensor().Float32s(), a.Tensor().Float32s(), 1e-7)
}

func TestAdagrad_SparseCoalescing(t *testing.T) {
	dup := param("dup", []float32{1, 2, 3}, 3)
	one := param("one", []float32{1, 2, 3}, 3)
	optDup := adagrad(t, []*nn.Parameter{dup}, optim.DefaultAdagradConfig())
	optOne := adagrad(t, []*nn.Parameter{one}, optim.DefaultAdagradConfig())

	const a, b = float32(0.25), float32(1.5)
	dup.SetSparseGrad(tensor.MustSparse([][]int{{2}, {0}, {2}}, []float32{a, 0.5, b}, tensor.Shape{3}))
	one.SetSparseGrad(tensor.MustSparse([][]int{{0}, {2}}, []float32{0.5, a + b}, tensor.Shape{3}))

	_, err := optDup.Step(nil)
	require.NoError(t, err)
	_, err = optOne.Step(nil)
	require.NoError(t, err)

	assert.Equal(t, one.Tensor().Float32s(), dup.Tensor().Float32s())
	_, sumDup := optDup.State(0)
	_, sumOne := optOne.State(0)
	assert.Equal(t, sumOne.Float32s(), sumDup.Float32s())
	assert.InDelta(t, 0.1+(a+b)*(a+b), sumDup.At(2), 1e-6)
}

func TestAdagrad_SparseWeightDecayFails(t *testing.T) {
	dense := param("dense", []float32{1, 1}, 2)
	emb := param("emb", []float32{1, 2, 3, 4}, 2, 2)
	opt := adagrad(t, []*nn.Parameter{dense, emb}, optim.AdagradConfig{LR: 0.1, InitAccuValue: 0.1, WeightDecay: 0.01})

	dense.SetDenseGrad(tensor.MustFromFloat32([]float32{1, 1}, tensor.Shape{2}))
	emb.SetSparseGrad(tensor.MustSparse([][]int{{1}}, []float32{1, 1}, tensor.Shape{2, 2}))

	_, err := opt.Step(nil)
	require.ErrorIs(t, err, optim.ErrSparseWeightDecay)
	assert.Contains(t, err.Error(), "emb")

	// the dense parameter before it was already updated
	assert.NotEqual(t, float32(1), dense.Tensor().At(0))
	// the offending parameter's counter advanced but its values did not change
	step, sum := opt.State(1)
	assert.Equal(t, int64(1), step)
	assert.Equal(t, []float32{1, 2, 3, 4}, emb.Tensor().Float32s())
	assert.Equal(t, []float32{0.1, 0.1, 0.1, 0.1}, sum.Float32s())
}

func TestAdagrad_DenseWeightDecay(t *testing.T) {
	p := param("p", []float32{2}, 1)
	opt := adagrad(t, []*nn.Parameter{p}, optim.AdagradConfig{LR: 0.1, WeightDecay: 0.5})

	g := tensor.MustFromFloat32([]float32{1}, tensor.Shape{1})
	p.SetDenseGrad(g)
	_, err := opt.Step(nil)
	require.NoError(t, err)

	// effective gradient 1 + 0.5*2 = 2, sum = 4, update 0.1*2/2
	assert.InDelta(t, 1.9, p.Tensor().At(0), 1e-6)
	assert.Equal(t, float32(1), g.At(0), "caller gradient must not be modified")
}

func TestAdagrad_SkipsAbsentGradients(t *testing.T) {
	a := param("a", []float32{1}, 1)
	b := param("b", []float32{1}, 1)
	opt := adagrad(t, []*nn.Parameter{a, b}, optim.DefaultAdagradConfig())

	b.SetDenseGrad(tensor.MustFromFloat32([]float32{1}, tensor.Shape{1}))
	_, err := opt.Step(nil)
	require.NoError(t, err)

	stepA, _ := opt.State(0)
	stepB, _ := opt.State(1)
	assert.Equal(t, int64(0), stepA)
	assert.Equal(t, int64(1), stepB)
	assert.Equal(t, float32(1), a.Tensor().At(0))
}

func TestAdagrad_Closure(t *testing.T) {
	p := param("p", []float32{1}, 1)
	opt := adagrad(t, []*nn.Parameter{p}, optim.DefaultAdagradConfig())

	calls := 0
	loss, err := opt.Step(func() (float32, error) {
		calls++
		p.SetDenseGrad(tensor.MustFromFloat32([]float32{1}, tensor.Shape{1}))
		return 3.5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, float32(3.5), loss)
	assert.Less(t, p.Tensor().At(0), float32(1), "gradient set by the closure is applied")

	loss, err = opt.Step(nil)
	require.NoError(t, err)
	assert.Zero(t, loss)

	boom := errors.New("boom")
	_, err = opt.Step(func() (float32, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
}

func TestAdagrad_GradShapeMismatch(t *testing.T) {
	p := param("p", []float32{1, 2}, 2)
	opt := adagrad(t, []*nn.Parameter{p}, optim.DefaultAdagradConfig())

	p.SetDenseGrad(tensor.Zeros(tensor.Shape{3}))
	_, err := opt.Step(nil)
	require.ErrorIs(t, err, optim.ErrShapeMismatch)
}

func TestAdagrad_Construction(t *testing.T) {
	a := param("a", []float32{1}, 1)
	b := param("b", []float32{1}, 1)

	_, err := optim.NewAdagradGroups([]optim.GroupSpec{
		{Params: []*nn.Parameter{a}, Options: map[string]float64{"momentum": 0.9}},
	}, optim.DefaultAdagradConfig())
	require.ErrorIs(t, err, optim.ErrUnknownOption)

	_, err = optim.NewAdagradGroups([]optim.GroupSpec{
		{Params: []*nn.Parameter{a, b}},
		{Params: []*nn.Parameter{b}},
	}, optim.DefaultAdagradConfig())
	require.ErrorIs(t, err, optim.ErrDuplicateParameter)

	_, err = optim.NewAdagrad([]*nn.Parameter{a, a}, optim.DefaultAdagradConfig())
	require.ErrorIs(t, err, optim.ErrDuplicateParameter)

	for _, cfg := range []optim.AdagradConfig{
		{LR: -1},
		{LR: 0.1, LRDecay: -0.1},
		{LR: 0.1, InitAccuValue: -1},
		{LR: 0.1, WeightDecay: -1},
	} {
		_, err = optim.NewAdagrad([]*nn.Parameter{a}, cfg)
		require.ErrorIs(t, err, optim.ErrInvalidConfig, "%+v", cfg)
	}

	_, err = optim.NewAdagradGroups(nil, optim.DefaultAdagradConfig())
	require.ErrorIs(t, err, optim.ErrInvalidConfig)

	opt, err := optim.NewAdagrad([]*nn.Parameter{a}, optim.AdagradConfig{})
	require.NoError(t, err)
	assert.Equal(t, float32(0.01), opt.GetLR())
}

func TestAdagrad_GroupOverrides(t *testing.T) {
	a := param("a", []float32{0}, 1)
	b := param("b", []float32{0}, 1)
	opt, err := optim.NewAdagradGroups([]optim.GroupSpec{
		{Params: []*nn.Parameter{a}},
		{Params: []*nn.Parameter{b}, Options: map[string]float64{"lr": 1, "init_accu_value": 0}},
	}, optim.AdagradConfig{LR: 0.1, InitAccuValue: 0.1})
	require.NoError(t, err)

	groups := opt.ParamGroups()
	require.Len(t, groups, 2)
	assert.Equal(t, float32(0.1), groups[0].LR)
	assert.Equal(t, float32(1), groups[1].LR)
	assert.Equal(t, 1, groups[1].Index(0))

	_, sumB := opt.State(1)
	assert.Equal(t, float32(0), sumB.At(0))

	a.SetDenseGrad(tensor.MustFromFloat32([]float32{1}, tensor.Shape{1}))
	b.SetDenseGrad(tensor.MustFromFloat32([]float32{1}, tensor.Shape{1}))
	_, err = opt.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, -0.1/math.Sqrt(1.1), a.Tensor().At(0), 1e-6)
	assert.InDelta(t, -1, b.Tensor().At(0), 1e-6)

	optim.ChangeLR(opt, 0.05)
	assert.Equal(t, float32(0.05), groups[0].LR)
	assert.Equal(t, float32(0.05), groups[1].LR)
	assert.Equal(t, float32(0.05), opt.GetLR())
}

func TestAdagrad_ParallelDenseMatchesSequential(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	init := tensor.Randn(tensor.Shape{300, 200}, 1, r)
	grad := tensor.Randn(tensor.Shape{300, 200}, 1, r)

	seq := nn.NewParameter("seq", init.Clone())
	par := nn.NewParameter("par", init.Clone())
	optSeq := adagrad(t, []*nn.Parameter{seq}, optim.DefaultAdagradConfig())
	optSeq.SetParallel(parallel.Sequential())
	optPar := adagrad(t, []*nn.Parameter{par}, optim.DefaultAdagradConfig())
	optPar.SetParallel(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1024})

	seq.SetDenseGrad(grad)
	par.SetDenseGrad(grad)
	_, err := optSeq.Step(nil)
	require.NoError(t, err)
	_, err = optPar.Step(nil)
	require.NoError(t, err)

	assert.True(t, seq.Tensor().Equal(par.Tensor()))
}

func TestAdagrad_ZeroGrad(t *testing.T) {
	p := param("p", []float32{1}, 1)
	opt := adagrad(t, []*nn.Parameter{p}, optim.DefaultAdagradConfig())
	p.SetDenseGrad(tensor.MustFromFloat32([]float32{1}, tensor.Shape{1}))
	opt.ZeroGrad()
	assert.True(t, p.Grad().IsAbsent())
}

func TestAdagrad_StateDictRoundTrip(t *testing.T) {
	p := param("p", []float32{1, 2, 3}, 3)
	opt := adagrad(t, []*nn.Parameter{p}, optim.AdagradConfig{LR: 0.2, LRDecay: 0.1, InitAccuValue: 0.1})
	for range 2 {
		p.SetDenseGrad(tensor.MustFromFloat32([]float32{1, -1, 0.5}, tensor.Shape{3}))
		_, err := opt.Step(nil)
		require.NoError(t, err)
	}

	sd := opt.StateDict()
	assert.Equal(t, "adagrad", sd.Type)
	require.Contains(t, sd.Tensors, "sum.0")
	require.Contains(t, sd.Tensors, "step.0")
	assert.Equal(t, int64(2), sd.Tensors["step.0"].Int64s()[0])
	assert.Equal(t, []int{0}, sd.Groups[0].Params)

	q := param("q", []float32{1, 2, 3}, 3)
	restored := adagrad(t, []*nn.Parameter{q}, optim.DefaultAdagradConfig())
	require.NoError(t, restored.LoadStateDict(sd))

	step, sum := restored.State(0)
	_, want := opt.State(0)
	assert.Equal(t, int64(2), step)
	assert.True(t, sum.Equal(want))
	assert.Equal(t, float32(0.2), restored.GetLR())
	assert.Equal(t, float32(0.1), restored.ParamGroups()[0].LRDecay)
	assert.False(t, sum.SameStorage(sd.Tensors["sum.0"]), "state dict holds copies")
}

func TestAdagrad_LoadStateDictRejectsMismatch(t *testing.T) {
	p := param("p", []float32{1, 2, 3}, 3)
	opt := adagrad(t, []*nn.Parameter{p}, optim.DefaultAdagradConfig())
	sd := opt.StateDict()

	other := adagrad(t, []*nn.Parameter{param("q", []float32{1, 2}, 2)}, optim.DefaultAdagradConfig())
	require.ErrorIs(t, other.LoadStateDict(sd), optim.ErrStateMismatch)

	sd.Type = "sgd"
	require.ErrorIs(t, opt.LoadStateDict(sd), optim.ErrStateMismatch)
	require.ErrorIs(t, opt.LoadStateDict(nil), optim.ErrStateMismatch)

	sd.Type = "adagrad"
	delete(sd.Tensors, "step.0")
	require.ErrorIs(t, opt.LoadStateDict(sd), optim.ErrStateMismatch)
}

func TestAdagrad_ShareMemory(t *testing.T) {
	p := param("p", []float32{1, 1}, 2)
	primary := adagrad(t, []*nn.Parameter{p}, optim.DefaultAdagradConfig())
	shared := primary.ShareMemory()
	assert.Equal(t, 1, shared.Len())

	// the worker owns its own parameter handle over the same storage
	wp := nn.NewParameter("p", p.Tensor().Share())
	worker, err := optim.NewAdagradWorker(optim.SingleGroup([]*nn.Parameter{wp}), optim.DefaultAdagradConfig(), shared)
	require.NoError(t, err)

	_, primarySum := primary.State(0)
	_, workerSum := worker.State(0)
	assert.True(t, primarySum.SameStorage(workerSum))
	assert.True(t, primarySum.IsShared())

	wp.SetDenseGrad(tensor.MustFromFloat32([]float32{1, 0}, tensor.Shape{2}))
	_, err = worker.Step(nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.1, primarySum.At(0), 1e-6, "primary sees the worker's accumulation")
	assert.Less(t, p.Tensor().At(0), float32(1), "primary sees the worker's parameter update")
	assert.True(t, p.Grad().IsAbsent(), "gradients stay per worker")

	primaryStep, _ := primary.State(0)
	workerStep, _ := worker.State(0)
	assert.Equal(t, int64(0), primaryStep)
	assert.Equal(t, int64(1), workerStep)

	// loading state into primary writes through to the shared buffer
	sd := primary.StateDict()
	sd.Tensors["sum.0"] = tensor.Full(tensor.Shape{2}, 9)
	require.NoError(t, primary.LoadStateDict(sd))
	assert.Equal(t, float32(9), workerSum.At(1))
}

func TestNewAdagradWorker_Mismatch(t *testing.T) {
	primary := adagrad(t, []*nn.Parameter{param("p", []float32{1, 1}, 2)}, optim.DefaultAdagradConfig())
	shared := primary.ShareMemory()

	_, err := optim.NewAdagradWorker(optim.SingleGroup([]*nn.Parameter{param("q", []float32{1, 1, 1}, 3)}), optim.DefaultAdagradConfig(), shared)
	require.ErrorIs(t, err, optim.ErrStateMismatch)

	_, err = optim.NewAdagradWorker(optim.SingleGroup([]*nn.Parameter{param("a", []float32{1}, 1), param("b", []float32{1}, 1)}), optim.DefaultAdagradConfig(), shared)
	require.ErrorIs(t, err, optim.ErrStateMismatch)

	_, err = optim.NewAdagradWorker(optim.SingleGroup([]*nn.Parameter{param("p", []float32{1, 1}, 2)}), optim.DefaultAdagradConfig(), nil)
	require.ErrorIs(t, err, optim.ErrInvalidConfig)
}
