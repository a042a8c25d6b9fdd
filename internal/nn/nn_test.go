package nn_test

import (
	"math/rand"
	"testing"

	"github.com/born-ml/adatrain/internal/nn"
	"github.com/born-ml/adatrain/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradientKinds(t *testing.T) {
	var absent nn.Gradient
	assert.True(t, absent.IsAbsent())
	assert.Nil(t, absent.ToDense())
	assert.Nil(t, absent.Shape())
	assert.Equal(t, "absent", absent.Kind().String())

	assert.True(t, nn.DenseGrad(nil).IsAbsent())
	assert.True(t, nn.SparseGrad(nil).IsAbsent())

	d := tensor.MustFromFloat32([]float32{1, 2}, tensor.Shape{2})
	dense := nn.DenseGrad(d)
	assert.Equal(t, nn.GradDense, dense.Kind())
	assert.False(t, dense.IsSparse())
	assert.Same(t, d, dense.ToDense())

	s := tensor.MustSparse([][]int{{1}, {1}}, []float32{2, 3}, tensor.Shape{2})
	sparse := nn.SparseGrad(s)
	assert.True(t, sparse.IsSparse())
	assert.Equal(t, "sparse", sparse.Kind().String())
	assert.Equal(t, []float32{0, 5}, sparse.ToDense().Float32s())
	assert.Equal(t, tensor.Shape{2}, sparse.Shape())
}

func TestParameterGrad(t *testing.T) {
	p := nn.NewParameter("w", tensor.Zeros(tensor.Shape{2, 2}))
	assert.Equal(t, "w", p.Name())
	assert.True(t, p.Grad().IsAbsent())

	p.SetDenseGrad(tensor.Full(tensor.Shape{2, 2}, 1))
	assert.Equal(t, nn.GradDense, p.Grad().Kind())

	nn.ZeroGrad([]*nn.Parameter{p})
	assert.True(t, p.Grad().IsAbsent())
}

func TestKeepPartialGrad(t *testing.T) {
	g := tensor.MustFromFloat32([]float32{1, 1, 2, 2, 3, 3}, tensor.Shape{3, 2})

	out := nn.KeepPartialGrad(g, 1)
	assert.Same(t, g, out)
	assert.Equal(t, []float32{1, 1, 0, 0, 0, 0}, g.Float32s())

	assert.Panics(t, func() { nn.KeepPartialGrad(g, 3) })
	assert.Panics(t, func() { nn.KeepPartialGrad(g, -1) })
}

func TestKeepPartialParamGradSparse(t *testing.T) {
	p := nn.NewParameter("embed", tensor.Zeros(tensor.Shape{4, 2}))
	p.SetSparseGrad(tensor.MustSparse([][]int{{0}, {3}, {1}}, []float32{1, 1, 2, 2, 3, 3}, tensor.Shape{4, 2}))

	nn.KeepPartialParamGrad(p, 2)

	s := p.Grad().Sparse()
	require.Equal(t, 2, s.NNZ())
	assert.Equal(t, []float32{1, 1, 3, 3, 0, 0, 0, 0}, s.ToDense().Float32s())
}

func TestLinearForwardBackward(t *testing.T) {
	l := nn.NewLinear(2, 1, rand.New(rand.NewSource(1)))
	copy(l.Weight().Tensor().Float32s(), []float32{2, -1})
	l.Bias().Tensor().Float32s()[0] = 0.5

	x := tensor.MustFromFloat32([]float32{1, 1, 3, 2}, tensor.Shape{2, 2})
	y := l.Forward(x)
	assert.Equal(t, []float32{1.5, 4.5}, y.Float32s())

	gradOut := tensor.MustFromFloat32([]float32{1, 2}, tensor.Shape{2, 1})
	gradIn := l.Backward(x, gradOut)

	assert.Equal(t, []float32{1*1 + 2*3, 1*1 + 2*2}, l.Weight().Grad().Dense().Float32s())
	assert.Equal(t, []float32{3}, l.Bias().Grad().Dense().Float32s())
	assert.Equal(t, []float32{2, -1, 4, -2}, gradIn.Float32s())
}

func TestEmbeddingSparseBackward(t *testing.T) {
	e := nn.NewEmbedding(5, 2, 0, rand.New(rand.NewSource(2)))
	assert.Equal(t, []float32{0, 0}, e.Weight.Tensor().Row(0))

	ids := []int64{3, 0, 3}
	out := e.Lookup(ids)
	assert.Equal(t, e.Weight.Tensor().Row(3), out.Row(0))
	assert.Nil(t, e.Lookup(nil))

	gradOut := tensor.MustFromFloat32([]float32{1, 2, 9, 9, 3, 4}, tensor.Shape{3, 2})
	e.Backward(ids, gradOut)

	g := e.Weight.Grad()
	require.True(t, g.IsSparse())
	assert.Equal(t, 2, g.Sparse().NNZ(), "padding row dropped, duplicate kept")
	assert.Equal(t, []float32{4, 6}, g.ToDense().Row(3))

	assert.Panics(t, func() { e.Lookup([]int64{5}) })
}

func TestContainerStateDict(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	model := nn.NewContainer().
		Add("embed", nn.NewEmbedding(4, 3, -1, r)).
		Add("out", nn.NewLinear(3, 2, r))

	assert.Len(t, model.Parameters(), 3)
	assert.Equal(t, []string{"embed.weight", "out.bias", "out.weight"}, nn.SortedKeys(model.StateDict()))
	assert.NotNil(t, model.Child("out"))

	clone := nn.NewContainer().
		Add("embed", nn.NewEmbedding(4, 3, -1, r)).
		Add("out", nn.NewLinear(3, 2, r))

	src := model.StateDict()
	require.NoError(t, clone.LoadStateDict(src))
	for k, v := range clone.StateDict() {
		assert.True(t, v.Equal(src[k]), k)
	}

	assert.Error(t, clone.LoadStateDict(map[string]*tensor.Tensor{"bogus": tensor.Zeros(tensor.Shape{1})}))
	assert.Error(t, clone.LoadStateDict(map[string]*tensor.Tensor{"out.weight": tensor.Zeros(tensor.Shape{1})}))
	assert.Panics(t, func() { model.Add("out", nn.NewLinear(1, 1, r)) })
}

func TestLoadParamsErrors(t *testing.T) {
	p := nn.NewParameter("w", tensor.Zeros(tensor.Shape{2}))

	err := nn.LoadParams([]*nn.Parameter{p}, map[string]*tensor.Tensor{})
	assert.ErrorContains(t, err, "missing w")

	err = nn.LoadParams([]*nn.Parameter{p}, map[string]*tensor.Tensor{"w": tensor.Zeros(tensor.Shape{3})})
	assert.ErrorContains(t, err, "shape mismatch")

	ids, _ := tensor.FromInt64([]int64{1, 2}, tensor.Shape{2})
	err = nn.LoadParams([]*nn.Parameter{p}, map[string]*tensor.Tensor{"w": ids})
	assert.ErrorContains(t, err, "dtype mismatch")
}

func TestLinearShare(t *testing.T) {
	l := nn.NewLinear(3, 2, rand.New(rand.NewSource(3)))
	s := l.Share()

	assert.True(t, s.Weight().Tensor().SameStorage(l.Weight().Tensor()))
	assert.True(t, s.Bias().Tensor().SameStorage(l.Bias().Tensor()))
	assert.NotSame(t, l.Weight(), s.Weight())

	s.Bias().Tensor().Float32s()[1] = 7
	assert.Equal(t, float32(7), l.Bias().Tensor().Float32s()[1])

	s.Bias().SetDenseGrad(tensor.Full(tensor.Shape{2}, 1))
	assert.True(t, l.Bias().Grad().IsAbsent())
}
