package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func vec(t *Tensor) blas32.Vector {
	data := t.Float32s()
	return blas32.Vector{N: len(data), Data: data, Inc: 1}
}

func mustMatch(op string, a, b *Tensor) {
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.shape, b.shape))
	}
}

// Axpy computes y += alpha * x in place.
func Axpy(alpha float32, x, y *Tensor) {
	mustMatch("axpy", x, y)
	blas32.Axpy(alpha, vec(x), vec(y))
}

// Scale computes x *= alpha in place.
func Scale(alpha float32, x *Tensor) {
	blas32.Scal(alpha, vec(x))
}

// CopyInto copies src's elements into dst.
func CopyInto(dst, src *Tensor) {
	mustMatch("copy", src, dst)
	blas32.Copy(vec(src), vec(dst))
}

// AddSquare computes sum += g ⊙ g in place.
func AddSquare(sum, g *Tensor) {
	mustMatch("add square", g, sum)
	s := sum.Float32s()
	for i, v := range g.Float32s() {
		s[i] += v * v
	}
}

// Dot returns the inner product of two float32 tensors of equal shape.
func Dot(a, b *Tensor) float32 {
	mustMatch("dot", a, b)
	return blas32.Dot(vec(a), vec(b))
}

// Norm returns the Euclidean norm of x.
func Norm(x *Tensor) float32 {
	return blas32.Nrm2(vec(x))
}

// ZeroRows zeroes rows [from, Rows()) of the leading dimension in place.
func ZeroRows(t *Tensor, from int) {
	if from < 0 || from > t.Rows() {
		panic(fmt.Sprintf("zero rows: start %d out of range (rows=%d)", from, t.Rows()))
	}
	data := t.Float32s()
	clear(data[from*t.RowSize():])
}

func general(t *Tensor) blas32.General {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2-d tensor, got shape %v", t.shape))
	}
	return blas32.General{Rows: t.shape[0], Cols: t.shape[1], Data: t.Float32s(), Stride: t.shape[1]}
}

func transpose(trans bool) blas.Transpose {
	if trans {
		return blas.Trans
	}
	return blas.NoTrans
}

// MatMul returns op(a) @ op(b) where op transposes when the matching flag is
// set. Both operands must be 2-d float32 tensors.
func MatMul(a, b *Tensor, transA, transB bool) *Tensor {
	ga, gb := general(a), general(b)

	m, k := ga.Rows, ga.Cols
	if transA {
		m, k = k, m
	}
	k2, n := gb.Rows, gb.Cols
	if transB {
		k2, n = n, k2
	}
	if k != k2 {
		panic(fmt.Sprintf("matmul: inner dimensions differ: %v x %v (transA=%t, transB=%t)", a.shape, b.shape, transA, transB))
	}

	c := Zeros(Shape{m, n})
	blas32.Gemm(transpose(transA), transpose(transB), 1, ga, gb, 0, general(c))
	return c
}
