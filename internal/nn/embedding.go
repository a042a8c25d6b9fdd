package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/adatrain/internal/tensor"
)

// Embedding is a lookup table mapping token ids to dense rows.
//
// Backward produces a row-sparse gradient: only rows that were looked up
// carry values, and a row looked up twice appears twice (uncoalesced). Rows
// equal to PaddingIdx never receive gradient.
type Embedding struct {
	Weight     *Parameter // [NumEmbed, EmbedDim]
	NumEmbed   int
	EmbedDim   int
	PaddingIdx int // -1 disables padding
}

// NewEmbedding creates an embedding initialized from N(0, 1). The padding
// row, if any, is zeroed.
func NewEmbedding(numEmbeddings, embeddingDim, paddingIdx int, r *rand.Rand) *Embedding {
	weight := Normal(tensor.Shape{numEmbeddings, embeddingDim}, 1, r)
	if paddingIdx >= 0 {
		clear(weight.Row(paddingIdx))
	}
	return &Embedding{
		Weight:     NewParameter("weight", weight),
		NumEmbed:   numEmbeddings,
		EmbedDim:   embeddingDim,
		PaddingIdx: paddingIdx,
	}
}

// Lookup returns the rows for ids as a [len(ids), EmbedDim] tensor, or nil
// for no ids. Panics if an id is out of range.
func (e *Embedding) Lookup(ids []int64) *tensor.Tensor {
	if len(ids) == 0 {
		return nil
	}
	out := tensor.Zeros(tensor.Shape{len(ids), e.EmbedDim})
	for i, id := range ids {
		copy(out.Row(i), e.Weight.Tensor().Row(e.row(id)))
	}
	return out
}

// Backward sets the sparse weight gradient for a previous Lookup(ids) whose
// output received gradOut.
func (e *Embedding) Backward(ids []int64, gradOut *tensor.Tensor) {
	indices := make([][]int, 0, len(ids))
	values := make([]float32, 0, len(ids)*e.EmbedDim)
	for i, id := range ids {
		row := e.row(id)
		if row == e.PaddingIdx {
			continue
		}
		indices = append(indices, []int{row})
		values = append(values, gradOut.Row(i)...)
	}
	e.Weight.SetSparseGrad(tensor.MustSparse(indices, values, e.Weight.Shape()))
}

func (e *Embedding) row(id int64) int {
	if id < 0 || int(id) >= e.NumEmbed {
		panic(fmt.Sprintf("embedding: id %d out of range [0, %d)", id, e.NumEmbed))
	}
	return int(id)
}

// Parameters returns the weight.
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}

// StateDict returns {"weight": W}.
func (e *Embedding) StateDict() map[string]*tensor.Tensor {
	return ParamStateDict(e.Parameters())
}

// LoadStateDict loads the weight.
func (e *Embedding) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return LoadParams(e.Parameters(), stateDict)
}
