package data

// Inputs is the model-facing view of a batch.
type Inputs struct {
	Words        [][]int64
	Length       []int
	POS          [][]int64
	NER          [][]int64
	SubjPos      [][]int64
	ObjPos       [][]int64
	Masks        [][]bool // true where the word is padding
	PRConfidence []float64
	SLConfidence []float64
}

// ToInput splits a batch into model inputs and relation targets. Masks[i][j]
// is true exactly when Words[i][j] == padID.
func ToInput(b *Batch, padID int64) (Inputs, []int64) {
	masks := make([][]bool, len(b.Tokens))
	for i, row := range b.Tokens {
		masks[i] = make([]bool, len(row))
		for j, id := range row {
			masks[i][j] = id == padID
		}
	}

	return Inputs{
		Words:        b.Tokens,
		Length:       b.Lengths,
		POS:          b.POS,
		NER:          b.NER,
		SubjPos:      b.SubjPos,
		ObjPos:       b.ObjPos,
		Masks:        masks,
		PRConfidence: b.PRConfidence,
		SLConfidence: b.SLConfidence,
	}, b.Relation
}
