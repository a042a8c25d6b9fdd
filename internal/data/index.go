package data

import "sort"

// FlattenIndices returns the flat offsets of the first seqLens[i] cells of
// each row in a row-major [len(seqLens), width] grid.
//
//	FlattenIndices([]int{2, 1, 3}, 4) == []int{0, 1, 4, 8, 9, 10}
func FlattenIndices(seqLens []int, width int) []int {
	var flat []int
	for i, l := range seqLens {
		for j := range l {
			flat = append(flat, i*width+j)
		}
	}
	return flat
}

// UnsortIdx chunks lengths into batches of batchSize and, for each chunk,
// returns the inverse of the descending-length (stable) sort used to build
// batches: sorted row inv[k] holds original item k.
//
//	UnsortIdx([]int{3, 1, 2}, 3) == [][]int{{0, 2, 1}}
func UnsortIdx(lengths []int, batchSize int) [][]int {
	if batchSize <= 0 {
		panic("unsort idx: batch size must be positive")
	}

	var out [][]int
	for start := 0; start < len(lengths); start += batchSize {
		chunk := lengths[start:min(start+batchSize, len(lengths))]

		order := make([]int, len(chunk))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return chunk[order[a]] > chunk[order[b]]
		})

		inv := make([]int, len(order))
		for pos, i := range order {
			inv[i] = pos
		}
		out = append(out, inv)
	}
	return out
}

// UnsortExamples is UnsortIdx over the token lengths of examples.
func UnsortExamples(examples []Example, batchSize int) [][]int {
	lengths := make([]int, len(examples))
	for i, ex := range examples {
		lengths[i] = ex.Len()
	}
	return UnsortIdx(lengths, batchSize)
}

// Number is the set of types ArgMax accepts.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// ArgMax returns the index and value of the first maximum of values, or
// (-1, -1) when values is empty.
func ArgMax[T Number](values []T) (int, T) {
	if len(values) == 0 {
		return -1, -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best, values[best]
}
