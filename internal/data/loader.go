package data

import (
	"fmt"
	"math/rand"
	"sort"
)

// Batch is a group of records padded to the longest one and sorted by
// descending token length. Row i came from records[Orig[i]].
type Batch struct {
	Tokens       [][]int64 // [batch, maxLen], padded with the loader's PadID
	Lengths      []int
	POS          [][]int64 // nil unless the loader has a POS encoder
	NER          [][]int64 // nil unless the loader has a NER encoder
	SubjPos      [][]int64
	ObjPos       [][]int64
	Relation     []int64
	PRConfidence []float64
	SLConfidence []float64
	Orig         []int
}

// Size returns the number of rows.
func (b *Batch) Size() int {
	return len(b.Tokens)
}

// MaxLen returns the padded width.
func (b *Batch) MaxLen() int {
	if len(b.Lengths) == 0 {
		return 0
	}
	return b.Lengths[0]
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	BatchSize int
	PadID     int64
	Words     Encoder    // required
	POS       Encoder    // optional
	NER       Encoder    // optional
	Relations *Vocab     // required; unknown labels are an error
	Rand      *rand.Rand // shuffles records before chunking when set
}

// Loader chunks records into padded batches.
type Loader struct {
	records []Record
	cfg     LoaderConfig
	batches []*Batch
}

// NewLoader encodes records into batches of cfg.BatchSize. Records are
// chunked in order (or after one shuffle when cfg.Rand is set), then each
// chunk is stably sorted by descending length, so rows of equal length keep
// their relative order.
func NewLoader(records []Record, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Words == nil || cfg.Relations == nil {
		return nil, fmt.Errorf("loader needs a word encoder and a relation vocabulary")
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	if cfg.Rand != nil {
		cfg.Rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	l := &Loader{records: records, cfg: cfg}
	for start := 0; start < len(order); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(order))
		b, err := l.makeBatch(order[start:end])
		if err != nil {
			return nil, err
		}
		l.batches = append(l.batches, b)
	}
	return l, nil
}

// Len returns the number of batches.
func (l *Loader) Len() int {
	return len(l.batches)
}

// Batch returns batch i.
func (l *Loader) Batch(i int) *Batch {
	return l.batches[i]
}

// Batches returns all batches.
func (l *Loader) Batches() []*Batch {
	return l.batches
}

func (l *Loader) makeBatch(idx []int) (*Batch, error) {
	idx = append([]int(nil), idx...)
	sort.SliceStable(idx, func(a, b int) bool {
		return len(l.records[idx[a]].Tokens) > len(l.records[idx[b]].Tokens)
	})

	n := len(idx)
	width := len(l.records[idx[0]].Tokens)
	b := &Batch{
		Tokens:       make([][]int64, n),
		Lengths:      make([]int, n),
		SubjPos:      make([][]int64, n),
		ObjPos:       make([][]int64, n),
		Relation:     make([]int64, n),
		PRConfidence: make([]float64, n),
		SLConfidence: make([]float64, n),
		Orig:         idx,
	}
	if l.cfg.POS != nil {
		b.POS = make([][]int64, n)
	}
	if l.cfg.NER != nil {
		b.NER = make([][]int64, n)
	}

	for row, i := range idx {
		rec := l.records[i]
		if !l.cfg.Relations.Contains(rec.Relation) {
			return nil, fmt.Errorf("record %d: unknown relation %q", i, rec.Relation)
		}
		rel := l.cfg.Relations.ID(rec.Relation)

		b.Tokens[row] = pad(l.cfg.Words.Encode(rec.Tokens), width, l.cfg.PadID)
		b.Lengths[row] = len(rec.Tokens)
		if b.POS != nil {
			b.POS[row] = pad(l.cfg.POS.Encode(rec.POS), width, l.cfg.PadID)
		}
		if b.NER != nil {
			b.NER[row] = pad(l.cfg.NER.Encode(rec.NER), width, l.cfg.PadID)
		}
		b.SubjPos[row] = pad(toInt64(rec.SubjPos), width, 0)
		b.ObjPos[row] = pad(toInt64(rec.ObjPos), width, 0)
		b.Relation[row] = rel
		b.PRConfidence[row] = rec.PRConfidence
		b.SLConfidence[row] = rec.SLConfidence
	}
	return b, nil
}

func pad(ids []int64, width int, padID int64) []int64 {
	out := make([]int64, width)
	n := copy(out, ids)
	for j := n; j < width; j++ {
		out[j] = padID
	}
	return out
}

func toInt64(xs []int) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}
