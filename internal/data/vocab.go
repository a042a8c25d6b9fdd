package data

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Reserved ids in every word vocabulary.
const (
	PadID int64 = 0
	UnkID int64 = 1

	PadToken = "<PAD>"
	UnkToken = "<UNK>"
)

// Encoder maps a token sequence to ids, one id per token.
type Encoder interface {
	Encode(tokens []string) []int64
}

// Vocab is a bidirectional token/id table.
type Vocab struct {
	words []string
	index map[string]int64
	unk   int64
}

// NewVocab builds a word vocabulary: PAD and UNK first, then words in the
// given order. Duplicates are ignored.
func NewVocab(words []string) *Vocab {
	v := &Vocab{index: make(map[string]int64), unk: UnkID}
	v.add(PadToken)
	v.add(UnkToken)
	for _, w := range words {
		v.add(w)
	}
	return v
}

// NewLabels builds a label vocabulary without reserved entries. Unknown
// labels encode to -1.
func NewLabels(labels []string) *Vocab {
	v := &Vocab{index: make(map[string]int64), unk: -1}
	for _, l := range labels {
		v.add(l)
	}
	return v
}

// BuildVocab counts tokens selected by field across examples and keeps
// those seen at least minCount times, most frequent first, ties broken
// alphabetically.
func BuildVocab(examples []Example, field func(Example) []string, minCount int) *Vocab {
	counts := make(map[string]int)
	for _, ex := range examples {
		for _, tok := range field(ex) {
			counts[tok]++
		}
	}

	words := make([]string, 0, len(counts))
	for w, c := range counts {
		if c >= minCount {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	return NewVocab(words)
}

// Field selectors for BuildVocab.
var (
	TokensField = func(ex Example) []string { return ex.Tokens }
	POSField    = func(ex Example) []string { return ex.POS }
	NERField    = func(ex Example) []string { return ex.NER }
)

func (v *Vocab) add(w string) {
	if _, ok := v.index[w]; ok {
		return
	}
	v.index[w] = int64(len(v.words))
	v.words = append(v.words, w)
}

// Size returns the number of entries, reserved ones included.
func (v *Vocab) Size() int {
	return len(v.words)
}

// ID returns the id of w, or the unknown id.
func (v *Vocab) ID(w string) int64 {
	if id, ok := v.index[w]; ok {
		return id
	}
	return v.unk
}

// Contains reports whether w has its own id.
func (v *Vocab) Contains(w string) bool {
	_, ok := v.index[w]
	return ok
}

// Word returns the entry for id. Panics if id is out of range.
func (v *Vocab) Word(id int64) string {
	return v.words[id]
}

// Words returns all entries in id order.
func (v *Vocab) Words() []string {
	return v.words
}

// Encode maps tokens to ids.
func (v *Vocab) Encode(tokens []string) []int64 {
	ids := make([]int64, len(tokens))
	for i, tok := range tokens {
		ids[i] = v.ID(tok)
	}
	return ids
}

// TikTokenEncoder encodes words with a tiktoken BPE vocabulary. Ids are
// shifted by Reserved so PadID and UnkID keep their meaning.
type TikTokenEncoder struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// Reserved is the number of ids below the first BPE id.
const Reserved = 2

// NewTikTokenEncoder loads a tiktoken encoding such as "cl100k_base".
func NewTikTokenEncoder(encodingName string) (*TikTokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikTokenEncoder{encoding: encoding, name: encodingName}, nil
}

// Name returns the encoding name.
func (e *TikTokenEncoder) Name() string {
	return e.name
}

// Encode maps each word to the id of its first BPE piece, keeping one id
// per token so subject/object positions stay aligned. Empty words map to
// UnkID.
func (e *TikTokenEncoder) Encode(tokens []string) []int64 {
	ids := make([]int64, len(tokens))
	for i, tok := range tokens {
		pieces := e.encoding.Encode(tok, nil, nil)
		if len(pieces) == 0 {
			ids[i] = UnkID
			continue
		}
		ids[i] = int64(pieces[0]) + Reserved
	}
	return ids
}

// EncodeText encodes raw text into shifted BPE ids.
func (e *TikTokenEncoder) EncodeText(text string) []int64 {
	pieces := e.encoding.Encode(text, nil, nil)
	ids := make([]int64, len(pieces))
	for i, p := range pieces {
		ids[i] = int64(p) + Reserved
	}
	return ids
}

// Tokenize splits raw text into BPE pieces, trimming the leading space
// tiktoken attaches to word-initial pieces.
func (e *TikTokenEncoder) Tokenize(text string) []string {
	pieces := e.encoding.Encode(text, nil, nil)
	tokens := make([]string, 0, len(pieces))
	for _, p := range pieces {
		s := strings.TrimSpace(e.encoding.Decode([]int{p}))
		if s != "" {
			tokens = append(tokens, s)
		}
	}
	return tokens
}

var (
	_ Encoder = (*Vocab)(nil)
	_ Encoder = (*TikTokenEncoder)(nil)
)
