// Package data turns relation-extraction examples into padded, length-sorted
// batches and provides the index helpers used to map batch rows back to
// their original order.
package data

import (
	"encoding/json"
	"fmt"
	"io"
)

// Example is one tokenized sentence with its annotations. SubjPos and ObjPos
// hold each token's position relative to the subject and object spans.
type Example struct {
	Tokens   []string `json:"token"`
	POS      []string `json:"stanford_pos"`
	NER      []string `json:"stanford_ner"`
	SubjPos  []int    `json:"subj_pst"`
	ObjPos   []int    `json:"obj_pst"`
	Relation string   `json:"relation"`
}

// Len returns the number of tokens.
func (ex Example) Len() int {
	return len(ex.Tokens)
}

// Validate checks that every per-token annotation has one entry per token.
func (ex Example) Validate() error {
	n := len(ex.Tokens)
	if n == 0 {
		return fmt.Errorf("example has no tokens")
	}
	for _, f := range []struct {
		name string
		n    int
	}{
		{"stanford_pos", len(ex.POS)},
		{"stanford_ner", len(ex.NER)},
		{"subj_pst", len(ex.SubjPos)},
		{"obj_pst", len(ex.ObjPos)},
	} {
		if f.n != 0 && f.n != n {
			return fmt.Errorf("%s has %d entries for %d tokens", f.name, f.n, n)
		}
	}
	return nil
}

// Record is the flat, serializable view of an example together with the
// confidence scores assigned to it and the relation label to train on.
type Record struct {
	Tokens       []string `json:"tokens"`
	POS          []string `json:"stanford_pos"`
	NER          []string `json:"stanford_ner"`
	SubjPos      []int    `json:"subj_pst"`
	ObjPos       []int    `json:"obj_pst"`
	Relation     string   `json:"relation"`
	PRConfidence float64  `json:"pr_confidence"`
	SLConfidence float64  `json:"sl_confidence"`
}

// ExampleToRecord builds a Record from ex, overriding its relation with rel.
// Slices are shared with ex.
func ExampleToRecord(ex Example, prConfidence, slConfidence float64, rel string) Record {
	return Record{
		Tokens:       ex.Tokens,
		POS:          ex.POS,
		NER:          ex.NER,
		SubjPos:      ex.SubjPos,
		ObjPos:       ex.ObjPos,
		Relation:     rel,
		PRConfidence: prConfidence,
		SLConfidence: slConfidence,
	}
}

// ReadExamples decodes a JSON array of examples and validates each one.
func ReadExamples(r io.Reader) ([]Example, error) {
	var examples []Example
	if err := json.NewDecoder(r).Decode(&examples); err != nil {
		return nil, fmt.Errorf("failed to decode examples: %w", err)
	}
	for i, ex := range examples {
		if err := ex.Validate(); err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
	}
	return examples, nil
}
