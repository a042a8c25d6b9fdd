// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package data shapes relation-extraction examples into padded batches and
// maps batch rows back to their original order.
package data

import (
	"io"

	"github.com/born-ml/adatrain/internal/data"
)

// Example is one annotated sentence.
type Example = data.Example

// Record is an example with confidence scores and a training label.
type Record = data.Record

// Vocab is a token/id table.
type Vocab = data.Vocab

// Encoder maps tokens to ids.
type Encoder = data.Encoder

// TikTokenEncoder encodes words with a tiktoken BPE vocabulary.
type TikTokenEncoder = data.TikTokenEncoder

// Loader chunks records into padded batches.
type Loader = data.Loader

// LoaderConfig configures a Loader.
type LoaderConfig = data.LoaderConfig

// Batch is a padded, length-sorted batch.
type Batch = data.Batch

// Inputs is the model-facing view of a batch.
type Inputs = data.Inputs

// Reserved ids and tokens.
const (
	PadID    = data.PadID
	UnkID    = data.UnkID
	PadToken = data.PadToken
	UnkToken = data.UnkToken
)

// ReadExamples decodes a JSON array of examples.
func ReadExamples(r io.Reader) ([]Example, error) {
	return data.ReadExamples(r)
}

// ExampleToRecord builds a Record from ex with relation rel.
func ExampleToRecord(ex Example, prConfidence, slConfidence float64, rel string) Record {
	return data.ExampleToRecord(ex, prConfidence, slConfidence, rel)
}

// NewVocab builds a vocabulary with PAD and UNK reserved.
func NewVocab(words []string) *Vocab {
	return data.NewVocab(words)
}

// NewLabels builds a label vocabulary.
func NewLabels(labels []string) *Vocab {
	return data.NewLabels(labels)
}

// NewTikTokenEncoder loads a tiktoken encoding.
func NewTikTokenEncoder(encodingName string) (*TikTokenEncoder, error) {
	return data.NewTikTokenEncoder(encodingName)
}

// NewLoader encodes records into batches.
func NewLoader(records []Record, cfg LoaderConfig) (*Loader, error) {
	return data.NewLoader(records, cfg)
}

// ToInput splits a batch into model inputs and relation targets.
func ToInput(b *Batch, padID int64) (Inputs, []int64) {
	return data.ToInput(b, padID)
}

// FlattenIndices returns the flat offsets of the valid cells of a padded
// [len(seqLens), width] grid.
func FlattenIndices(seqLens []int, width int) []int {
	return data.FlattenIndices(seqLens, width)
}

// UnsortIdx returns, per batch, the permutation undoing the
// descending-length sort.
func UnsortIdx(lengths []int, batchSize int) [][]int {
	return data.UnsortIdx(lengths, batchSize)
}

// ArgMax returns the index and value of the first maximum, or (-1, -1).
func ArgMax[T data.Number](values []T) (int, T) {
	return data.ArgMax(values)
}
