package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/born-ml/adatrain/internal/optim"
)

// Format constants.
const (
	MagicBytes      = "ADAT"
	FormatVersion   = 1
	HeaderAlignment = 64   // Align tensor data to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// Flags stored in the fixed header.
const (
	FlagHasOptimizer uint32 = 1 << 0 // optimizer state included
	FlagHasConfig    uint32 = 1 << 1 // run configuration included
	FlagHasMetadata  uint32 = 1 << 2 // custom metadata included
)

// Tensor name prefixes.
const (
	ModelPrefix     = "model."
	OptimizerPrefix = "optimizer."
)

// Header is the JSON header of a checkpoint file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	WriterVersion string            `json:"writer_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Optimizer     *OptimizerMeta    `json:"optimizer,omitempty"`
	Config        json.RawMessage   `json:"config,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// OptimizerMeta records the optimizer type and its group hyperparameters.
type OptimizerMeta struct {
	Type   string             `json:"type"`
	Groups []optim.GroupState `json:"groups"`
}

// TensorMeta describes a tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // e.g. "model.encoder.weight"
	DType  string `json:"dtype"`  // e.g. "float32"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Bytes from the start of the data section
	Size   int64  `json:"size"`   // Size in bytes
}

func (h *Header) flags() uint32 {
	var f uint32
	if h.Optimizer != nil {
		f |= FlagHasOptimizer
	}
	if len(h.Config) > 0 {
		f |= FlagHasConfig
	}
	if len(h.Metadata) > 0 {
		f |= FlagHasMetadata
	}
	return f
}

// dataOffset returns where the data section starts for a header of n bytes.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}
