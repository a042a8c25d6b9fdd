// Package checkpoint saves and restores a model, its optimizer and the run
// configuration as a single file.
//
// File layout (all integers little endian):
//
//	0x00  [4 bytes:  Magic "ADAT"]
//	0x04  [4 bytes:  Version (uint32)]
//	0x08  [4 bytes:  Flags (uint32)]
//	0x0C  [4 bytes:  Reserved]
//	0x10  [8 bytes:  Header size (uint64)]
//	0x18  [8 bytes:  Data size (uint64)]
//	0x20  [32 bytes: SHA-256 of the data section]
//	0x40  [Header: JSON]
//	      [padding to a 64-byte boundary]
//	      [Tensor data: raw little-endian bytes]
//
// Model tensors are stored as "model.<key>", optimizer buffers as
// "optimizer.<key>". The optimizer's hyperparameters and the run
// configuration travel in the JSON header.
//
// Example usage:
//
//	if err := checkpoint.Save("best.adat", model, opt, cfg); err != nil {
//	    // already logged; training continues
//	}
//
//	cfg, err := checkpoint.Load[config.Config]("best.adat", model, opt)
//	if err != nil {
//	    return err
//	}
package checkpoint
