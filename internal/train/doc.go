// Package train drives an optimizer over batches: per-step closures with
// gradient masking and clipping, the epoch-level learning-rate decay policy,
// best-score checkpointing, and lock-free multi-worker Adagrad training.
package train
