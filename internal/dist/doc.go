// Package dist is the deterministic distribution engine shared by every
// pipeline stage.
//
// A Source is an explicit value seeded from a string. Two Sources built from
// the same seed and driven by the same call sequence produce bit-identical
// outputs in any process on any machine: the seed is hashed with SHA-256 into
// the state of a PCG generator, whose algorithm is fixed, and floats are
// derived from the top 53 bits of each 64-bit draw without consulting the
// wall clock or OS entropy.
//
// Sources are never shared between goroutines. Stages that pipeline I/O keep
// every draw on the goroutine that constructs batches so the draw order (and
// therefore the generated dataset) does not depend on scheduling.
//
// The package also carries the sorted-sample statistics used by the sampler,
// calibrator and fidelity validator: nearest-rank percentiles, fixed-width
// histograms and weight normalization.
package dist
